package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualityFlags_AtMostOneClass(t *testing.T) {
	q := NewDataQualityFlags()
	q.MarkMissing("rainfall", "no Environmental row")
	q.MarkEstimated("rainfall", "interpolated from adjacent months")

	assert.NotContains(t, q.Missing, "rainfall")
	assert.Contains(t, q.Estimated, "rainfall")
	assert.Equal(t, FlagEstimated, q.ClassOf("rainfall"))
}

func TestQualityFlags_MarkIsIdempotent(t *testing.T) {
	q := NewDataQualityFlags()
	q.MarkMissing("seepage", "")
	q.MarkMissing("seepage", "")
	assert.Equal(t, []string{"seepage"}, q.Missing)
}

func TestQualityFlags_FieldsStaySorted(t *testing.T) {
	q := NewDataQualityFlags()
	q.MarkMissing("seepage", "")
	q.MarkMissing("discharge", "")
	q.MarkMissing("rainfall", "")
	assert.Equal(t, []string{"discharge", "rainfall", "seepage"}, q.Missing)
}

func TestQualityFlags_Clean(t *testing.T) {
	q := NewDataQualityFlags()
	assert.True(t, q.Clean())

	q.Warn("something")
	assert.False(t, q.Clean())
}

func TestQualityFlags_Merge(t *testing.T) {
	a := NewDataQualityFlags()
	a.MarkMissing("rainfall", "")
	a.Warn("w1")

	b := NewDataQualityFlags()
	b.MarkEstimated("rainfall", "baseline applied")
	b.MarkMissing("discharge", "")
	b.Warn("w2")

	a.Merge(b)

	assert.Equal(t, FlagEstimated, a.ClassOf("rainfall"))
	assert.Equal(t, FlagMissing, a.ClassOf("discharge"))
	assert.Equal(t, []string{"w1", "w2"}, a.Warnings)
	assert.Equal(t, "baseline applied", a.Notes["rainfall"])
}

func TestQualityFlags_NotesRecorded(t *testing.T) {
	q := NewDataQualityFlags()
	q.MarkSimulated("evaporation", "pan coefficient model")
	assert.Equal(t, "pan coefficient model", q.Notes["evaporation"])
	assert.Equal(t, FlagSimulated, q.ClassOf("evaporation"))
}
