package workbook

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailwater/aquabalance/internal/events"
)

type fakePurger struct {
	paths []string
}

func (f *fakePurger) PurgeForWorkbook(path string) (int, error) {
	f.paths = append(f.paths, path)
	return 3, nil
}

type fakeMemo struct {
	calls int
}

func (f *fakeMemo) InvalidateMemo() { f.calls++ }

func TestService_ReloadPurgesCachesAndEmitsEvent(t *testing.T) {
	path := newTestWorkbook(t)
	repo := NewRepository(path, 0, zerolog.Nop())
	bus := events.NewBus(zerolog.Nop())

	var got *events.Event
	bus.Subscribe(events.WorkbookReloaded, func(e *events.Event) { got = e })

	svc := NewService(repo, bus, zerolog.Nop())
	purger := &fakePurger{}
	memo := &fakeMemo{}
	svc.AddPurger(purger)
	svc.AddMemoInvalidator(memo)

	stats, err := svc.Reload()
	require.NoError(t, err)
	assert.Equal(t, 6, stats.Sheets)

	assert.Equal(t, []string{path}, purger.paths)
	assert.Equal(t, 1, memo.calls)

	require.NotNil(t, got, "WorkbookReloaded should be emitted")
	assert.Equal(t, path, got.Data["path"])
	assert.Equal(t, stats.Signature, got.Data["signature"])
}

func TestService_ReloadStillPurgesOnLoadFailure(t *testing.T) {
	repo := NewRepository("/does/not/exist.xlsx", 0, zerolog.Nop())
	svc := NewService(repo, events.NewBus(zerolog.Nop()), zerolog.Nop())
	purger := &fakePurger{}
	svc.AddPurger(purger)

	_, err := svc.Reload()
	require.Error(t, err)
	assert.Len(t, purger.paths, 1, "stale cache entries are purged even when the new load fails")
}
