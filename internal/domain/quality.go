package domain

import "sort"

// FlagClass is the quality classification of an input field.
type FlagClass string

const (
	FlagMissing   FlagClass = "missing"
	FlagEstimated FlagClass = "estimated"
	FlagSimulated FlagClass = "simulated"
)

// DataQualityFlags summarises input quality for a computed result.
// A field appears in at most one of missing/estimated/simulated; marking a
// field again moves it to the new class instead of duplicating it.
type DataQualityFlags struct {
	Missing   []string          `json:"missing,omitempty"`
	Estimated []string          `json:"estimated,omitempty"`
	Simulated []string          `json:"simulated,omitempty"`
	Notes     map[string]string `json:"notes,omitempty"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// NewDataQualityFlags returns an empty flag set.
func NewDataQualityFlags() *DataQualityFlags {
	return &DataQualityFlags{Notes: map[string]string{}}
}

// Mark classifies a field, removing it from any other class first so the
// at-most-one-class invariant holds.
func (q *DataQualityFlags) Mark(field string, class FlagClass, note string) {
	q.Missing = removeField(q.Missing, field)
	q.Estimated = removeField(q.Estimated, field)
	q.Simulated = removeField(q.Simulated, field)

	switch class {
	case FlagMissing:
		q.Missing = insertField(q.Missing, field)
	case FlagEstimated:
		q.Estimated = insertField(q.Estimated, field)
	case FlagSimulated:
		q.Simulated = insertField(q.Simulated, field)
	}

	if note != "" {
		if q.Notes == nil {
			q.Notes = map[string]string{}
		}
		q.Notes[field] = note
	}
}

// MarkMissing flags a field as absent from the inputs.
func (q *DataQualityFlags) MarkMissing(field, note string) {
	q.Mark(field, FlagMissing, note)
}

// MarkEstimated flags a field as substituted by an estimate.
func (q *DataQualityFlags) MarkEstimated(field, note string) {
	q.Mark(field, FlagEstimated, note)
}

// MarkSimulated flags a field as produced by a model rather than measurement.
func (q *DataQualityFlags) MarkSimulated(field, note string) {
	q.Mark(field, FlagSimulated, note)
}

// Warn appends a free-form warning.
func (q *DataQualityFlags) Warn(msg string) {
	q.Warnings = append(q.Warnings, msg)
}

// ClassOf reports which class a field carries, or "" when unflagged.
func (q *DataQualityFlags) ClassOf(field string) FlagClass {
	if containsField(q.Missing, field) {
		return FlagMissing
	}
	if containsField(q.Estimated, field) {
		return FlagEstimated
	}
	if containsField(q.Simulated, field) {
		return FlagSimulated
	}
	return ""
}

// Clean reports whether no fields are flagged and no warnings were raised.
func (q *DataQualityFlags) Clean() bool {
	return len(q.Missing) == 0 && len(q.Estimated) == 0 &&
		len(q.Simulated) == 0 && len(q.Warnings) == 0
}

// Merge folds another flag set into this one. Field classifications from
// other win on conflict (they are assumed newer).
func (q *DataQualityFlags) Merge(other *DataQualityFlags) {
	if other == nil {
		return
	}
	for _, f := range other.Missing {
		q.Mark(f, FlagMissing, other.Notes[f])
	}
	for _, f := range other.Estimated {
		q.Mark(f, FlagEstimated, other.Notes[f])
	}
	for _, f := range other.Simulated {
		q.Mark(f, FlagSimulated, other.Notes[f])
	}
	q.Warnings = append(q.Warnings, other.Warnings...)
}

// insertField adds a field keeping the slice sorted and free of duplicates.
// Sorted slices keep serialized results byte-stable across runs.
func insertField(fields []string, field string) []string {
	i := sort.SearchStrings(fields, field)
	if i < len(fields) && fields[i] == field {
		return fields
	}
	fields = append(fields, "")
	copy(fields[i+1:], fields[i:])
	fields[i] = field
	return fields
}

func removeField(fields []string, field string) []string {
	i := sort.SearchStrings(fields, field)
	if i < len(fields) && fields[i] == field {
		return append(fields[:i], fields[i+1:]...)
	}
	return fields
}

func containsField(fields []string, field string) bool {
	i := sort.SearchStrings(fields, field)
	return i < len(fields) && fields[i] == field
}
