package ledger

import (
	"reflect"
	"sort"
)

// FieldDiff reports one field whose value differs between two snapshots.
type FieldDiff struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// Missing marks a field absent from one of the two snapshots. It is
// distinct from every legal snapshot value (snapshots hold only JSON
// values), so a field transitioning to or from unset is always reported.
var Missing = missingValue{}

type missingValue struct{}

func (missingValue) String() string { return "missing" }

func (missingValue) MarshalJSON() ([]byte, error) { return []byte(`"__missing__"`), nil }

// Diff compares two snapshots field by field over the union of their field
// names. Values are compared structurally, and the output is ordered by
// field name so the result is deterministic regardless of map iteration
// order; Diff(b, a) yields the same fields with old and new swapped.
func Diff(a, b map[string]any) []FieldDiff {
	fields := make(map[string]struct{}, len(a)+len(b))
	for name := range a {
		fields[name] = struct{}{}
	}
	for name := range b {
		fields[name] = struct{}{}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var diffs []FieldDiff
	for _, name := range names {
		oldValue, inA := a[name]
		newValue, inB := b[name]
		if inA && inB && reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		if !inA {
			oldValue = Missing
		}
		if !inB {
			newValue = Missing
		}
		diffs = append(diffs, FieldDiff{Field: name, OldValue: oldValue, NewValue: newValue})
	}
	return diffs
}
