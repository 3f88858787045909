package ledger

import (
	"reflect"
	"testing"
)

func TestDiffSelfIsEmpty(t *testing.T) {
	snap := map[string]any{
		"title":      "Sync",
		"start_time": "2024-01-01T10:00:00Z",
		"nested":     map[string]any{"freq": "weekly", "count": float64(3)},
	}
	if diffs := Diff(snap, snap); len(diffs) != 0 {
		t.Errorf("expected empty diff for identical snapshots, got %v", diffs)
	}
}

func TestDiffReportsChangedFields(t *testing.T) {
	a := map[string]any{"title": "Sync", "description": "weekly sync"}
	b := map[string]any{"title": "Sync v2", "description": "weekly sync"}

	diffs := Diff(a, b)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d: %v", len(diffs), diffs)
	}
	if diffs[0].Field != "title" {
		t.Errorf("expected field title, got %q", diffs[0].Field)
	}
	if diffs[0].OldValue != "Sync" || diffs[0].NewValue != "Sync v2" {
		t.Errorf("unexpected values: old=%v new=%v", diffs[0].OldValue, diffs[0].NewValue)
	}
}

func TestDiffUnionOfKeys(t *testing.T) {
	// A field present only in the second snapshot must still be reported.
	a := map[string]any{"title": "Sync"}
	b := map[string]any{"title": "Sync", "location": "Room 4"}

	diffs := Diff(a, b)
	if len(diffs) != 1 {
		t.Fatalf("expected 1 diff, got %d: %v", len(diffs), diffs)
	}
	if diffs[0].Field != "location" {
		t.Errorf("expected field location, got %q", diffs[0].Field)
	}
	if diffs[0].OldValue != Missing {
		t.Errorf("expected Missing old value, got %v", diffs[0].OldValue)
	}
	if diffs[0].NewValue != "Room 4" {
		t.Errorf("expected new value Room 4, got %v", diffs[0].NewValue)
	}

	// And the other direction: a field dropped by the second snapshot.
	diffs = Diff(b, a)
	if len(diffs) != 1 || diffs[0].NewValue != Missing {
		t.Errorf("expected Missing new value for dropped field, got %v", diffs)
	}
}

func TestDiffSymmetry(t *testing.T) {
	a := map[string]any{"title": "Sync", "location": "Room 4", "is_recurring": false}
	b := map[string]any{"title": "Sync v2", "description": "added", "is_recurring": false}

	forward := Diff(a, b)
	backward := Diff(b, a)

	if len(forward) != len(backward) {
		t.Fatalf("expected same field set, got %d vs %d", len(forward), len(backward))
	}
	for i := range forward {
		if forward[i].Field != backward[i].Field {
			t.Errorf("field order mismatch at %d: %q vs %q", i, forward[i].Field, backward[i].Field)
		}
		if !reflect.DeepEqual(forward[i].OldValue, backward[i].NewValue) ||
			!reflect.DeepEqual(forward[i].NewValue, backward[i].OldValue) {
			t.Errorf("expected swapped values for %q, got %+v vs %+v", forward[i].Field, forward[i], backward[i])
		}
	}
}

func TestDiffOrderedByFieldName(t *testing.T) {
	a := map[string]any{"zebra": 1, "alpha": 1, "mid": 1}
	b := map[string]any{"zebra": 2, "alpha": 2, "mid": 2}

	diffs := Diff(a, b)
	if len(diffs) != 3 {
		t.Fatalf("expected 3 diffs, got %d", len(diffs))
	}
	for i, want := range []string{"alpha", "mid", "zebra"} {
		if diffs[i].Field != want {
			t.Errorf("position %d: expected %q, got %q", i, want, diffs[i].Field)
		}
	}
}

func TestDiffStructuralEquality(t *testing.T) {
	a := map[string]any{"recurrence_pattern": map[string]any{"freq": "weekly", "days": []any{"mon", "wed"}}}
	b := map[string]any{"recurrence_pattern": map[string]any{"freq": "weekly", "days": []any{"mon", "wed"}}}

	if diffs := Diff(a, b); len(diffs) != 0 {
		t.Errorf("structurally equal nested values must not diff, got %v", diffs)
	}

	b["recurrence_pattern"] = map[string]any{"freq": "weekly", "days": []any{"mon", "thu"}}
	if diffs := Diff(a, b); len(diffs) != 1 {
		t.Errorf("expected nested change to be reported, got %v", diffs)
	}
}
