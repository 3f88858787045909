package ledger

import (
	"time"

	"github.com/neofi/eventledger/internal/store"
)

// Snapshot serializes an event's mutable fields into the key→value form
// recorded in its version history. Times are stored as RFC 3339 UTC
// strings. Optional fields are omitted when unset rather than stored as
// null, so the diff engine reports set↔unset transitions via Missing.
func Snapshot(ev store.Event) map[string]any {
	data := map[string]any{
		"title":        ev.Title,
		"description":  ev.Description,
		"start_time":   ev.StartTime.UTC().Format(time.RFC3339Nano),
		"end_time":     ev.EndTime.UTC().Format(time.RFC3339Nano),
		"is_recurring": ev.IsRecurring,
	}
	if ev.Location != nil {
		data["location"] = *ev.Location
	}
	if ev.RecurrencePattern != nil {
		data["recurrence_pattern"] = ev.RecurrencePattern
	}
	return data
}
