package internal

import "time"

// DefaultTitle is used when an event is saved without a title.
const DefaultTitle = "(No title)"

// Event is the canonical representation of a calendar event, shared by the
// local store and every provider.
type Event struct {
	ID          string `json:"id"`
	OwnerKey    string `json:"ownerKey"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	// Start and End are human readable: "2006-01-02" for all-day events and
	// RFC 3339 in the event's time zone otherwise.
	Start    string `json:"start"`
	End      string `json:"end"`
	StartMs  int64  `json:"startMs"`
	EndMs    int64  `json:"endMs"`
	AllDay   bool   `json:"allDay"`
	TimeZone string `json:"timeZone,omitempty"`
	// Color is a local annotation and never travels to a provider.
	Color string `json:"color,omitempty"`
}

func (e Event) StartsAt() time.Time {
	return time.UnixMilli(e.StartMs)
}

func (e Event) EndsAt() time.Time {
	return time.UnixMilli(e.EndMs)
}

// Overlaps reports whether the event intersects [from, to). A zero bound is
// open.
func (e Event) Overlaps(from, to int64) bool {
	if to != 0 && e.StartMs >= to {
		return false
	}
	if from != 0 && e.EndMs <= from {
		return false
	}
	return true
}

// EventRequest carries a create or a partial update. Nil fields are absent.
type EventRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	// Start and End are "2006-01-02" for all-day events or an RFC 3339
	// timestamp with offset.
	Start    *string `json:"start,omitempty"`
	End      *string `json:"end,omitempty"`
	AllDay   *bool   `json:"allDay,omitempty"`
	TimeZone *string `json:"timeZone,omitempty"`
	Color    *string `json:"color,omitempty"`
}

// Change is a single remote delta: either an upsert or a cancellation.
type Change struct {
	ID        string
	Cancelled bool
	Event     *Event
}

// Range filters events by overlap. Zero values are unbounded.
type Range struct {
	From int64
	To   int64
}
