package internal

import (
	"strings"
	"time"
)

// NewEvent builds a local event from a create request. Missing or inverted
// ends are coerced so that EndMs > StartMs always holds.
func NewEvent(id, ownerKey string, req *EventRequest, defaultZone *time.Location, now time.Time) (*Event, error) {
	if req == nil {
		req = &EventRequest{}
	}
	zone, err := LoadZone(deref(req.TimeZone), defaultZone)
	if err != nil {
		return nil, err
	}

	e := &Event{
		ID:          id,
		OwnerKey:    ownerKey,
		Title:       titleOf(req.Title, ""),
		Description: deref(req.Description),
		Color:       deref(req.Color),
	}

	start, end := deref(req.Start), deref(req.End)
	if isTrue(req.AllDay) || LooksLikeDate(start) {
		s := NewDateFromTime(now.In(zone))
		if start != "" {
			t, err := ParseInstant(start, zone)
			if err != nil {
				return nil, err
			}
			s = NewDateFromTime(t.In(zone))
		}
		en := s.AddDate(0, 0, DefaultDays)
		if LooksLikeDate(end) {
			if en, err = ParseDate(end, zone); err != nil {
				return nil, ErrInvalidEvent
			}
		}
		e.SetAllDay(s, en, zone)
		return e, nil
	}

	s := now
	if start != "" {
		if s, err = ParseInstant(start, zone); err != nil {
			return nil, err
		}
	}
	var en time.Time
	if end != "" {
		if en, err = ParseInstant(end, zone); err != nil {
			return nil, err
		}
	}
	e.SetTimed(s, en, zone)
	return e, nil
}

// Apply returns a copy of e with the fields present in req merged in. A
// date-only start forces an all-day event exactly like on creation.
func (e Event) Apply(req *EventRequest, defaultZone *time.Location) (*Event, error) {
	out := e
	if req == nil {
		return &out, nil
	}
	zoneName := e.TimeZone
	if req.TimeZone != nil {
		zoneName = *req.TimeZone
	}
	zone, err := LoadZone(zoneName, defaultZone)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		out.Title = titleOf(req.Title, e.Title)
	}
	if req.Description != nil {
		out.Description = *req.Description
	}
	if req.Color != nil {
		out.Color = *req.Color
	}

	start, end := deref(req.Start), deref(req.End)
	allDay := isTrue(req.AllDay) || LooksLikeDate(start) || (e.AllDay && req.AllDay == nil)

	if allDay {
		var s Date
		switch {
		case start != "":
			t, err := ParseInstant(start, zone)
			if err != nil {
				return nil, err
			}
			s = NewDateFromTime(t.In(zone))
		case e.AllDay && LooksLikeDate(e.Start):
			if s, err = ParseDate(e.Start, zone); err != nil {
				return nil, err
			}
		default:
			s = DateOf(e.StartMs, zone)
		}

		var en Date
		switch {
		case LooksLikeDate(end):
			if en, err = ParseDate(end, zone); err != nil {
				return nil, ErrInvalidEvent
			}
		case end != "":
			t, err := ParseInstant(end, zone)
			if err != nil {
				return nil, err
			}
			en = NewDateFromTime(t.In(zone))
		case e.AllDay && LooksLikeDate(e.End):
			if en, err = ParseDate(e.End, zone); err != nil {
				return nil, err
			}
		default:
			en = DateOf(e.EndMs, zone)
		}
		out.SetAllDay(s, en, zone)
		return &out, nil
	}

	s := time.UnixMilli(e.StartMs)
	if start != "" {
		if s, err = ParseInstant(start, zone); err != nil {
			return nil, err
		}
	}
	en := time.UnixMilli(e.EndMs)
	if end != "" {
		if en, err = ParseInstant(end, zone); err != nil {
			return nil, err
		}
	}
	out.SetTimed(s, en, zone)
	return &out, nil
}

// SetAllDay stores an all-day span. end is exclusive and is pushed to the
// day after start when it is not after it.
func (e *Event) SetAllDay(start, end Date, zone *time.Location) {
	start = NewDate(start.Year(), start.Month(), start.Day(), zone)
	end = NewDate(end.Year(), end.Month(), end.Day(), zone)
	if !end.After(start.Time) {
		end = start.AddDate(0, 0, DefaultDays)
	}
	e.AllDay = true
	e.TimeZone = zone.String()
	e.Start = start.String()
	e.End = end.String()
	e.StartMs = start.UnixMilli()
	e.EndMs = end.UnixMilli()
}

// SetTimed stores a timed span rendered in zone. A zero or non-positive end
// becomes start + DefaultDuration.
func (e *Event) SetTimed(start, end time.Time, zone *time.Location) {
	if end.IsZero() || !end.After(start) {
		end = start.Add(DefaultDuration)
	}
	e.AllDay = false
	e.TimeZone = zone.String()
	e.Start = start.In(zone).Format(time.RFC3339)
	e.End = end.In(zone).Format(time.RFC3339)
	e.StartMs = start.UnixMilli()
	e.EndMs = end.UnixMilli()
}

func titleOf(v *string, fallback string) string {
	if v == nil {
		if fallback != "" {
			return fallback
		}
		return DefaultTitle
	}
	if strings.TrimSpace(*v) == "" {
		return DefaultTitle
	}
	return *v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// String returns a pointer to s, handy when building requests.
func String(s string) *string {
	return &s
}

func Bool(b bool) *bool {
	return &b
}
