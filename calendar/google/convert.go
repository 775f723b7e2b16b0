package google

import (
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/calendar/v3"

	"github.com/guilherme-santos/eventsync/internal"
)

const statusCancelled = "cancelled"

// ToCanonical maps a Google event to the local representation. Events with
// a date-only start are all-day; zone is used when Google omits one.
func ToCanonical(event *calendar.Event, ownerKey string, zone *time.Location) (*internal.Event, error) {
	if event == nil || event.Start == nil {
		return nil, fmt.Errorf("google: %w: event has no start", internal.ErrInvalidEvent)
	}

	e := &internal.Event{
		ID:          event.Id,
		OwnerKey:    ownerKey,
		Title:       event.Summary,
		Description: event.Description,
	}
	if strings.TrimSpace(e.Title) == "" {
		e.Title = internal.DefaultTitle
	}

	loc, err := internal.LoadZone(event.Start.TimeZone, zone)
	if err != nil {
		// Google sometimes reports zones the local tzdata lacks.
		loc = zone
		if loc == nil {
			loc = time.UTC
		}
	}

	if event.Start.Date != "" {
		start, err := internal.ParseDate(event.Start.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("google: %w: start %q: %v", internal.ErrInvalidEvent, event.Start.Date, err)
		}
		var end internal.Date
		if event.End != nil && event.End.Date != "" {
			end, err = internal.ParseDate(event.End.Date, loc)
			if err != nil {
				return nil, fmt.Errorf("google: %w: end %q: %v", internal.ErrInvalidEvent, event.End.Date, err)
			}
		}
		e.SetAllDay(start, end, loc)
		return e, nil
	}

	start, err := internal.ParseInstant(event.Start.DateTime, loc)
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	var end time.Time
	if event.End != nil && event.End.DateTime != "" {
		end, err = internal.ParseInstant(event.End.DateTime, loc)
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
	}
	e.SetTimed(start, end, loc)
	return e, nil
}

func toChange(event *calendar.Event, ownerKey string, zone *time.Location) (*internal.Change, error) {
	if event.Status == statusCancelled {
		return &internal.Change{
			ID:        event.Id,
			Cancelled: true,
		}, nil
	}
	e, err := ToCanonical(event, ownerKey, zone)
	if err != nil {
		return nil, err
	}
	return &internal.Change{
		ID:    event.Id,
		Event: e,
	}, nil
}

func newGoogleEvent(event *internal.Event) *calendar.Event {
	ge := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Reminders: &calendar.EventReminders{
			UseDefault: true,
		},
	}
	setSpan(ge, event)
	return ge
}

// setSpan overwrites the start and end of ge. Color stays local.
func setSpan(ge *calendar.Event, event *internal.Event) {
	if event.AllDay {
		ge.Start = &calendar.EventDateTime{Date: event.Start}
		ge.End = &calendar.EventDateTime{Date: event.End}
		return
	}
	ge.Start = &calendar.EventDateTime{
		DateTime: event.Start,
		TimeZone: event.TimeZone,
	}
	ge.End = &calendar.EventDateTime{
		DateTime: event.End,
		TimeZone: event.TimeZone,
	}
}
