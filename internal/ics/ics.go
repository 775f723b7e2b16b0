// Package ics renders events as an iCalendar feed.
package ics

import (
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	ProductID = "-//eventsync//eventsync//EN"
	propColor = "COLOR"
)

// Encode writes events as one VCALENDAR. All-day events use DATE values,
// timed events UTC date-times.
func Encode(w io.Writer, events []*internal.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	stamp := now.UTC()
	for _, e := range events {
		vevent, err := newEvent(e, stamp)
		if err != nil {
			return err
		}
		cal.Children = append(cal.Children, vevent.Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("ics: encoding calendar: %w", err)
	}
	return nil
}

func newEvent(e *internal.Event, stamp time.Time) (*ical.Event, error) {
	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, e.ID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	vevent.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		vevent.Props.SetText(ical.PropDescription, e.Description)
	}
	if e.Color != "" {
		vevent.Props.SetText(propColor, e.Color)
	}

	if e.AllDay {
		loc, err := internal.LoadZone(e.TimeZone, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("ics: event %s: %w", e.ID, err)
		}
		start, err := internal.ParseDate(e.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("ics: event %s: start %q: %w", e.ID, e.Start, err)
		}
		end, err := internal.ParseDate(e.End, loc)
		if err != nil {
			return nil, fmt.Errorf("ics: event %s: end %q: %w", e.ID, e.End, err)
		}
		vevent.Props.SetDate(ical.PropDateTimeStart, start.Time)
		vevent.Props.SetDate(ical.PropDateTimeEnd, end.Time)
		return vevent, nil
	}

	vevent.Props.SetDateTime(ical.PropDateTimeStart, e.StartsAt().UTC())
	vevent.Props.SetDateTime(ical.PropDateTimeEnd, e.EndsAt().UTC())
	return vevent, nil
}
