package caldav

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/guilherme-santos/eventsync/internal"
)

const (
	productID = "-//eventsync//caldav//EN"
	icsExt    = ".ics"
	icalDate  = "20060102"
)

// ToCanonical maps the first VEVENT of an object to the local
// representation. The event id is the object name without extension.
func ToCanonical(objectPath string, cal *ical.Calendar, ownerKey string, zone *time.Location) (*internal.Event, error) {
	vevent := firstEvent(cal)
	if vevent == nil {
		return nil, fmt.Errorf("caldav: %w: %s has no VEVENT", internal.ErrInvalidEvent, objectPath)
	}

	e := &internal.Event{
		ID:       eventID(objectPath),
		OwnerKey: ownerKey,
	}
	e.Title, _ = vevent.Props.Text(ical.PropSummary)
	e.Description, _ = vevent.Props.Text(ical.PropDescription)
	if strings.TrimSpace(e.Title) == "" {
		e.Title = internal.DefaultTitle
	}

	start := vevent.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return nil, fmt.Errorf("caldav: %w: %s has no DTSTART", internal.ErrInvalidEvent, objectPath)
	}
	loc := zoneOf(start, zone)

	if start.ValueType() == ical.ValueDate {
		s, err := time.ParseInLocation(icalDate, start.Value, loc)
		if err != nil {
			return nil, fmt.Errorf("caldav: %w: DTSTART %q", internal.ErrInvalidEvent, start.Value)
		}
		var en internal.Date
		if end := vevent.Props.Get(ical.PropDateTimeEnd); end != nil {
			if t, err := time.ParseInLocation(icalDate, end.Value, loc); err == nil {
				en = internal.NewDateFromTime(t)
			}
		}
		e.SetAllDay(internal.NewDateFromTime(s), en, loc)
		return e, nil
	}

	s, err := start.DateTime(loc)
	if err != nil {
		return nil, fmt.Errorf("caldav: %w: DTSTART %q: %v", internal.ErrInvalidEvent, start.Value, err)
	}
	// A missing or broken end is coerced by SetTimed.
	en, _ := vevent.DateTimeEnd(loc)
	e.SetTimed(s, en, loc)
	return e, nil
}

func cancelled(cal *ical.Calendar) bool {
	vevent := firstEvent(cal)
	if vevent == nil {
		return false
	}
	status, _ := vevent.Props.Text(ical.PropStatus)
	return strings.EqualFold(status, "CANCELLED")
}

// newCalendar renders e as a single-event VCALENDAR with uid as UID.
func newCalendar(uid string, e *internal.Event, stamp time.Time) (*ical.Calendar, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	vevent.Props.SetText(ical.PropSummary, e.Title)
	if e.Description != "" {
		vevent.Props.SetText(ical.PropDescription, e.Description)
	}

	if e.AllDay {
		loc, err := internal.LoadZone(e.TimeZone, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("caldav: %w", err)
		}
		vevent.Props.SetDate(ical.PropDateTimeStart, internal.DateOf(e.StartMs, loc).Time)
		vevent.Props.SetDate(ical.PropDateTimeEnd, internal.DateOf(e.EndMs, loc).Time)
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, e.StartsAt().UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, e.EndsAt().UTC())
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal, nil
}

func firstEvent(cal *ical.Calendar) *ical.Event {
	if cal == nil {
		return nil
	}
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent {
			return &ical.Event{Component: comp}
		}
	}
	return nil
}

func zoneOf(prop *ical.Prop, fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	tzid := prop.Params.Get(ical.ParamTimezoneID)
	if tzid == "" {
		return fallback
	}
	loc, err := internal.LoadZone(tzid, fallback)
	if err != nil {
		return fallback
	}
	return loc
}

func eventID(objectPath string) string {
	return strings.TrimSuffix(path.Base(objectPath), icsExt)
}
