package internal

import (
	"errors"
	"testing"
	"time"
)

func seoul(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("loading zone: %v", err)
	}
	return loc
}

func TestNewEvent(t *testing.T) {
	loc := seoul(t)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, loc)

	tests := []struct {
		name       string
		req        *EventRequest
		wantAllDay bool
		wantStart  string
		wantEnd    string
		wantTitle  string
	}{
		{
			name: "timed",
			req: &EventRequest{
				Title: String("Lunch"),
				Start: String("2024-05-01T12:00:00+09:00"),
				End:   String("2024-05-01T13:00:00+09:00"),
			},
			wantStart: "2024-05-01T12:00:00+09:00",
			wantEnd:   "2024-05-01T13:00:00+09:00",
			wantTitle: "Lunch",
		},
		{
			name: "timed end before start",
			req: &EventRequest{
				Start: String("2024-05-01T12:00:00+09:00"),
				End:   String("2024-05-01T11:00:00+09:00"),
			},
			wantStart: "2024-05-01T12:00:00+09:00",
			wantEnd:   "2024-05-01T13:00:00+09:00",
			wantTitle: DefaultTitle,
		},
		{
			name: "timed without end",
			req: &EventRequest{
				Title: String("  "),
				Start: String("2024-05-01T03:00:00Z"),
			},
			wantStart: "2024-05-01T12:00:00+09:00",
			wantEnd:   "2024-05-01T13:00:00+09:00",
			wantTitle: DefaultTitle,
		},
		{
			name:       "date only start forces all-day",
			req:        &EventRequest{Title: String("Trip"), Start: String("2024-05-01")},
			wantAllDay: true,
			wantStart:  "2024-05-01",
			wantEnd:    "2024-05-02",
			wantTitle:  "Trip",
		},
		{
			name: "all-day end equal to start",
			req: &EventRequest{
				Start: String("2024-05-01"),
				End:   String("2024-05-01"),
			},
			wantAllDay: true,
			wantStart:  "2024-05-01",
			wantEnd:    "2024-05-02",
			wantTitle:  DefaultTitle,
		},
		{
			name:       "all-day flag without start uses today",
			req:        &EventRequest{AllDay: Bool(true)},
			wantAllDay: true,
			wantStart:  "2024-05-01",
			wantEnd:    "2024-05-02",
			wantTitle:  DefaultTitle,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := NewEvent("id", "u1", tt.req, loc, now)
			if err != nil {
				t.Fatalf("NewEvent: %v", err)
			}
			if e.AllDay != tt.wantAllDay {
				t.Errorf("AllDay = %v, want %v", e.AllDay, tt.wantAllDay)
			}
			if e.Start != tt.wantStart || e.End != tt.wantEnd {
				t.Errorf("span = %s..%s, want %s..%s", e.Start, e.End, tt.wantStart, tt.wantEnd)
			}
			if e.Title != tt.wantTitle {
				t.Errorf("Title = %q, want %q", e.Title, tt.wantTitle)
			}
			if e.EndMs <= e.StartMs {
				t.Errorf("EndMs %d is not after StartMs %d", e.EndMs, e.StartMs)
			}
			if e.TimeZone != "Asia/Seoul" {
				t.Errorf("TimeZone = %q", e.TimeZone)
			}
		})
	}
}

func TestNewEventAllDayEpoch(t *testing.T) {
	loc := seoul(t)
	e, err := NewEvent("id", "u1", &EventRequest{Start: String("2024-05-01")}, loc, time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}
	want := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC).UnixMilli()
	if e.StartMs != want {
		t.Errorf("StartMs = %d, want %d", e.StartMs, want)
	}
	if e.EndMs-e.StartMs != 24*time.Hour.Milliseconds() {
		t.Errorf("duration = %d", e.EndMs-e.StartMs)
	}
}

func TestNewEventInvalid(t *testing.T) {
	loc := seoul(t)
	for name, req := range map[string]*EventRequest{
		"zone":  {TimeZone: String("Mars/Olympus")},
		"start": {Start: String("tomorrow")},
		"end":   {Start: String("2024-05-01T12:00:00+09:00"), End: String("later")},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := NewEvent("id", "u1", req, loc, time.Now())
			if !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("err = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestApplyDateOnlyStartOnTimedEvent(t *testing.T) {
	loc := seoul(t)
	existing, err := NewEvent("id", "u1", &EventRequest{
		Title: String("Standup"),
		Start: String("2024-04-30T10:00:00+09:00"),
		End:   String("2024-04-30T11:00:00+09:00"),
	}, loc, time.Now())
	if err != nil {
		t.Fatalf("NewEvent: %v", err)
	}

	updated, err := existing.Apply(&EventRequest{Start: String("2024-05-01")}, loc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !updated.AllDay {
		t.Fatal("date-only start did not force all-day")
	}
	if updated.Start != "2024-05-01" || updated.End != "2024-05-02" {
		t.Errorf("span = %s..%s", updated.Start, updated.End)
	}
	if updated.Title != "Standup" {
		t.Errorf("Title = %q", updated.Title)
	}
	if updated.EndMs <= updated.StartMs {
		t.Error("end not after start")
	}
	if existing.AllDay {
		t.Error("Apply mutated the receiver")
	}
}

func TestApplyPartial(t *testing.T) {
	loc := seoul(t)
	existing, _ := NewEvent("id", "u1", &EventRequest{
		Title:       String("Lunch"),
		Description: String("with team"),
		Start:       String("2024-05-01T12:00:00+09:00"),
		End:         String("2024-05-01T13:00:00+09:00"),
		Color:       String("#ff0000"),
	}, loc, time.Now())

	updated, err := existing.Apply(&EventRequest{Title: String("Dinner")}, loc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if updated.Title != "Dinner" || updated.Description != "with team" || updated.Color != "#ff0000" {
		t.Errorf("unexpected fields: %+v", updated)
	}
	if updated.StartMs != existing.StartMs || updated.EndMs != existing.EndMs {
		t.Error("times changed on a title-only update")
	}

	moved, err := existing.Apply(&EventRequest{End: String("2024-05-01T11:00:00+09:00")}, loc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if moved.EndMs-moved.StartMs != time.Hour.Milliseconds() {
		t.Errorf("inverted end not coerced, duration = %d", moved.EndMs-moved.StartMs)
	}
}

func TestApplyAllDayToTimed(t *testing.T) {
	loc := seoul(t)
	existing, _ := NewEvent("id", "u1", &EventRequest{Start: String("2024-05-01")}, loc, time.Now())

	kept, err := existing.Apply(&EventRequest{Title: String("Holiday")}, loc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !kept.AllDay || kept.Start != "2024-05-01" {
		t.Errorf("all-day event lost its shape: %+v", kept)
	}

	timed, err := existing.Apply(&EventRequest{
		AllDay: Bool(false),
		Start:  String("2024-05-01T09:00:00+09:00"),
	}, loc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if timed.AllDay {
		t.Fatal("explicit allDay=false was ignored")
	}
	if timed.Start != "2024-05-01T09:00:00+09:00" {
		t.Errorf("Start = %s", timed.Start)
	}
	if timed.EndMs <= timed.StartMs {
		t.Error("end not after start")
	}
}

func TestOverlaps(t *testing.T) {
	e := Event{StartMs: 100, EndMs: 200}
	tests := []struct {
		from, to int64
		want     bool
	}{
		{0, 0, true},
		{150, 0, true},
		{200, 300, false},
		{0, 100, false},
		{50, 101, true},
	}
	for _, tt := range tests {
		if got := e.Overlaps(tt.from, tt.to); got != tt.want {
			t.Errorf("Overlaps(%d, %d) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
