package internal

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const DateFormat = "2006-01-02"

const (
	DefaultDuration = time.Hour
	DefaultDays     = 1
)

var dateOnlyRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// LooksLikeDate reports whether s is a date without a time part.
func LooksLikeDate(s string) bool {
	return dateOnlyRe.MatchString(strings.TrimSpace(s))
}

type Date struct {
	time.Time
}

func Today(loc *time.Location) Date {
	return NewDateFromTime(time.Now().In(loc))
}

func NewDateFromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day(), t.Location())
}

func NewDate(year int, month time.Month, day int, loc *time.Location) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

func (d Date) AddDate(years, months, days int) Date {
	t := d.Time.AddDate(years, months, days)
	return NewDate(t.Year(), t.Month(), t.Day(), t.Location())
}

// ParseDate parses "2006-01-02" as midnight in loc.
func ParseDate(value string, loc *time.Location) (Date, error) {
	t, err := time.ParseInLocation(DateFormat, strings.TrimSpace(value), loc)
	if err != nil {
		return Date{}, err
	}
	return NewDateFromTime(t), nil
}

// DateOf returns the calendar date of an epoch millisecond in loc.
func DateOf(ms int64, loc *time.Location) Date {
	return NewDateFromTime(time.UnixMilli(ms).In(loc))
}

func (d *Date) Set(v string) error {
	parsed, err := ParseDate(v, time.Local)
	if err == nil {
		*d = parsed
	}
	return err
}

func (d *Date) Type() string {
	return "date"
}

// At returns the same calendar date at midnight in loc.
func (d Date) At(loc *time.Location) Date {
	return NewDate(d.Year(), d.Month(), d.Day(), loc)
}

func (d Date) String() string {
	return d.Format(DateFormat)
}

var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// ParseInstant accepts a date-only value (midnight in loc) or a timestamp
// with an explicit offset.
func ParseInstant(value string, loc *time.Location) (time.Time, error) {
	v := strings.TrimSpace(value)
	if LooksLikeDate(v) {
		d, err := ParseDate(v, loc)
		return d.Time, err
	}
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", ErrInvalidEvent, value)
}

// LoadZone resolves an IANA zone name, falling back when name is empty.
func LoadZone(name string, fallback *time.Location) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if fallback == nil {
			return time.UTC, nil
		}
		return fallback, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidEvent, name)
	}
	return loc, nil
}
