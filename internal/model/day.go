package model

import (
	"fmt"
	"time"
)

// DayLayout is the canonical day format used on API calls.
const DayLayout = "2006-01-02"

// Day is a calendar day without time zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in loc.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay parses a canonical day string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, ErrNotValid)
	}
	return DayOf(t, time.UTC), nil
}

// AddDays returns the day n days after d (n can be negative).
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time(time.UTC).AddDate(0, 0, n), time.UTC)
}

// Before returns true if d is strictly before o.
func (d Day) Before(o Day) bool {
	return d.Time(time.UTC).Before(o.Time(time.UTC))
}

// Time returns the start of the day in loc.
func (d Day) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// IsZero returns true if the day is unset.
func (d Day) IsZero() bool { return d == Day{} }

func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Day) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Day) UnmarshalText(b []byte) error {
	day, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = day
	return nil
}
