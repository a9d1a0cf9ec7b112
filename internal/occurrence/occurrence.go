// Package occurrence projects annually recurring calendar dates onto a
// reference instant and orders them by proximity.
package occurrence

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidRecurrenceDate = errors.New("invalid recurrence date")

// Date is a calendar date without a time of day. It encodes as YYYY-MM-DD.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) (Date, error) {
	d := Date{Year: year, Month: month, Day: day}
	if err := d.Validate(); err != nil {
		return Date{}, err
	}
	return d, nil
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(strings.TrimSpace(s), "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidRecurrenceDate, s)
	}
	var n [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return Date{}, fmt.Errorf("%w: %q", ErrInvalidRecurrenceDate, s)
		}
		n[i] = v
	}
	return NewDate(n[0], time.Month(n[1]), n[2])
}

func (d Date) Validate() error {
	if d.Year < 1 || d.Year > 9999 {
		return fmt.Errorf("%w: year %d", ErrInvalidRecurrenceDate, d.Year)
	}
	if d.Month < time.January || d.Month > time.December {
		return fmt.Errorf("%w: month %d", ErrInvalidRecurrenceDate, d.Month)
	}
	if d.Day < 1 || d.Day > daysIn(d.Year, d.Month) {
		return fmt.Errorf("%w: day %d of %s %d", ErrInvalidRecurrenceDate, d.Day, d.Month, d.Year)
	}
	return nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool { return d.ordinal() < o.ordinal() }

func (d Date) ordinal() int { return d.Year*10000 + int(d.Month)*100 + d.Day }

// In returns the same month/day in year. Feb 29 becomes Feb 28 when year is
// not a leap year.
func (d Date) In(year int) Date {
	day := d.Day
	if last := daysIn(year, d.Month); day > last {
		day = last
	}
	return Date{Year: year, Month: d.Month, Day: day}
}

// At returns midnight of d in loc.
func (d Date) At(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextOccurrence returns the next instant d falls on relative to now,
// expressed as midnight in now's location. A non-recurring date has exactly
// one occurrence and is returned unchanged. A recurring date that falls on
// today's date counts as upcoming.
func NextOccurrence(d Date, recurring bool, now time.Time) (time.Time, error) {
	if err := d.Validate(); err != nil {
		return time.Time{}, err
	}
	loc := now.Location()
	if !recurring {
		return d.At(loc), nil
	}

	today := DateOf(now)
	next := d.In(today.Year)
	if next.Before(today) {
		next = d.In(today.Year + 1)
	}
	return next.At(loc), nil
}

const secondsPerDay = 24 * 60 * 60

// DaysUntil is the calendar-day distance from now's date to occurrence's
// date. It is negative for occurrences in the past.
func DaysUntil(occurrence, now time.Time) int {
	a := DateOf(occurrence).At(time.UTC).Unix()
	b := DateOf(now).At(time.UTC).Unix()
	return int((a - b) / secondsPerDay)
}

// Recurrence is anything that carries a calendar date and a recurrence flag.
type Recurrence interface {
	OccursOn() Date
	Recurs() bool
}

type Upcoming[T Recurrence] struct {
	Item       T         `json:"item"`
	Occurrence time.Time `json:"occurrence"`
	DaysUntil  int       `json:"days_until"`
}

// RankUpcoming projects every recurring or not-yet-past item, orders them by
// occurrence (ties keep input order) and truncates to limit. A limit <= 0
// means no truncation.
func RankUpcoming[T Recurrence](items []T, now time.Time, limit int) ([]Upcoming[T], error) {
	out := make([]Upcoming[T], 0, len(items))
	for _, it := range items {
		occ, err := NextOccurrence(it.OccursOn(), it.Recurs(), now)
		if err != nil {
			return nil, err
		}
		days := DaysUntil(occ, now)
		if days < 0 {
			continue
		}
		out = append(out, Upcoming[T]{Item: it, Occurrence: occ, DaysUntil: days})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Occurrence.Before(out[j].Occurrence)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Timeline orders items chronologically by their original date, ignoring
// recurrence. The input slice is not modified.
func Timeline[T Recurrence](items []T, descending bool) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].OccursOn(), out[j].OccursOn()
		if descending {
			return b.Before(a)
		}
		return a.Before(b)
	})
	return out
}
