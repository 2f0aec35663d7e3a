// Package timelocal implements the decomposed local-time codec used by the
// sale-event store. Event times are persisted as separate calendar/clock
// fields plus a zone identifier, never as a normalized instant; this package
// keeps the two possible orderings (local-field vs instant) as distinct,
// explicitly named operations.
package timelocal

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCalendar is returned when decomposed fields do not denote a
	// real calendar date/time (month 13, Feb 30, hour 24, ...).
	ErrInvalidCalendar = errors.New("timelocal: invalid calendar fields")
	// ErrUnresolvableZone is returned when a stored zone identifier cannot be
	// resolved to a time.Location. The empty string ("zone unspecified") is
	// unresolvable by definition.
	ErrUnresolvableZone = errors.New("timelocal: unresolvable timezone")
)

// Fields is a decomposed local wall-clock moment with no zone attached.
type Fields struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// Date is the calendar-date prefix of Fields, used for range bounds and
// date-grouped aggregation keys.
type Date struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

// Date returns the calendar-date prefix of f.
func (f Fields) Date() Date {
	return Date{Year: f.Year, Month: f.Month, Day: f.Day}
}

// String renders f in a sortable "YYYY-MM-DD HH:MM:SS" form for logs.
func (f Fields) String() string {
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// daysIn reports the number of days in the given month, honoring leap years.
func daysIn(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

// Validate checks that f denotes a calendar date/time that exists. Invalid
// input is rejected, never clamped or repaired.
func Validate(f Fields) error {
	if f.Year < 1 || f.Month < 1 || f.Month > 12 {
		return fmt.Errorf("%w: %s", ErrInvalidCalendar, f)
	}
	if f.Day < 1 || f.Day > daysIn(f.Year, f.Month) {
		return fmt.Errorf("%w: %s", ErrInvalidCalendar, f)
	}
	if f.Hour < 0 || f.Hour > 23 || f.Minute < 0 || f.Minute > 59 || f.Second < 0 || f.Second > 59 {
		return fmt.Errorf("%w: %s", ErrInvalidCalendar, f)
	}
	return nil
}

// ValidateDate checks the calendar-date prefix only.
func ValidateDate(d Date) error {
	return Validate(Fields{Year: d.Year, Month: d.Month, Day: d.Day, Hour: 0, Minute: 0, Second: 0})
}

// CompareLocal orders two decomposed tuples lexicographically by
// (year, month, day, hour, minute, second). This is the default,
// zone-agnostic ordering for all per-field range queries. It matches
// chronological order only when both tuples share a zone; across differing
// zones it intentionally diverges from instant ordering.
func CompareLocal(a, b Fields) int {
	pairs := [6][2]int{
		{a.Year, b.Year},
		{a.Month, b.Month},
		{a.Day, b.Day},
		{a.Hour, b.Hour},
		{a.Minute, b.Minute},
		{a.Second, b.Second},
	}
	for _, p := range pairs {
		if p[0] < p[1] {
			return -1
		}
		if p[0] > p[1] {
			return 1
		}
	}
	return 0
}

// CompareDate orders two calendar dates lexicographically by (year, month, day).
func CompareDate(a, b Date) int {
	return CompareLocal(
		Fields{Year: a.Year, Month: a.Month, Day: a.Day},
		Fields{Year: b.Year, Month: b.Month, Day: b.Day},
	)
}

// ToInstant resolves f in the named IANA zone to an absolute instant. It is
// used only by the explicit instant-ordered read path, never for storage.
// Wall times falling in a DST spring-forward gap are normalized forward by
// time.Date; that is an accepted limitation of resolving local fields.
func ToInstant(f Fields, zone string) (time.Time, error) {
	if err := Validate(f); err != nil {
		return time.Time{}, err
	}
	if zone == "" {
		return time.Time{}, fmt.Errorf("%w: zone unspecified", ErrUnresolvableZone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnresolvableZone, zone)
	}
	return time.Date(f.Year, time.Month(f.Month), f.Day, f.Hour, f.Minute, f.Second, 0, loc), nil
}

// CompareInstant orders two decomposed tuples by the absolute instants they
// denote in their respective zones. Either zone failing to resolve fails the
// comparison; callers on the read path exclude the affected record instead
// of propagating the error query-wide.
func CompareInstant(a, b Fields, zoneA, zoneB string) (int, error) {
	ta, err := ToInstant(a, zoneA)
	if err != nil {
		return 0, err
	}
	tb, err := ToInstant(b, zoneB)
	if err != nil {
		return 0, err
	}
	return ta.Compare(tb), nil
}
