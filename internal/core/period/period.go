// Package period provides calendar period identification for closing snapshots.
// A period is either one calendar day or one calendar month. All dates are
// normalized to UTC midnight; a month is represented by its first day.
package period

import (
	"fmt"
	"time"
)

// Granularity distinguishes daily from monthly closings.
type Granularity string

const (
	GranularityDay   Granularity = "DAY"
	GranularityMonth Granularity = "MONTH"
)

// Valid reports whether g is a known granularity.
func (g Granularity) Valid() bool {
	return g == GranularityDay || g == GranularityMonth
}

// Period identifies one concrete closing period. Immutable once constructed.
type Period struct {
	granularity Granularity
	start       time.Time // UTC midnight; first day of month for MONTH
}

// Day constructs a daily period for the calendar day containing t.
func Day(t time.Time) Period {
	return Period{granularity: GranularityDay, start: Truncate(t)}
}

// Month constructs a monthly period.
func Month(year int, month time.Month) Period {
	return Period{
		granularity: GranularityMonth,
		start:       time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
	}
}

// MonthOf constructs the monthly period containing t.
func MonthOf(t time.Time) Period {
	return Month(t.Year(), t.Month())
}

// Granularity returns the period granularity.
func (p Period) Granularity() Granularity { return p.granularity }

// Start returns the inclusive start instant of the period.
func (p Period) Start() time.Time { return p.start }

// End returns the exclusive end instant of the period.
func (p Period) End() time.Time {
	if p.granularity == GranularityMonth {
		return p.start.AddDate(0, 1, 0)
	}
	return p.start.AddDate(0, 0, 1)
}

// Year returns the calendar year of the period.
func (p Period) Year() int { return p.start.Year() }

// MonthValue returns the calendar month of the period.
func (p Period) MonthValue() time.Month { return p.start.Month() }

// LastDay returns the last calendar day inside the period.
// For a daily period this is the day itself.
func (p Period) LastDay() time.Time {
	return p.End().AddDate(0, 0, -1)
}

// Prev returns the immediately preceding period of the same granularity.
func (p Period) Prev() Period {
	if p.granularity == GranularityMonth {
		return Period{granularity: GranularityMonth, start: p.start.AddDate(0, -1, 0)}
	}
	return Period{granularity: GranularityDay, start: p.start.AddDate(0, 0, -1)}
}

// Next returns the immediately following period of the same granularity.
func (p Period) Next() Period {
	return Period{granularity: p.granularity, start: p.End()}
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.start) && u.Before(p.End())
}

// String formats the period as 2006-01-02 for days and 2006-01 for months.
func (p Period) String() string {
	if p.granularity == GranularityMonth {
		return p.start.Format("2006-01")
	}
	return p.start.Format("2006-01-02")
}

// Truncate normalizes t to UTC midnight of its calendar day.
func Truncate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the last calendar day of the given month (UTC midnight).
func LastDayOfMonth(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}

// ParseDate parses a 2006-01-02 formatted date into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Truncate(t), nil
}

// FormatDate formats a date as 2006-01-02.
func FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// SameDay reports whether a and b fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool {
	return Truncate(a).Equal(Truncate(b))
}

// ValidMonth reports whether year/month describe a plausible calendar month.
func ValidMonth(year, month int) bool {
	return year >= 1970 && year <= 9999 && month >= 1 && month <= 12
}
