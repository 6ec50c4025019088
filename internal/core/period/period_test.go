package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayBounds(t *testing.T) {
	d := Day(time.Date(2026, 2, 14, 17, 30, 0, 0, time.UTC))

	assert.Equal(t, GranularityDay, d.Granularity())
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), d.Start())
	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), d.End())
	assert.Equal(t, "2026-02-14", d.String())
}

func TestMonthBounds(t *testing.T) {
	m := Month(2026, time.February)

	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), m.Start())
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), m.End())
	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), m.LastDay())
	assert.Equal(t, "2026-02", m.String())
}

func TestLastDayOfMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		day   int
	}{
		{2026, time.January, 31},
		{2026, time.February, 28},
		{2024, time.February, 29}, // leap year
		{2026, time.April, 30},
		{2026, time.December, 31},
	}

	for _, tc := range cases {
		got := LastDayOfMonth(tc.year, tc.month)
		assert.Equal(t, tc.day, got.Day(), "last day of %d-%d", tc.year, tc.month)
	}
}

func TestPrevNext(t *testing.T) {
	d := Day(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2026-02-28", d.Prev().String())
	assert.Equal(t, "2026-03-02", d.Next().String())

	m := Month(2026, time.January)
	assert.Equal(t, "2025-12", m.Prev().String())
	assert.Equal(t, "2026-02", m.Next().String())
}

func TestContains(t *testing.T) {
	m := Month(2026, time.February)

	assert.True(t, m.Contains(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, m.Contains(time.Date(2026, 2, 28, 23, 59, 59, 0, time.UTC)))
	assert.False(t, m.Contains(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.Contains(time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-08-28")
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("28.08.2026")
	assert.Error(t, err)
}

func TestTruncateNonUTC(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	// 2026-02-15 01:00 KST is 2026-02-14 16:00 UTC
	got := Truncate(time.Date(2026, 2, 15, 1, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), got)
}

func TestValidMonth(t *testing.T) {
	assert.True(t, ValidMonth(2026, 12))
	assert.False(t, ValidMonth(2026, 13))
	assert.False(t, ValidMonth(2026, 0))
	assert.False(t, ValidMonth(1890, 5))
}
