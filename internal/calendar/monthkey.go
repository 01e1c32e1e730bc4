package calendar

import (
	"fmt"
	"time"
)

// MonthKey is the canonical month index used as cache key: a (year,
// month) pair, comparable and cheap to pass around. The zero value is
// invalid.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthKeyOf returns the key of the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	y, m, _ := t.UTC().Date()
	return MonthKey{Year: y, Month: m}
}

// ParseMonthKey parses "2006-01" style strings.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthKeyOf(t), nil
}

// Time returns the first of the month at UTC midnight.
func (k MonthKey) Time() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Add returns the key n months away (n may be negative). time.AddDate
// normalizes overflowing months, so December+1 rolls the year.
func (k MonthKey) Add(n int) MonthKey {
	return MonthKeyOf(k.Time().AddDate(0, n, 0))
}

// Next returns the following month.
func (k MonthKey) Next() MonthKey { return k.Add(1) }

// Prev returns the preceding month.
func (k MonthKey) Prev() MonthKey { return k.Add(-1) }

// Days returns the number of days in the month.
func (k MonthKey) Days() int {
	return k.Time().AddDate(0, 1, -1).Day()
}

// Contains reports whether t falls inside this month.
func (k MonthKey) Contains(t time.Time) bool {
	return MonthKeyOf(t) == k
}

// Before reports whether k is earlier than other.
func (k MonthKey) Before(other MonthKey) bool {
	return k.Year < other.Year || (k.Year == other.Year && k.Month < other.Month)
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}
