package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTimezone is the business timezone all calendar arithmetic runs in.
const DefaultTimezone = "Asia/Shanghai"

// Calendar converts between epoch milliseconds and business-timezone dates.
type Calendar struct {
	loc *time.Location
}

// NewCalendar loads the named timezone.
func NewCalendar(tz string) (*Calendar, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	return &Calendar{loc: loc}, nil
}

// MustCalendar is NewCalendar for package-level test fixtures.
func MustCalendar(tz string) *Calendar {
	c, err := NewCalendar(tz)
	if err != nil {
		panic(err)
	}
	return c
}

// Location returns the business timezone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the business timezone.
func (c *Calendar) Now() time.Time {
	return time.Now().In(c.loc)
}

// FromMillis converts epoch milliseconds into a business-timezone instant.
func (c *Calendar) FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).In(c.loc)
}

// ToMillis converts an instant into epoch milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// Date builds a business-timezone instant.
func (c *Calendar) Date(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, c.loc)
}

// StartOfDay truncates t to midnight in the business timezone.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.loc)
}

// EndOfDay returns the last representable instant of t's day.
func (c *Calendar) EndOfDay(t time.Time) time.Time {
	return c.StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfMonth returns midnight on the first of t's month.
func (c *Calendar) StartOfMonth(t time.Time) time.Time {
	t = t.In(c.loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.loc)
}

// AddMonths shifts t by n calendar months, clamping the day to the target
// month's length (Jan 31 + 1 month = Feb 28/29).
func (c *Calendar) AddMonths(t time.Time, n int) time.Time {
	t = t.In(c.loc)
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), c.loc)
	day := t.Day()
	if last := DaysInMonth(first); day > last {
		day = last
	}
	return first.AddDate(0, 0, day-1)
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DaysBetween counts whole calendar days from the start of from's day up to to.
func (c *Calendar) DaysBetween(from, to time.Time) int {
	return int(to.Sub(c.StartOfDay(from)) / (24 * time.Hour))
}

// ParseInstallment parses a "YYYY/MM" label into the first of that month.
func (c *Calendar) ParseInstallment(label string) (time.Time, error) {
	return c.InstallmentDay(label, 1)
}

// InstallmentDay returns midnight on the given day of an installment month.
func (c *Calendar) InstallmentDay(label string, day int) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(label), "/")
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("invalid installment label %q", label)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid installment year %q: %w", label, err)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("invalid installment month %q", label)
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, c.loc), nil
}

// InstallmentLabel formats t as a "YYYY/MM" label.
func (c *Calendar) InstallmentLabel(t time.Time) string {
	return t.In(c.loc).Format("2006/01")
}

// ParseDate parses a "YYYY/MM/DD" (or "YYYY-MM-DD") date at midnight.
func (c *Calendar) ParseDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
	t, err := time.ParseInLocation("2006/01/02", s, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY/MM/DD: %w", s, err)
	}
	return t, nil
}
