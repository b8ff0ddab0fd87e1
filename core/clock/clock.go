// Package clock models wall-clock times of day at minute granularity, the
// unit every charging start time is compared in.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// MinutesPerDay is the modulus of every time of day.
const MinutesPerDay = 24 * 60

// Time is an hour and minute of the day, 00:00 to 23:59.
type Time struct {
	Hour   int
	Minute int
}

// New builds a Time and rejects out of range components.
func New(hour, minute int) (Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return Time{}, fmt.Errorf("invalid time of day %02d:%02d", hour, minute)
	}
	return Time{Hour: hour, Minute: minute}, nil
}

// FromMinutes converts minutes since midnight, wrapping around the day.
func FromMinutes(m int) Time {
	m %= MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return Time{Hour: m / 60, Minute: m % 60}
}

// Of returns the time of day of t in t's location, seconds dropped.
func Of(t time.Time) Time {
	return Time{Hour: t.Hour(), Minute: t.Minute()}
}

// Minutes returns minutes since midnight.
func (t Time) Minutes() int { return t.Hour*60 + t.Minute }

// Add shifts t by d, truncated to whole minutes and wrapped around midnight.
func (t Time) Add(d time.Duration) Time {
	return FromMinutes(t.Minutes() + int(d/time.Minute))
}

// On places t on the calendar day of day, in day's location.
func (t Time) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

// String formats as HH:MM.
func (t Time) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler so config files can
// carry "HH:MM" values.
func (t *Time) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse reads any representation accepted by ParseMinutes.
func Parse(s string) (Time, error) {
	m, err := ParseMinutes(s)
	if err != nil {
		return Time{}, err
	}
	return FromMinutes(m), nil
}

// ParseMinutes normalizes a time of day to minutes since midnight. It accepts
// "HH:MM", "HH:MM:SS" and ISO-8601 durations such as "PT2H30M" measured from
// midnight. Seconds are dropped and the result is taken modulo one day.
func ParseMinutes(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty time of day")
	}
	if strings.HasPrefix(s, "PT") {
		return parseISO(s)
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day out of range %q", s)
	}
	return h*60 + m, nil
}

func parseISO(s string) (int, error) {
	if s == "PT" || strings.ContainsAny(s[len(s)-1:], "0123456789.") {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	d, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d.Negative || d.Years != 0 || d.Months != 0 || d.Weeks != 0 || d.Days != 0 {
		return 0, fmt.Errorf("duration %q is not a time of day", s)
	}
	return int(d.ToTimeDuration()/time.Minute) % MinutesPerDay, nil
}

// Equal reports whether a and b denote the same minute of the day, whatever
// their textual form.
func Equal(a, b string) (bool, error) {
	ma, err := ParseMinutes(a)
	if err != nil {
		return false, err
	}
	mb, err := ParseMinutes(b)
	if err != nil {
		return false, err
	}
	return ma == mb, nil
}
