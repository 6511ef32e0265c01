package dbbind

import (
	"fmt"
	"time"
)

// Date is a calendar date without a time-of-day component.
// Drivers usually surface DATE columns as time.Time at midnight; the decoder
// converts those into Date so that entities don't carry a bogus clock.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf truncates t to its calendar date in t's location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses a date in ISO "2006-01-02" form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("rowbind: parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time returns the date at midnight in the given location.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// TimeOfDay is a clock time without a date component.
// Drivers surface TIME columns either as time.Time on a synthetic date, as a
// duration since midnight, or as a string; the decoder accepts all three.
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
}

// TimeOfDayOf extracts the clock reading of t in t's location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	hour, minute, sec := t.Clock()
	return TimeOfDay{Hour: hour, Minute: minute, Second: sec, Nanosecond: t.Nanosecond()}
}

// TimeOfDayFromDuration interprets d as an offset since midnight.
func TimeOfDayFromDuration(d time.Duration) (TimeOfDay, error) {
	if d < 0 || d >= 24*time.Hour {
		return TimeOfDay{}, fmt.Errorf("rowbind: duration %v is out of the clock range", d)
	}
	return TimeOfDay{
		Hour:       int(d / time.Hour),
		Minute:     int(d % time.Hour / time.Minute),
		Second:     int(d % time.Minute / time.Second),
		Nanosecond: int(d % time.Second),
	}, nil
}

// ParseTimeOfDay parses a clock time in "15:04:05" or "15:04:05.999999999"
// form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("rowbind: parse time of day %q", s)
}

// Duration returns the offset since midnight.
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour +
		time.Duration(t.Minute)*time.Minute +
		time.Duration(t.Second)*time.Second +
		time.Duration(t.Nanosecond)
}

func (t TimeOfDay) String() string {
	if t.Nanosecond == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanosecond)
}
