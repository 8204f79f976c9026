package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// TimeOfDay is a wall-clock time with minute precision, normalized to a
// 24-hour scale. Schedules and device reports both use meridiem clock
// strings ("9:05am", "12:30pm"), so comparisons always go through this
// type instead of raw strings.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseClock parses "H:MMam", "HH:MMam", "H:MMpm" or "HH:MMpm".
// Minutes may be written with any width in the source but must fit 0-59.
func ParseClock(s string) (TimeOfDay, error) {
	raw := strings.ToLower(strings.TrimSpace(s))

	var meridiem string
	switch {
	case strings.HasSuffix(raw, "am"):
		meridiem = "am"
	case strings.HasSuffix(raw, "pm"):
		meridiem = "pm"
	default:
		return TimeOfDay{}, fmt.Errorf("%w: %q missing am/pm suffix", ErrTimeParse, s)
	}
	raw = strings.TrimSuffix(raw, meridiem)

	hourStr, minStr, ok := strings.Cut(raw, ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q missing ':' separator", ErrTimeParse, s)
	}

	hour, err := strconv.Atoi(hourStr)
	if err != nil || hour < 1 || hour > 12 {
		return TimeOfDay{}, fmt.Errorf("%w: %q has invalid hour", ErrTimeParse, s)
	}
	minute, err := strconv.Atoi(minStr)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q has invalid minute", ErrTimeParse, s)
	}

	if meridiem == "am" && hour == 12 {
		hour = 0
	}
	if meridiem == "pm" && hour != 12 {
		hour += 12
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders the meridiem form with the minute zero-padded to two
// digits, e.g. "9:05am". Parsing the result yields the same value.
func (t TimeOfDay) String() string {
	meridiem := "am"
	hour := t.Hour
	switch {
	case hour == 0:
		hour = 12
	case hour == 12:
		meridiem = "pm"
	case hour > 12:
		hour -= 12
		meridiem = "pm"
	}
	return fmt.Sprintf("%d:%02d%s", hour, t.Minute, meridiem)
}

func (t TimeOfDay) minutes() int { return t.Hour*60 + t.Minute }

// After reports whether t is strictly later in the day than other.
func (t TimeOfDay) After(other TimeOfDay) bool { return t.minutes() > other.minutes() }

// Before reports whether t is strictly earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool { return t.minutes() < other.minutes() }

// MarshalText lets TimeOfDay round-trip through JSON and YAML as its
// clock-string form.
func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(data []byte) error {
	parsed, err := ParseClock(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
