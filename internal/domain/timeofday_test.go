package domain

import (
	"errors"
	"testing"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		hour   int
		minute int
	}{
		{"9:00am", 9, 0},
		{"9:05am", 9, 5},
		{"10:30am", 10, 30},
		{"12:00am", 0, 0},
		{"12:00pm", 12, 0},
		{"12:59pm", 12, 59},
		{"1:07pm", 13, 7},
		{"11:45pm", 23, 45},
		{" 9:15AM ", 9, 15},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if err != nil {
			t.Errorf("ParseClock(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got.Hour != tt.hour || got.Minute != tt.minute {
			t.Errorf("ParseClock(%q) = %d:%d, want %d:%d", tt.in, got.Hour, got.Minute, tt.hour, tt.minute)
		}
	}
}

func TestParseClockInvalid(t *testing.T) {
	for _, in := range []string{"", "900am", "9:00", "13:00pm", "0:30am", "9:60am", "x:00am", "9:xxpm"} {
		_, err := ParseClock(in)
		if err == nil {
			t.Errorf("ParseClock(%q): expected error, got nil", in)
			continue
		}
		if !errors.Is(err, ErrTimeParse) {
			t.Errorf("ParseClock(%q): error %v is not ErrTimeParse", in, err)
		}
	}
}

func TestTimeOfDayRoundTrip(t *testing.T) {
	// Covers 1-digit and 2-digit hours; minutes under 10 must come back
	// zero-padded.
	tests := []struct {
		in  string
		out string
	}{
		{"9:00am", "9:00am"},
		{"9:5am", "9:05am"},
		{"09:05am", "9:05am"},
		{"10:30am", "10:30am"},
		{"12:01am", "12:01am"},
		{"12:30pm", "12:30pm"},
		{"4:9pm", "4:09pm"},
	}

	for _, tt := range tests {
		parsed, err := ParseClock(tt.in)
		if err != nil {
			t.Fatalf("ParseClock(%q): %v", tt.in, err)
		}
		if got := parsed.String(); got != tt.out {
			t.Errorf("ParseClock(%q).String() = %q, want %q", tt.in, got, tt.out)
		}
		again, err := ParseClock(parsed.String())
		if err != nil {
			t.Fatalf("re-parse %q: %v", parsed.String(), err)
		}
		if again != parsed {
			t.Errorf("round trip of %q: got %+v, want %+v", tt.in, again, parsed)
		}
	}
}

func TestTimeOfDayOrdering(t *testing.T) {
	nine := TimeOfDay{Hour: 9, Minute: 0}
	nineOhFive := TimeOfDay{Hour: 9, Minute: 5}
	noon := TimeOfDay{Hour: 12, Minute: 0}

	if !nine.Before(nineOhFive) {
		t.Error("9:00 should be before 9:05")
	}
	if !noon.After(nineOhFive) {
		t.Error("12:00 should be after 9:05")
	}
	if nine.After(nine) || nine.Before(nine) {
		t.Error("a time must not be before or after itself")
	}
}
