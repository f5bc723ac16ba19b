package availability

import (
	"fmt"
	"strconv"
)

// MinuteOfDay parses an "HH:MM" clock string into minutes since midnight.
// Clock strings come from validated rows, so a malformed value is a data
// contract violation and returns an error rather than a guess.
func MinuteOfDay(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, fmt.Errorf("malformed clock time %q", clock)
	}
	h, err := strconv.Atoi(clock[:2])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", clock)
	}
	m, err := strconv.Atoi(clock[3:])
	if err != nil {
		return 0, fmt.Errorf("malformed clock time %q", clock)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock time %q out of range", clock)
	}
	return h*60 + m, nil
}

// FormatMinute renders minutes since midnight as zero-padded "HH:MM", so the
// lexical order of formatted values matches chronological order.
func FormatMinute(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

// ValidClock reports whether s is a well-formed "HH:MM" clock string.
func ValidClock(s string) bool {
	_, err := MinuteOfDay(s)
	return err == nil
}
