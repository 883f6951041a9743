package allocation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

var timeLabelPattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// ValidTimeLabel reports whether s is an H:MM or HH:MM label between 00:00 and 23:59.
func ValidTimeLabel(s string) bool {
	return timeLabelPattern.MatchString(s)
}

// parseClock converts a time label into minutes since midnight.
func parseClock(label string) (int, error) {
	if !ValidTimeLabel(label) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, label)
	}
	hh, mm, _ := strings.Cut(label, ":")
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	return h*60 + m, nil
}

// formatClock renders minutes since midnight as H:MM, wrapping into the same day.
func formatClock(minutes int) string {
	minutes %= minutesPerDay
	if minutes < 0 {
		minutes += minutesPerDay
	}
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// AddMinutes shifts a time label by delta minutes. Results past midnight wrap
// around to the start of the day.
func AddMinutes(label string, delta int) (string, error) {
	m, err := parseClock(label)
	if err != nil {
		return "", err
	}
	return formatClock(m + delta), nil
}
