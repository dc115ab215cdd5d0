package timemachine

import (
	"fmt"
	"strings"
	"time"
)

// parseMonth resolves a month name to its time.Month value. Matching is
// case-insensitive against full English names and 3-letter abbreviations.
func parseMonth(name string) (time.Month, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for m := time.January; m <= time.December; m++ {
		full := strings.ToLower(m.String())
		if n == full || n == full[:3] {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown month %q", ErrInvalidInput, name)
}

// parseWeekday resolves a weekday name with the same matching policy as
// parseMonth.
func parseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		full := strings.ToLower(wd.String())
		if n == full || n == full[:3] {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, name)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, m time.Month) int {
	// Day 0 of the following month normalizes to the last day of m.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nextMonthOccurrence advances from to the next occurrence of month m,
// preserving day and time of day. If from is already in m it is returned
// unchanged; the caller decides whether "current" satisfies the constraint.
// A day of month that does not exist in the target month clamps to that
// month's last day.
func nextMonthOccurrence(from time.Time, m time.Month) time.Time {
	if from.Month() == m {
		return from
	}
	year := from.Year()
	if m < from.Month() {
		year++
	}
	day := from.Day()
	if last := daysIn(year, m); day > last {
		day = last
	}
	return time.Date(year, m, day, from.Hour(), from.Minute(), from.Second(), 0, from.Location())
}

// nextWeekdayOccurrence advances from by the minimal non-negative number of
// days (0-6) to land on wd. Callers that need a strictly future result add a
// further 7 days when the zero-day move is not acceptable.
func nextWeekdayOccurrence(from time.Time, wd time.Weekday) time.Time {
	days := (int(wd) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, days)
}
