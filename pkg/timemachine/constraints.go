package timemachine

import (
	"fmt"
	"time"
)

// Constraints narrows the target of a JumpToNext call. Every field is
// optional: the zero value means unconstrained (empty string for Month and
// Weekday, 0 for DayOfMonth, nil for the time-of-day fields).
type Constraints struct {
	// Month is a full English month name or 3-letter abbreviation.
	Month string

	// Weekday is a full English weekday name or 3-letter abbreviation.
	Weekday string

	// DayOfMonth is 1-31. Days that do not exist in the resolved month
	// clamp to that month's last day.
	DayOfMonth int

	// Hour (0-23), Minute and Second (0-59) overwrite the corresponding
	// component of the resolved date. Unset fields carry over whatever the
	// earlier resolution steps produced.
	Hour   *int
	Minute *int
	Second *int
}

// jumpSpec holds validated constraint values. Time-of-day fields use -1 for
// "unset" so the resolution loop does not have to chase pointers.
type jumpSpec struct {
	month      time.Month
	hasMonth   bool
	weekday    time.Weekday
	hasWeekday bool
	day        int
	hour       int
	minute     int
	second     int
}

func (c Constraints) compile() (jumpSpec, error) {
	spec := jumpSpec{hour: -1, minute: -1, second: -1}

	if c.Month != "" {
		m, err := parseMonth(c.Month)
		if err != nil {
			return spec, err
		}
		spec.month, spec.hasMonth = m, true
	}
	if c.Weekday != "" {
		wd, err := parseWeekday(c.Weekday)
		if err != nil {
			return spec, err
		}
		spec.weekday, spec.hasWeekday = wd, true
	}
	if c.DayOfMonth != 0 {
		if c.DayOfMonth < 1 || c.DayOfMonth > 31 {
			return spec, fmt.Errorf("%w: day of month %d out of range 1-31", ErrInvalidInput, c.DayOfMonth)
		}
		spec.day = c.DayOfMonth
	}
	if c.Hour != nil {
		if *c.Hour < 0 || *c.Hour > 23 {
			return spec, fmt.Errorf("%w: hour %d out of range 0-23", ErrInvalidInput, *c.Hour)
		}
		spec.hour = *c.Hour
	}
	if c.Minute != nil {
		if *c.Minute < 0 || *c.Minute > 59 {
			return spec, fmt.Errorf("%w: minute %d out of range 0-59", ErrInvalidInput, *c.Minute)
		}
		spec.minute = *c.Minute
	}
	if c.Second != nil {
		if *c.Second < 0 || *c.Second > 59 {
			return spec, fmt.Errorf("%w: second %d out of range 0-59", ErrInvalidInput, *c.Second)
		}
		spec.second = *c.Second
	}
	return spec, nil
}

// ResolveJump computes the next time strictly after now that satisfies every
// field set in c.
//
// Constraints resolve in fixed precedence, each step operating on the result
// of the previous one:
//
//  1. Month: advance to the next occurrence of that month. Being in the
//     month already satisfies the constraint at this step.
//  2. Day of month: pin the day within the candidate's month; if the result
//     would not be after now, or the day does not exist in that month, hop
//     to the next month (clamping to its last day).
//  3. Weekday: advance 0-6 days to the requested weekday; a zero-day move
//     that would not land after now becomes a 7-day move.
//  4. Hour/minute/second: each set field overwrites that component.
//
// If the final candidate still is not after now (only time-of-day fields
// were given and that time already passed today), one corrective rollover is
// applied: +7 days when a weekday was constrained, else +1 day.
func ResolveJump(now time.Time, c Constraints) (time.Time, error) {
	spec, err := c.compile()
	if err != nil {
		return time.Time{}, err
	}

	now = now.Truncate(time.Second)
	cand := now

	if spec.hasMonth {
		cand = nextMonthOccurrence(cand, spec.month)
	}
	if spec.day > 0 {
		cand = resolveDayOfMonth(now, cand, spec.day)
	}
	if spec.hasWeekday {
		next := nextWeekdayOccurrence(cand, spec.weekday)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}
		cand = next
	}

	h, m, s := cand.Hour(), cand.Minute(), cand.Second()
	if spec.hour >= 0 {
		h = spec.hour
	}
	if spec.minute >= 0 {
		m = spec.minute
	}
	if spec.second >= 0 {
		s = spec.second
	}
	cand = time.Date(cand.Year(), cand.Month(), cand.Day(), h, m, s, 0, cand.Location())

	if !cand.After(now) {
		if spec.hasWeekday {
			cand = cand.AddDate(0, 0, 7)
		} else {
			cand = cand.AddDate(0, 0, 1)
		}
	}
	return cand, nil
}

// resolveDayOfMonth pins day within cand's month, hopping to the following
// month when the day does not exist there or the pinned date would not be
// strictly after now. The hop clamps to the target month's last day.
func resolveDayOfMonth(now, cand time.Time, day int) time.Time {
	year, month := cand.Year(), cand.Month()

	if day <= daysIn(year, month) {
		pinned := time.Date(year, month, day, cand.Hour(), cand.Minute(), cand.Second(), 0, cand.Location())
		if pinned.After(now) {
			return pinned
		}
	}

	year, month = nextMonth(year, month)
	d := day
	if last := daysIn(year, month); d > last {
		d = last
	}
	return time.Date(year, month, d, cand.Hour(), cand.Minute(), cand.Second(), 0, cand.Location())
}

func nextMonth(year int, m time.Month) (int, time.Month) {
	if m == time.December {
		return year + 1, time.January
	}
	return year, m + 1
}
