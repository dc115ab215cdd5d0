package timemachine

import (
	"errors"
	"testing"
	"time"
)

func intp(v int) *int { return &v }

func TestResolveJump(t *testing.T) {
	at := func(y int, m time.Month, d, hh, mm, ss int) time.Time {
		return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
	}

	tests := []struct {
		name string
		now  time.Time
		c    Constraints
		want time.Time
	}{
		{
			// 2026-02-01 is a Sunday; month clamp, day pin, weekday hop,
			// then hour overwrite with minute preserved.
			name: "month day weekday hour combined",
			now:  at(2026, time.January, 31, 14, 30, 0),
			c:    Constraints{Month: "Feb", DayOfMonth: 1, Weekday: "Monday", Hour: intp(10)},
			want: at(2026, time.February, 2, 10, 30, 0),
		},
		{
			name: "hour already passed rolls to tomorrow",
			now:  at(2026, time.January, 15, 3, 0, 0),
			c:    Constraints{Hour: intp(2)},
			want: at(2026, time.January, 16, 2, 0, 0),
		},
		{
			name: "hour still ahead stays today",
			now:  at(2026, time.January, 15, 3, 0, 0),
			c:    Constraints{Hour: intp(8)},
			want: at(2026, time.January, 15, 8, 0, 0),
		},
		{
			name: "empty constraints advance one day",
			now:  at(2026, time.June, 1, 9, 0, 0),
			c:    Constraints{},
			want: at(2026, time.June, 2, 9, 0, 0),
		},
		{
			name: "weekday matching today advances a full week",
			now:  at(2026, time.January, 15, 10, 0, 0), // Thursday
			c:    Constraints{Weekday: "Thursday"},
			want: at(2026, time.January, 22, 10, 0, 0),
		},
		{
			name: "weekday tomorrow",
			now:  at(2026, time.January, 15, 10, 0, 0),
			c:    Constraints{Weekday: "fri"},
			want: at(2026, time.January, 16, 10, 0, 0),
		},
		{
			name: "weekday with passed hour rolls a week",
			now:  at(2026, time.January, 15, 10, 0, 0), // Thursday
			c:    Constraints{Weekday: "Thursday", Hour: intp(9)},
			want: at(2026, time.January, 22, 9, 0, 0),
		},
		{
			name: "day of month later this month",
			now:  at(2026, time.January, 15, 10, 0, 0),
			c:    Constraints{DayOfMonth: 20},
			want: at(2026, time.January, 20, 10, 0, 0),
		},
		{
			name: "day of month already passed hops a month",
			now:  at(2026, time.January, 15, 10, 0, 0),
			c:    Constraints{DayOfMonth: 10},
			want: at(2026, time.February, 10, 10, 0, 0),
		},
		{
			name: "day of month equal to today hops a month",
			now:  at(2026, time.January, 15, 10, 0, 0),
			c:    Constraints{DayOfMonth: 15},
			want: at(2026, time.February, 15, 10, 0, 0),
		},
		{
			name: "day 31 missing from current month clamps in next",
			now:  at(2026, time.April, 10, 12, 0, 0),
			c:    Constraints{DayOfMonth: 31},
			want: at(2026, time.May, 31, 12, 0, 0),
		},
		{
			name: "day 31 hop from january clamps to february 28",
			now:  at(2026, time.January, 31, 12, 0, 0),
			c:    Constraints{DayOfMonth: 31},
			want: at(2026, time.February, 28, 12, 0, 0),
		},
		{
			name: "month wraps year boundary",
			now:  at(2026, time.November, 5, 8, 0, 0),
			c:    Constraints{Month: "February"},
			want: at(2027, time.February, 5, 8, 0, 0),
		},
		{
			name: "same month with future hour stays put",
			now:  at(2026, time.January, 15, 3, 0, 0),
			c:    Constraints{Month: "January", Hour: intp(12)},
			want: at(2026, time.January, 15, 12, 0, 0),
		},
		{
			name: "same month with passed hour rolls one day",
			now:  at(2026, time.January, 15, 3, 0, 0),
			c:    Constraints{Month: "Jan", Hour: intp(2)},
			want: at(2026, time.January, 16, 2, 0, 0),
		},
		{
			// Day step hops January->February (clamping 31 to 28, a
			// Saturday), then the weekday search hops again into March.
			name: "day and weekday force two forward hops",
			now:  at(2026, time.January, 31, 14, 30, 0),
			c:    Constraints{DayOfMonth: 31, Weekday: "Monday"},
			want: at(2026, time.March, 2, 14, 30, 0),
		},
		{
			name: "minute and second overwrite, hour preserved",
			now:  at(2026, time.January, 15, 10, 20, 30),
			c:    Constraints{Minute: intp(45), Second: intp(0)},
			want: at(2026, time.January, 15, 10, 45, 0),
		},
		{
			name: "midnight hour is valid",
			now:  at(2026, time.January, 15, 10, 0, 0),
			c:    Constraints{Hour: intp(0), Minute: intp(0), Second: intp(0)},
			want: at(2026, time.January, 16, 0, 0, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveJump(tt.now, tt.c)
			if err != nil {
				t.Fatalf("ResolveJump() error = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ResolveJump() = %v, want %v", got, tt.want)
			}
			if !got.After(tt.now) {
				t.Errorf("ResolveJump() = %v is not strictly after now %v", got, tt.now)
			}
		})
	}
}

func TestResolveJump_ConstraintSatisfaction(t *testing.T) {
	// Every specified field must match exactly in the result.
	now := time.Date(2026, time.March, 10, 18, 45, 12, 0, time.UTC)
	c := Constraints{
		Month:      "jul",
		DayOfMonth: 14,
		Hour:       intp(6),
		Minute:     intp(30),
	}

	got, err := ResolveJump(now, c)
	if err != nil {
		t.Fatalf("ResolveJump() error = %v", err)
	}
	if got.Month() != time.July {
		t.Errorf("month = %v, want July", got.Month())
	}
	if got.Day() != 14 {
		t.Errorf("day = %d, want 14", got.Day())
	}
	if got.Hour() != 6 || got.Minute() != 30 {
		t.Errorf("time of day = %02d:%02d, want 06:30", got.Hour(), got.Minute())
	}
	if got.Second() != 12 {
		t.Errorf("unspecified second = %d, want carried-over 12", got.Second())
	}
}

func TestResolveJump_InvalidInput(t *testing.T) {
	now := time.Date(2026, time.January, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		c    Constraints
	}{
		{"bad month", Constraints{Month: "Fakeuary"}},
		{"bad weekday", Constraints{Weekday: "Noday"}},
		{"day too large", Constraints{DayOfMonth: 32}},
		{"day negative", Constraints{DayOfMonth: -3}},
		{"hour too large", Constraints{Hour: intp(24)}},
		{"minute too large", Constraints{Minute: intp(60)}},
		{"second negative", Constraints{Second: intp(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveJump(now, tt.c); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("ResolveJump() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestResolveJump_AlwaysStrictlyFuture(t *testing.T) {
	// Sweep a week of start times against a mix of constraint sets and
	// check the forward postcondition plus field satisfaction.
	sets := []Constraints{
		{},
		{Hour: intp(0)},
		{Hour: intp(23), Minute: intp(59), Second: intp(59)},
		{Weekday: "Monday"},
		{DayOfMonth: 1},
		{DayOfMonth: 31},
		{Month: "Feb", Weekday: "sun"},
		{Month: "Dec", DayOfMonth: 25, Hour: intp(8)},
	}

	start := time.Date(2026, time.February, 25, 13, 47, 9, 0, time.UTC)
	for dayOffset := 0; dayOffset < 7; dayOffset++ {
		now := start.AddDate(0, 0, dayOffset)
		for i, c := range sets {
			got, err := ResolveJump(now, c)
			if err != nil {
				t.Fatalf("set %d from %v: error = %v", i, now, err)
			}
			if !got.After(now) {
				t.Errorf("set %d from %v: result %v not strictly future", i, now, got)
			}
			if c.Hour != nil && got.Hour() != *c.Hour {
				t.Errorf("set %d from %v: hour = %d, want %d", i, now, got.Hour(), *c.Hour)
			}
			if c.Weekday != "" {
				wd, _ := parseWeekday(c.Weekday)
				if got.Weekday() != wd {
					t.Errorf("set %d from %v: weekday = %v, want %v", i, now, got.Weekday(), wd)
				}
			}
		}
	}
}
