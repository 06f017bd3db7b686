package schedule

import (
	"testing"
	"time"
)

func TestNextRunTimeDaily(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local) // Tuesday

	next, err := NextRunTime(FreqDaily, "14:30", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 3, 10, 14, 30, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v (later today)", next, want)
	}

	next, err = NextRunTime(FreqDaily, "02:00", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want = time.Date(2026, 3, 11, 2, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v (tomorrow)", next, want)
	}
}

func TestNextRunTimeHourly(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 50, 0, 0, time.Local)
	next, err := NextRunTime(FreqHourly, "00:05", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 3, 10, 11, 5, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextRunTimeWeeklyPastCutoff(t *testing.T) {
	// Wednesday 10:00 with a 02:00 cutoff: next run is next Wednesday 02:00.
	now := time.Date(2026, 3, 11, 10, 0, 0, 0, time.Local)
	if now.Weekday() != time.Wednesday {
		t.Fatalf("fixture is %v, want Wednesday", now.Weekday())
	}

	next, err := NextRunTime(FreqWeekly, "02:00", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 3, 18, 2, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextRunTimeWeeklyBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 11, 1, 0, 0, 0, time.Local)
	next, err := NextRunTime(FreqWeekly, "02:00", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 3, 11, 2, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v (same day)", next, want)
	}
}

func TestNextRunTimeMonthly(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.Local)

	next, err := NextRunTime(FreqMonthly, "02:00", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want := time.Date(2026, 4, 10, 2, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	next, err = NextRunTime(FreqMonthly, "23:00", now)
	if err != nil {
		t.Fatalf("next run: %v", err)
	}
	want = time.Date(2026, 3, 10, 23, 0, 0, 0, time.Local)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v (later today)", next, want)
	}
}

func TestNextRunTimeAlwaysFuture(t *testing.T) {
	times := []string{"00:00", "02:00", "12:30", "23:59"}
	nows := []time.Time{
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local),
		time.Date(2026, 6, 15, 12, 30, 0, 0, time.Local),
		time.Date(2026, 12, 31, 23, 59, 59, 0, time.Local),
	}
	for _, freq := range []string{FreqHourly, FreqDaily, FreqWeekly, FreqMonthly} {
		for _, tod := range times {
			for _, now := range nows {
				next, err := NextRunTime(freq, tod, now)
				if err != nil {
					t.Fatalf("%s %s at %v: %v", freq, tod, now, err)
				}
				if !next.After(now) {
					t.Errorf("%s %s at %v: next %v not strictly in the future", freq, tod, now, next)
				}
			}
		}
	}
}

func TestNextRunTimeInvalid(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		frequency string
		timeOfDay string
	}{
		{"hour too large", FreqDaily, "24:00"},
		{"minute too large", FreqDaily, "10:60"},
		{"malformed", FreqDaily, "ten thirty"},
		{"missing minute", FreqDaily, "10"},
		{"negative hour", FreqDaily, "-1:00"},
		{"unknown frequency", "fortnightly", "10:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			next, err := NextRunTime(tc.frequency, tc.timeOfDay, now)
			if err == nil {
				t.Fatal("expected error")
			}
			if !next.IsZero() {
				t.Errorf("next = %v, want zero time", next)
			}
		})
	}
}
