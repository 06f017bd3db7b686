package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Frequency classes for recurring backups.
const (
	FreqHourly  = "hourly"
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// parseTimeOfDay parses "HH:MM" with strict range checks.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("hour out of range in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("minute out of range in %q", s)
	}
	return hour, minute, nil
}

// NextRunTime computes the next occurrence of a frequency/time-of-day pair
// relative to now, always strictly in the future. It returns the zero time
// and an error for malformed input or an unknown frequency.
func NextRunTime(frequency, timeOfDay string, now time.Time) (time.Time, error) {
	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}

	todayAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())

	switch frequency {
	case FreqHourly:
		// Advance one hour, then pin the minute field.
		next := now.Add(time.Hour)
		return time.Date(next.Year(), next.Month(), next.Day(), next.Hour(), minute, 0, 0, next.Location()), nil
	case FreqDaily:
		if todayAt.After(now) {
			return todayAt, nil
		}
		return todayAt.AddDate(0, 0, 1), nil
	case FreqWeekly:
		if !now.Before(todayAt) {
			return todayAt.AddDate(0, 0, 7), nil
		}
		return todayAt, nil
	case FreqMonthly:
		if now.Before(todayAt) {
			return todayAt, nil
		}
		return todayAt.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown frequency %q", frequency)
	}
}
