package service

import "time"

// Reporting days are calendar days in the shops' local timezone, which
// shifts by one hour during the summer-time period. The period starts on
// the last Sunday of March and ends on the last Sunday of October; the rule
// is applied at date granularity, matching how the reporting layer defines
// a day.

// seasonalOffsetHours returns the UTC offset in hours for a calendar date.
func seasonalOffsetHours(date time.Time) int {
	year := date.Year()
	start := lastSundayOf(year, time.March)
	end := lastSundayOf(year, time.October)

	d := time.Date(year, date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if !d.Before(start) && d.Before(end) {
		return 2
	}
	return 1
}

// lastSundayOf returns the last Sunday of the given month at midnight UTC.
func lastSundayOf(year int, month time.Month) time.Time {
	// Day 0 of the next month is the last day of this month.
	d := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Sunday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// dayWindow returns the UTC instant range [from, to) covering the local
// calendar date. Local midnight at UTC+N is N hours before UTC midnight.
func dayWindow(date time.Time) (time.Time, time.Time) {
	offset := seasonalOffsetHours(date)
	from := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC).
		Add(-time.Duration(offset) * time.Hour)
	return from, from.Add(24 * time.Hour)
}

// localDateOf maps a UTC instant back to the local calendar date it belongs
// to, as a midnight-UTC key suitable for the aggregate table.
func localDateOf(ts time.Time) time.Time {
	ts = ts.UTC()
	offset := seasonalOffsetHours(ts)
	local := ts.Add(time.Duration(offset) * time.Hour)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// metricDateKey normalizes an arbitrary timestamp to the midnight-UTC date
// key used across the aggregate table and the scheduler.
func metricDateKey(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
}
