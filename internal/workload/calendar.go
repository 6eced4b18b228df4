/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package workload

import "time"

type Week struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// WeekStart returns midnight of the Monday of t's week in t's location.
// Sunday counts as day 7 so it rolls back six days, not forward one.
func WeekStart(t time.Time) time.Time {
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return time.Date(t.Year(), t.Month(), t.Day()-(weekday-1), 0, 0, 0, 0, t.Location())
}

// Calendar builds n consecutive weeks starting at the Monday of now. Each
// End is the last millisecond of the seventh day.
func Calendar(now time.Time, n int) []Week {
	if n <= 0 {
		return nil
	}
	monday := WeekStart(now)
	weeks := make([]Week, n)
	for i := range weeks {
		start := time.Date(monday.Year(), monday.Month(), monday.Day()+7*i, 0, 0, 0, 0, monday.Location())
		end := time.Date(start.Year(), start.Month(), start.Day()+6, 23, 59, 59, int(999*time.Millisecond), start.Location())
		weeks[i] = Week{Index: i, Start: start, End: end}
	}
	return weeks
}

// dayNumber maps t to a day count that ignores clock time and DST shifts.
func dayNumber(t time.Time) int64 {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix() / 86400
}
