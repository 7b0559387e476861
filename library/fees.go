package library

import (
	"math"
	"time"

	"library-service/config"
)

// daysOverdue counts whole calendar days between the due date and the
// as-of date, never negative. Both are truncated to UTC dates so the
// time of day a loan was taken out does not shift the count.
func daysOverdue(due, asOf time.Time) int {
	days := int(startOfDay(asOf).Sub(startOfDay(due)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// lateFee applies the fee schedule: $0.50/day for the first week
// overdue, $1.00/day after, capped at the maximum fee.
func lateFee(daysOverdue int) float64 {
	if daysOverdue <= 0 {
		return 0
	}

	firstWeek := daysOverdue
	if firstWeek > 7 {
		firstWeek = 7
	}
	fee := float64(firstWeek) * config.DailyRateFirstWeek
	if daysOverdue > 7 {
		fee += float64(daysOverdue-7) * config.DailyRateAfterWeek
	}

	return round2(math.Min(fee, config.MaxLateFee))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
