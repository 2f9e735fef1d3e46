package services

import (
	"math"
	"strconv"
	"time"
)

// DefaultOvertimeThreshold is the number of regular hours per entry when the
// server has not set overtime_threshold_hours.
const DefaultOvertimeThreshold = 8.0

// ComputeHours splits the worked time of an entry into regular and
// overtime hours. Unpaid breaks are not worked time. Results are rounded to
// hundredths of an hour.
func ComputeHours(start, end time.Time, unpaid time.Duration, threshold float64) (regular, overtime float64) {
	worked := end.Sub(start) - unpaid
	if worked < 0 {
		worked = 0
	}
	h := worked.Hours()
	if threshold <= 0 {
		threshold = DefaultOvertimeThreshold
	}
	regular = math.Min(h, threshold)
	overtime = math.Max(0, h-threshold)
	return round2(regular), round2(overtime)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func parseThreshold(v string, ok bool) float64 {
	if !ok {
		return DefaultOvertimeThreshold
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return DefaultOvertimeThreshold
	}
	return f
}
