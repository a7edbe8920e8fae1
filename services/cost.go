package services

import (
	"math"
	"time"
)

// CalculateCost 依實際停車秒數計費，四捨五入到小數兩位
func CalculateCost(start, end time.Time, pricePerHour float64) float64 {
	if !end.After(start) {
		return 0
	}
	hours := end.Sub(start).Seconds() / 3600.0
	return roundCents(hours * pricePerHour)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
