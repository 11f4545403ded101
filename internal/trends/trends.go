// package trends computes aggregate statistics over glucose readings
package trends

import (
	"github.com/glucolink/glucolink/internal/models"
)

// Summarize computes average, highest, lowest and count over a window of readings.
//
// An empty window yields the zero [models.TrendSummary] with Count 0; the
// result never contains NaN.
func Summarize(readings []models.Reading) models.TrendSummary {
	if len(readings) == 0 {
		return models.TrendSummary{}
	}

	summary := models.TrendSummary{
		Highest: readings[0].Value,
		Lowest:  readings[0].Value,
		Count:   len(readings),
	}

	var total float64
	for _, reading := range readings {
		total += reading.Value
		if reading.Value > summary.Highest {
			summary.Highest = reading.Value
		}
		if reading.Value < summary.Lowest {
			summary.Lowest = reading.Value
		}
	}

	summary.Average = total / float64(len(readings))
	return summary
}

// InRange returns the readings whose value lies within [low, high] inclusive.
func InRange(readings []models.Reading, low, high float64) []models.Reading {
	var matched []models.Reading
	for _, reading := range readings {
		if reading.Value >= low && reading.Value <= high {
			matched = append(matched, reading)
		}
	}
	return matched
}

// TimeInRange returns the fraction of readings within [low, high], or 0 for
// an empty window.
func TimeInRange(readings []models.Reading, low, high float64) float64 {
	if len(readings) == 0 {
		return 0
	}
	return float64(len(InRange(readings, low, high))) / float64(len(readings))
}
