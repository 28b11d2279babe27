// Package stats ranks a value within a population of observations.
//
// Percentile and decile count only observations strictly less than the
// value, so ties never lift a school's rank and the population minimum sits
// at percentile 0 and decile 1.
package stats

import (
	"math"
	"sort"
)

// PercentileRank returns round(100 * count(p < value) / len(pop)). It
// reports false when value is nil or pop is empty.
func PercentileRank(value *float64, pop []float64) (int, bool) {
	if value == nil || len(pop) == 0 {
		return 0, false
	}
	return percentile(countBelow(*value, pop), len(pop)), true
}

// Decile returns clamp(ceil(10 * count(p < value) / len(pop)), 1, 10).
func Decile(value *float64, pop []float64) (int, bool) {
	if value == nil || len(pop) == 0 {
		return 0, false
	}
	return decile(countBelow(*value, pop), len(pop)), true
}

// Mean reports false for an empty population.
func Mean(pop []float64) (float64, bool) {
	if len(pop) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range pop {
		sum += v
	}
	return sum / float64(len(pop)), true
}

// Median sorts a copy of pop; the caller's slice is left untouched.
func Median(pop []float64) (float64, bool) {
	if len(pop) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(pop))
	copy(sorted, pop)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], true
	}
	return (sorted[mid-1] + sorted[mid]) / 2, true
}

func countBelow(v float64, pop []float64) int {
	n := 0
	for _, p := range pop {
		if p < v {
			n++
		}
	}
	return n
}

func percentile(below, n int) int {
	return int(math.Round(100 * float64(below) / float64(n)))
}

func decile(below, n int) int {
	d := int(math.Ceil(10 * float64(below) / float64(n)))
	return min(10, max(1, d))
}

// Band is the short label shown next to a percentile.
func Band(percentile int) string {
	switch {
	case percentile >= 90:
		return "Top 10%"
	case percentile >= 75:
		return "Top 25%"
	case percentile >= 50:
		return "Above average"
	case percentile >= 25:
		return "Below average"
	default:
		return "Bottom 25%"
	}
}

// NarrativeBand phrases a national percentile for report prose.
func NarrativeBand(percentile int) string {
	switch {
	case percentile >= 95:
		return "among the highest performing in the country"
	case percentile >= 90:
		return "in the top 10% nationally"
	case percentile >= 80:
		return "in the top 20% nationally"
	case percentile >= 75:
		return "in the top quartile nationally"
	case percentile >= 60:
		return "above the national average"
	case percentile >= 40:
		return "broadly in line with the national average"
	case percentile >= 25:
		return "below the national average"
	case percentile >= 10:
		return "in the lowest quartile nationally"
	default:
		return "significantly below the national average"
	}
}

// DecileBand groups deciles into Top (8-10), Mid (5-7) and Low (1-4).
func DecileBand(decile int) string {
	switch {
	case decile >= 8:
		return "Top"
	case decile >= 5:
		return "Mid"
	default:
		return "Low"
	}
}
