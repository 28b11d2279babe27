package stats

import (
	"math"
	"sort"
)

// Ranker is an immutable sorted population. It answers PercentileRank and
// Decile in O(log n) with results identical to the package functions, which
// makes it suitable for ranking every school against a fixed snapshot.
type Ranker struct {
	sorted []float64
}

// NewRanker copies and sorts pop. NaN observations are dropped.
func NewRanker(pop []float64) *Ranker {
	sorted := make([]float64, 0, len(pop))
	for _, v := range pop {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)
	return &Ranker{sorted: sorted}
}

// Len is the population size.
func (r *Ranker) Len() int { return len(r.sorted) }

func (r *Ranker) PercentileRank(value *float64) (int, bool) {
	if value == nil || len(r.sorted) == 0 {
		return 0, false
	}
	return percentile(r.below(*value), len(r.sorted)), true
}

func (r *Ranker) Decile(value *float64) (int, bool) {
	if value == nil || len(r.sorted) == 0 {
		return 0, false
	}
	return decile(r.below(*value), len(r.sorted)), true
}

func (r *Ranker) Mean() (float64, bool) { return Mean(r.sorted) }

func (r *Ranker) Median() (float64, bool) {
	n := len(r.sorted)
	if n == 0 {
		return 0, false
	}
	if n%2 == 1 {
		return r.sorted[n/2], true
	}
	return (r.sorted[n/2-1] + r.sorted[n/2]) / 2, true
}

// below counts observations strictly less than v.
func (r *Ranker) below(v float64) int {
	return sort.SearchFloat64s(r.sorted, v)
}
