package dataset

import (
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/stats"
)

type peerKey struct {
	phase  string
	metric school.Metric
}

// DecileTable ranks a metric against schools of the same phase. Populations
// are fixed when the table is built.
type DecileTable struct {
	rankers map[peerKey]*stats.Ranker
	empty   *stats.Ranker
}

func NewDecileTable(schools []school.School) *DecileTable {
	pops := make(map[peerKey][]float64)
	for i := range schools {
		s := &schools[i]
		for _, m := range school.Metrics {
			if v := s.Metric(m); v != nil {
				k := peerKey{phase: s.Phase, metric: m}
				pops[k] = append(pops[k], *v)
			}
		}
	}
	t := &DecileTable{
		rankers: make(map[peerKey]*stats.Ranker, len(pops)),
		empty:   stats.NewRanker(nil),
	}
	for k, pop := range pops {
		t.rankers[k] = stats.NewRanker(pop)
	}
	return t
}

// Ranker returns the phase population for m. It is empty, never nil, when
// no school of that phase reports m.
func (t *DecileTable) Ranker(phase string, m school.Metric) *stats.Ranker {
	if r, ok := t.rankers[peerKey{phase: phase, metric: m}]; ok {
		return r
	}
	return t.empty
}

func (t *DecileTable) Decile(phase string, m school.Metric, v *float64) (int, bool) {
	return t.Ranker(phase, m).Decile(v)
}

func (t *DecileTable) PercentileRank(phase string, m school.Metric, v *float64) (int, bool) {
	return t.Ranker(phase, m).PercentileRank(v)
}
