// Package profile puts a single school in context: where each of its
// metrics falls among schools of the same phase, how it compares with the
// national and local-authority averages, and how many schools share its
// trust.
package profile

import (
	"math"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/stats"
)

const noData = "No data"

var (
	secondaryMetrics = []school.Metric{
		school.MetricAttainment8, school.MetricProgress8, school.MetricP8Prev,
		school.MetricBasics94, school.MetricBasics95, school.MetricFSM, school.MetricPupils,
	}
	primaryMetrics = []school.Metric{
		school.MetricKS2RWMExp, school.MetricKS2RWMHigh, school.MetricKS2ReadAvg,
		school.MetricKS2WritExp, school.MetricKS2MatExp, school.MetricFSM, school.MetricPupils,
	}
	otherMetrics = []school.Metric{school.MetricFSM, school.MetricPupils}
)

// MetricContext ranks one metric of a school against its phase peers.
// Decile and Percentile are nil when the school has no value or no peer
// reports the metric.
type MetricContext struct {
	Metric     school.Metric `json:"metric"`
	Value      *float64      `json:"value"`
	Decile     *int          `json:"decile"`
	DecileBand string        `json:"decile_band,omitempty"`
	Percentile *int          `json:"percentile"`
	Band       string        `json:"band"`
	Narrative  string        `json:"narrative,omitempty"`
	Peers      int           `json:"peers"`
}

// Comparison is a headline metric against national and LA averages, both
// taken over schools of the same phase.
type Comparison struct {
	Metric   school.Metric `json:"metric"`
	Value    *float64      `json:"value"`
	National *float64      `json:"national"`
	LA       *float64      `json:"la"`
	// LAReporting is how many LA peers report the metric.
	LAReporting int `json:"la_reporting"`
}

// Inspection puts an Ofsted rating in context. SameRatingPct is the share
// of inspected same-phase schools nationally holding the same rating, nil
// when none are inspected. LAGoodOrBetterPct is the share of the school's
// LA peers rated Good or Outstanding, over all peers whether inspected or
// not, and is only set when the LA has more than two peers.
type Inspection struct {
	Rating            string `json:"rating"`
	SameRatingPct     *int   `json:"same_rating_pct"`
	LAGoodOrBetterPct *int   `json:"la_good_or_better_pct"`
}

type Profile struct {
	URN          school.URN      `json:"urn"`
	Name         string          `json:"name"`
	Phase        string          `json:"phase"`
	Ofsted       string          `json:"ofsted"`
	Metrics      []MetricContext `json:"metrics"`
	Headline     *Comparison     `json:"headline,omitempty"`
	Inspection   *Inspection     `json:"inspection,omitempty"`
	LAPeers      int             `json:"la_peers"`
	TrustSchools int             `json:"trust_schools"`
	Occupancy    *int            `json:"occupancy,omitempty"`
}

// Build contextualises s against ds. s need not belong to ds.
func Build(ds *dataset.Dataset, s *school.School) Profile {
	p := Profile{
		URN:    s.URN,
		Name:   s.Name,
		Phase:  s.Phase,
		Ofsted: OfstedLabel(s.Ofsted),
	}

	table := ds.Deciles()
	for _, m := range metricsFor(s.Phase) {
		p.Metrics = append(p.Metrics, contextualise(table.Ranker(s.Phase, m), m, s.Metric(m)))
	}

	var laPeers []school.School
	ratings := make(map[string]int)
	inspected := 0
	for _, x := range ds.All() {
		if x.Phase == s.Phase {
			if inspectedRating(x.Ofsted) {
				ratings[x.Ofsted]++
				inspected++
			}
			if x.LA == s.LA && s.LA != "" {
				laPeers = append(laPeers, x)
			}
		}
		if s.Trust != "" && x.Trust == s.Trust {
			p.TrustSchools++
		}
	}
	p.LAPeers = len(laPeers)

	if inspectedRating(s.Ofsted) {
		p.Inspection = &Inspection{Rating: s.Ofsted}
		if inspected > 0 {
			p.Inspection.SameRatingPct = percentOf(ratings[s.Ofsted], inspected)
		}
		if len(laPeers) > 2 {
			good := 0
			for _, x := range laPeers {
				if x.Ofsted == school.OfstedOutstanding || x.Ofsted == school.OfstedGood {
					good++
				}
			}
			p.Inspection.LAGoodOrBetterPct = percentOf(good, len(laPeers))
		}
	}

	switch {
	case isSecondary(s.Phase):
		p.Headline = compare(table.Ranker(s.Phase, school.MetricAttainment8), laPeers, school.MetricAttainment8, s)
	case s.Phase == school.PhasePrimary:
		p.Headline = compare(table.Ranker(s.Phase, school.MetricKS2RWMExp), laPeers, school.MetricKS2RWMExp, s)
	}

	if s.Pupils != nil && s.Capacity != nil && *s.Capacity > 0 {
		occ := int(math.Round(*s.Pupils / *s.Capacity * 100))
		p.Occupancy = &occ
	}
	return p
}

func inspectedRating(rating string) bool {
	return OfstedLabel(rating) == rating
}

func percentOf(n, of int) *int {
	v := int(math.Round(float64(n) / float64(of) * 100))
	return &v
}

func contextualise(r *stats.Ranker, m school.Metric, v *float64) MetricContext {
	mc := MetricContext{Metric: m, Value: v, Band: noData, Peers: r.Len()}
	if d, ok := r.Decile(v); ok {
		mc.Decile = &d
		mc.DecileBand = stats.DecileBand(d)
	}
	if pct, ok := r.PercentileRank(v); ok {
		mc.Percentile = &pct
		mc.Band = stats.Band(pct)
		mc.Narrative = stats.NarrativeBand(pct)
	}
	return mc
}

func compare(national *stats.Ranker, laPeers []school.School, m school.Metric, s *school.School) *Comparison {
	c := &Comparison{Metric: m, Value: s.Metric(m)}
	if avg, ok := national.Mean(); ok {
		c.National = &avg
	}
	laValues := school.Values(laPeers, m)
	c.LAReporting = len(laValues)
	if avg, ok := stats.Mean(laValues); ok {
		c.LA = &avg
	}
	return c
}

func metricsFor(phase string) []school.Metric {
	switch {
	case isSecondary(phase):
		return secondaryMetrics
	case phase == school.PhasePrimary:
		return primaryMetrics
	default:
		return otherMetrics
	}
}

func isSecondary(phase string) bool {
	return phase == school.PhaseSecondary || phase == school.PhaseAllThrough
}

// OfstedLabel is the display form of an Ofsted rating.
func OfstedLabel(rating string) string {
	switch rating {
	case "", school.OfstedNone, "null":
		return "Not yet inspected"
	}
	return rating
}
