package profile

import (
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/stats"
)

// MetricSummary describes the schools that report a metric.
type MetricSummary struct {
	Count  int      `json:"count"`
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
}

// Summary aggregates a set of schools, usually a search result.
type Summary struct {
	Total       int            `json:"total"`
	TotalPupils float64        `json:"total_pupils"`
	AvgPupils   *float64       `json:"avg_pupils"`
	Phases      map[string]int `json:"phases"`
	Ofsted      map[string]int `json:"ofsted"`
	Regions     map[string]int `json:"regions"`

	Attainment8 MetricSummary `json:"attainment8"`
	Progress8   MetricSummary `json:"progress8"`
	FSM         MetricSummary `json:"fsm_pct"`
	KS2RWM      MetricSummary `json:"ks2_rwm_exp"`
	KS2Read     MetricSummary `json:"ks2_read_avg"`
	KS2Maths    MetricSummary `json:"ks2_mat_exp"`

	LocalAuthorities int `json:"local_authorities"`
	Trusts           int `json:"trusts"`
}

func Summarize(schools []school.School) Summary {
	sum := Summary{
		Total:   len(schools),
		Phases:  make(map[string]int),
		Ofsted:  make(map[string]int),
		Regions: make(map[string]int),
	}
	las := make(map[string]struct{})
	trusts := make(map[string]struct{})
	reportingPupils := 0

	for i := range schools {
		s := &schools[i]
		if s.Phase != "" {
			sum.Phases[s.Phase]++
		}
		sum.Ofsted[OfstedLabel(s.Ofsted)]++
		if s.Region != "" {
			sum.Regions[s.Region]++
		}
		if s.Pupils != nil {
			sum.TotalPupils += *s.Pupils
			reportingPupils++
		}
		if s.LA != "" {
			las[s.LA] = struct{}{}
		}
		if s.Trust != "" {
			trusts[s.Trust] = struct{}{}
		}
	}
	if reportingPupils > 0 {
		avg := sum.TotalPupils / float64(reportingPupils)
		sum.AvgPupils = &avg
	}
	sum.LocalAuthorities = len(las)
	sum.Trusts = len(trusts)

	sum.Attainment8 = summarize(school.Values(schools, school.MetricAttainment8))
	sum.Progress8 = summarize(progressValues(schools))
	sum.FSM = summarize(school.Values(schools, school.MetricFSM))
	sum.KS2RWM = summarize(school.Values(schools, school.MetricKS2RWMExp))
	sum.KS2Read = summarize(school.Values(schools, school.MetricKS2ReadAvg))
	sum.KS2Maths = summarize(school.Values(schools, school.MetricKS2MatExp))
	return sum
}

func summarize(values []float64) MetricSummary {
	ms := MetricSummary{Count: len(values)}
	if mean, ok := stats.Mean(values); ok {
		ms.Mean = &mean
	}
	if median, ok := stats.Median(values); ok {
		ms.Median = &median
	}
	return ms
}

// progressValues uses the same progress8 with p8_prev fallback as the
// progress filter.
func progressValues(schools []school.School) []float64 {
	out := make([]float64, 0, len(schools))
	for i := range schools {
		if v := schools[i].Progress(); v != nil {
			out = append(out, *v)
		}
	}
	return out
}
