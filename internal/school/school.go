// Package school defines the school record shared by every layer of the
// service. JSON field names match the published dataset exactly.
package school

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// URN is the unique reference number of a school. The dataset carries it as
// either a JSON string or a JSON number; it is always re-encoded as a string.
type URN string

func (u *URN) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*u = URN(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("urn: %w", err)
	}
	*u = URN(n.String())
	return nil
}

// Categorical values the dataset uses.
const (
	PhasePrimary     = "Primary"
	PhaseSecondary   = "Secondary"
	PhaseSpecial     = "Special"
	PhaseNursery     = "Nursery"
	PhaseAllThrough  = "All-through"
	PhaseSixteenPlus = "16 plus"

	OfstedOutstanding = "Outstanding"
	OfstedGood        = "Good"
	OfstedRI          = "Requires improvement"
	OfstedInadequate  = "Inadequate"
	OfstedNone        = "Not inspected"

	GenderGirls = "Girls"
	GenderBoys  = "Boys"
	GenderMixed = "Mixed"
)

// School is one record of the dataset. Numeric metrics are nil when not
// applicable or not reported; zero is a real value.
type School struct {
	URN                URN      `json:"urn"`
	Name               string   `json:"name"`
	Phase              string   `json:"phase,omitempty"`
	Ofsted             string   `json:"ofsted,omitempty"`
	Type               string   `json:"type,omitempty"`
	Gender             string   `json:"gender,omitempty"`
	ReligiousCharacter string   `json:"religiousCharacter,omitempty"`
	LA                 string   `json:"la,omitempty"`
	Town               string   `json:"town,omitempty"`
	Postcode           string   `json:"postcode,omitempty"`
	Region             string   `json:"region,omitempty"`
	Latitude           *float64 `json:"latitude,omitempty"`
	Longitude          *float64 `json:"longitude,omitempty"`
	Trust              string   `json:"trust,omitempty"`

	Pupils   *float64 `json:"pupils,omitempty"`
	Capacity *float64 `json:"capacity,omitempty"`
	FSMPct   *float64 `json:"fsm_pct,omitempty"`

	// KS4
	Attainment8  *float64 `json:"attainment8,omitempty"`
	Progress8    *float64 `json:"progress8,omitempty"`
	P8Prev       *float64 `json:"p8_prev,omitempty"`
	A8Prev       *float64 `json:"a8_prev,omitempty"`
	Basics94     *float64 `json:"basics_94,omitempty"`
	Basics95     *float64 `json:"basics_95,omitempty"`
	B94Prev      *float64 `json:"b94_prev,omitempty"`
	B95Prev      *float64 `json:"b95_prev,omitempty"`
	A8Disadv     *float64 `json:"a8_disadv,omitempty"`
	A8NonDisadv  *float64 `json:"a8_nondisadv,omitempty"`
	P8Disadv     *float64 `json:"p8_disadv,omitempty"`
	P8NonDisadv  *float64 `json:"p8_nondisadv,omitempty"`
	B94Disadv    *float64 `json:"b94_disadv,omitempty"`
	B94NonDisadv *float64 `json:"b94_nondisadv,omitempty"`
	B95Disadv    *float64 `json:"b95_disadv,omitempty"`
	B95NonDisadv *float64 `json:"b95_nondisadv,omitempty"`

	// KS2
	KS2RWMExp       *float64 `json:"ks2_rwm_exp,omitempty"`
	KS2RWMHigh      *float64 `json:"ks2_rwm_high,omitempty"`
	KS2ReadAvg      *float64 `json:"ks2_read_avg,omitempty"`
	KS2MathAvg      *float64 `json:"ks2_math_avg,omitempty"`
	KS2ReadProg     *float64 `json:"ks2_read_prog,omitempty"`
	KS2ReadExp      *float64 `json:"ks2_read_exp,omitempty"`
	KS2MatExp       *float64 `json:"ks2_mat_exp,omitempty"`
	KS2WritExp      *float64 `json:"ks2_writ_exp,omitempty"`
	KS2GPSExp       *float64 `json:"ks2_gps_exp,omitempty"`
	KS2RWMDisadv    *float64 `json:"ks2_rwm_disadv,omitempty"`
	KS2RWMNonDisadv *float64 `json:"ks2_rwm_nondisadv,omitempty"`
	KS2RWMPrev      *float64 `json:"ks2_rwm_prev,omitempty"`
	KS2ReadAvgPrev  *float64 `json:"ks2_read_avg_prev,omitempty"`
}

// Progress returns progress8, falling back to p8_prev for datasets that only
// carry the previous-year measure.
func (s *School) Progress() *float64 {
	if s.Progress8 != nil {
		return s.Progress8
	}
	return s.P8Prev
}

// HasFaith reports whether the school declares a religious character.
func (s *School) HasFaith() bool {
	rc := strings.ToLower(strings.TrimSpace(s.ReligiousCharacter))
	return rc != "" && rc != "none" && rc != "does not apply"
}

// Metric names a numeric field by its JSON key.
type Metric string

const (
	MetricPupils      Metric = "pupils"
	MetricCapacity    Metric = "capacity"
	MetricFSM         Metric = "fsm_pct"
	MetricAttainment8 Metric = "attainment8"
	MetricProgress8   Metric = "progress8"
	MetricP8Prev      Metric = "p8_prev"
	MetricA8Prev      Metric = "a8_prev"
	MetricBasics94    Metric = "basics_94"
	MetricBasics95    Metric = "basics_95"
	MetricKS2RWMExp   Metric = "ks2_rwm_exp"
	MetricKS2RWMHigh  Metric = "ks2_rwm_high"
	MetricKS2ReadAvg  Metric = "ks2_read_avg"
	MetricKS2MathAvg  Metric = "ks2_math_avg"
	MetricKS2ReadProg Metric = "ks2_read_prog"
	MetricKS2ReadExp  Metric = "ks2_read_exp"
	MetricKS2MatExp   Metric = "ks2_mat_exp"
	MetricKS2WritExp  Metric = "ks2_writ_exp"
	MetricKS2GPSExp   Metric = "ks2_gps_exp"
)

// Metrics lists every Metric accepted by (*School).Metric.
var Metrics = []Metric{
	MetricPupils, MetricCapacity, MetricFSM,
	MetricAttainment8, MetricProgress8, MetricP8Prev, MetricA8Prev, MetricBasics94, MetricBasics95,
	MetricKS2RWMExp, MetricKS2RWMHigh, MetricKS2ReadAvg, MetricKS2MathAvg, MetricKS2ReadProg,
	MetricKS2ReadExp, MetricKS2MatExp, MetricKS2WritExp, MetricKS2GPSExp,
}

// Metric returns the value of m, or nil when absent or m is unknown.
func (s *School) Metric(m Metric) *float64 {
	switch m {
	case MetricPupils:
		return s.Pupils
	case MetricCapacity:
		return s.Capacity
	case MetricFSM:
		return s.FSMPct
	case MetricAttainment8:
		return s.Attainment8
	case MetricProgress8:
		return s.Progress8
	case MetricP8Prev:
		return s.P8Prev
	case MetricA8Prev:
		return s.A8Prev
	case MetricBasics94:
		return s.Basics94
	case MetricBasics95:
		return s.Basics95
	case MetricKS2RWMExp:
		return s.KS2RWMExp
	case MetricKS2RWMHigh:
		return s.KS2RWMHigh
	case MetricKS2ReadAvg:
		return s.KS2ReadAvg
	case MetricKS2MathAvg:
		return s.KS2MathAvg
	case MetricKS2ReadProg:
		return s.KS2ReadProg
	case MetricKS2ReadExp:
		return s.KS2ReadExp
	case MetricKS2MatExp:
		return s.KS2MatExp
	case MetricKS2WritExp:
		return s.KS2WritExp
	case MetricKS2GPSExp:
		return s.KS2GPSExp
	}
	return nil
}

// Values collects the present values of m across schools, in input order.
func Values(schools []School, m Metric) []float64 {
	out := make([]float64, 0, len(schools))
	for i := range schools {
		if v := schools[i].Metric(m); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// Float is a convenience for building optional metrics.
func Float(v float64) *float64 { return &v }

// ParseURN normalises a URN from user input.
func ParseURN(raw string) (URN, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(raw, 10, 64); err != nil {
		return "", false
	}
	return URN(raw), true
}
