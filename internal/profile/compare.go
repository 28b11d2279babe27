package profile

import "github.com/andrewoneill45-ctrl/school-profile/internal/school"

// MaxCompare is how many schools fit in one side-by-side comparison.
const MaxCompare = 3

// CompareSchool is the header column for one compared school.
type CompareSchool struct {
	URN    school.URN `json:"urn"`
	Name   string     `json:"name"`
	Phase  string     `json:"phase"`
	Ofsted string     `json:"ofsted"`
}

// CompareRow holds one metric across every compared school, in column
// order. Best lists the columns holding the highest value; it is empty for
// context rows and when fewer than two schools report the metric.
type CompareRow struct {
	Metric school.Metric `json:"metric"`
	Values []*float64    `json:"values"`
	Best   []int         `json:"best"`
}

type CompareTable struct {
	Schools []CompareSchool `json:"schools"`
	Rows    []CompareRow    `json:"rows"`
}

var (
	compareContext   = []school.Metric{school.MetricPupils, school.MetricFSM}
	compareSecondary = []school.Metric{
		school.MetricAttainment8, school.MetricProgress8, school.MetricBasics94, school.MetricBasics95,
	}
	comparePrimary = []school.Metric{
		school.MetricKS2RWMExp, school.MetricKS2RWMHigh, school.MetricKS2ReadAvg, school.MetricKS2MathAvg,
	}
)

// Compare lays schools out side by side. Pupils and FSM are always shown.
// KS4 rows appear when any school is secondary or all-through, and KS2 rows
// when any school is primary.
func Compare(schools []*school.School) CompareTable {
	t := CompareTable{
		Schools: make([]CompareSchool, 0, len(schools)),
		Rows:    []CompareRow{},
	}
	var secondary, primary bool
	for _, s := range schools {
		t.Schools = append(t.Schools, CompareSchool{
			URN:    s.URN,
			Name:   s.Name,
			Phase:  s.Phase,
			Ofsted: OfstedLabel(s.Ofsted),
		})
		secondary = secondary || isSecondary(s.Phase)
		primary = primary || s.Phase == school.PhasePrimary
	}

	for _, m := range compareContext {
		t.Rows = append(t.Rows, compareRow(schools, m, false))
	}
	if secondary {
		for _, m := range compareSecondary {
			t.Rows = append(t.Rows, compareRow(schools, m, true))
		}
	}
	if primary {
		for _, m := range comparePrimary {
			t.Rows = append(t.Rows, compareRow(schools, m, true))
		}
	}
	return t
}

func compareRow(schools []*school.School, m school.Metric, highlight bool) CompareRow {
	row := CompareRow{Metric: m, Values: make([]*float64, len(schools)), Best: []int{}}
	reporting := 0
	var best float64
	for i, s := range schools {
		v := s.Metric(m)
		row.Values[i] = v
		if v == nil {
			continue
		}
		if reporting == 0 || *v > best {
			best = *v
		}
		reporting++
	}
	if !highlight || reporting < 2 {
		return row
	}
	for i, v := range row.Values {
		if v != nil && *v == best {
			row.Best = append(row.Best, i)
		}
	}
	return row
}
