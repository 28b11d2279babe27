package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
)

// suppressed are the DfE markers for values that are missing, suppressed or
// not applicable.
var suppressed = map[string]struct{}{
	"": {}, "SUPP": {}, "NE": {}, "NA": {}, "NEW": {}, "X": {},
	"DNS": {}, "LOWCOV": {}, "SP": {}, "N/A": {}, "-": {},
}

// ParseNumber reads a performance-table cell. Percent signs and thousands
// separators are ignored; suppression markers and junk yield nil.
func ParseNumber(raw string) *float64 {
	v := strings.TrimSpace(raw)
	v = strings.ReplaceAll(v, "%", "")
	v = strings.ReplaceAll(v, ",", "")
	if _, skip := suppressed[strings.ToUpper(v)]; skip {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// column copies one CSV column into a School field. Headline columns decide
// whether a school counts as matched.
type column struct {
	name     string
	decimals int
	headline bool
	field    func(s *school.School) **float64
}

var ks4Columns = []column{
	{"ATT8SCR", 1, true, func(s *school.School) **float64 { return &s.Attainment8 }},
	{"P8MEA", 2, true, func(s *school.School) **float64 { return &s.Progress8 }},
	{"PTL2BASICS_94", 0, true, func(s *school.School) **float64 { return &s.Basics94 }},
	{"PTL2BASICS_95", 0, true, func(s *school.School) **float64 { return &s.Basics95 }},
	{"PTFSM6CLA1A", 1, true, func(s *school.School) **float64 { return &s.FSMPct }},

	{"ATT8SCR_FSM6CLA1A", 1, false, func(s *school.School) **float64 { return &s.A8Disadv }},
	{"ATT8SCR_NFSM6CLA1A", 1, false, func(s *school.School) **float64 { return &s.A8NonDisadv }},
	{"P8MEA_FSM6CLA1A", 2, false, func(s *school.School) **float64 { return &s.P8Disadv }},
	{"P8MEA_NFSM6CLA1A", 2, false, func(s *school.School) **float64 { return &s.P8NonDisadv }},
	{"PTFSM6CLA1ABASICS_94", 0, false, func(s *school.School) **float64 { return &s.B94Disadv }},
	{"PTFSM6CLA1ABASICS_95", 0, false, func(s *school.School) **float64 { return &s.B95Disadv }},
	{"PTNOTFSM6CLA1ABASICS_94", 0, false, func(s *school.School) **float64 { return &s.B94NonDisadv }},
	{"PTNOTFSM6CLA1ABASICS_95", 0, false, func(s *school.School) **float64 { return &s.B95NonDisadv }},

	{"ATT8SCR_PREV", 1, false, func(s *school.School) **float64 { return &s.A8Prev }},
	{"P8MEA_PREV", 2, false, func(s *school.School) **float64 { return &s.P8Prev }},
	{"PTL2BASICS_94_PREV", 0, false, func(s *school.School) **float64 { return &s.B94Prev }},
	{"PTL2BASICS_95_PREV", 0, false, func(s *school.School) **float64 { return &s.B95Prev }},
}

var ks2Columns = []column{
	{"PTRWM_EXP", 0, true, func(s *school.School) **float64 { return &s.KS2RWMExp }},
	{"PTRWM_HIGH", 0, true, func(s *school.School) **float64 { return &s.KS2RWMHigh }},
	{"READ_AVERAGE", 1, true, func(s *school.School) **float64 { return &s.KS2ReadAvg }},
	{"READPROG", 2, true, func(s *school.School) **float64 { return &s.KS2ReadProg }},
	{"PTREAD_EXP", 0, true, func(s *school.School) **float64 { return &s.KS2ReadExp }},
	{"PTMAT_EXP", 0, true, func(s *school.School) **float64 { return &s.KS2MatExp }},
	{"PTWRITTA_EXP", 0, true, func(s *school.School) **float64 { return &s.KS2WritExp }},
	{"PTGPS_EXP", 0, true, func(s *school.School) **float64 { return &s.KS2GPSExp }},

	{"PTRWM_EXP_FSM6CLA1A", 0, false, func(s *school.School) **float64 { return &s.KS2RWMDisadv }},
	{"PTRWM_EXP_NotFSM6CLA1A", 0, false, func(s *school.School) **float64 { return &s.KS2RWMNonDisadv }},

	{"PTRWM_EXP_24", 0, false, func(s *school.School) **float64 { return &s.KS2RWMPrev }},
	{"READ_AVERAGE_24", 1, false, func(s *school.School) **float64 { return &s.KS2ReadAvgPrev }},
}

// MergeReport counts what one performance file contributed.
type MergeReport struct {
	Stage string `json:"stage"`
	// Rows is every data row read, including non-school rows.
	Rows    int `json:"rows"`
	Schools int `json:"schools"`
	Unknown int `json:"unknown"`
	Matched int `json:"matched"`
}

func (r MergeReport) String() string {
	return fmt.Sprintf("%s: %d rows, %d school rows, %d unknown urns, %d matched",
		r.Stage, r.Rows, r.Schools, r.Unknown, r.Matched)
}

// MergeKS4 copies KS4 performance columns from a DfE CSV into schools,
// matched by URN. Only school-level rows (RECTYPE 1) are used.
func MergeKS4(r io.Reader, schools []school.School) (MergeReport, error) {
	return merge(r, schools, StageKS4)
}

// MergeKS2 is MergeKS4 for the KS2 performance file.
func MergeKS2(r io.Reader, schools []school.School) (MergeReport, error) {
	return merge(r, schools, StageKS2)
}

// Key stages understood by ParsePerformance.
const (
	StageKS4 = "KS4"
	StageKS2 = "KS2"
)

func columnsFor(stage string) ([]column, error) {
	switch stage {
	case StageKS4:
		return ks4Columns, nil
	case StageKS2:
		return ks2Columns, nil
	}
	return nil, fmt.Errorf("unknown key stage %q", stage)
}

// Performance holds the parsed values of one CSV row, keyed by column.
type Performance map[string]*float64

// ParsePerformance reads a DfE CSV into per-URN values without touching
// any school. Rows other than RECTYPE 1 are skipped.
func ParsePerformance(r io.Reader, stage string) (map[school.URN]Performance, MergeReport, error) {
	cols, err := columnsFor(stage)
	if err != nil {
		return nil, MergeReport{}, err
	}

	report := MergeReport{Stage: stage}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, report, fmt.Errorf("reading %s header: %w", stage, err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		index[strings.TrimSpace(h)] = i
	}
	urnCol, ok := index["URN"]
	if !ok {
		return nil, report, fmt.Errorf("%s file has no URN column", stage)
	}
	recCol, hasRecType := index["RECTYPE"]

	out := make(map[school.URN]Performance)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("reading %s row %d: %w", stage, report.Rows+2, err)
		}
		report.Rows++
		if !hasRecType || strings.TrimSpace(cell(row, recCol)) != "1" {
			continue
		}
		urn := school.URN(strings.TrimSpace(cell(row, urnCol)))
		if urn == "" {
			continue
		}
		report.Schools++
		perf := make(Performance, len(cols))
		for _, c := range cols {
			i, ok := index[c.name]
			if !ok {
				continue
			}
			if v := ParseNumber(cell(row, i)); v != nil {
				rounded := round(*v, c.decimals)
				perf[c.name] = &rounded
			}
		}
		out[urn] = perf
	}
	return out, report, nil
}

// Apply writes parsed values into schools and fills in the Unknown and
// Matched counts of report.
func Apply(schools []school.School, perf map[school.URN]Performance, report MergeReport) (MergeReport, error) {
	cols, err := columnsFor(report.Stage)
	if err != nil {
		return report, err
	}
	byURN := make(map[school.URN]*school.School, len(schools))
	for i := range schools {
		if _, dup := byURN[schools[i].URN]; !dup {
			byURN[schools[i].URN] = &schools[i]
		}
	}
	for urn, values := range perf {
		s, ok := byURN[urn]
		if !ok {
			report.Unknown++
			continue
		}
		matched := false
		for _, c := range cols {
			v, ok := values[c.name]
			if !ok {
				continue
			}
			*c.field(s) = v
			if c.headline {
				matched = true
			}
		}
		if matched {
			report.Matched++
		}
	}
	return report, nil
}

func merge(r io.Reader, schools []school.School, stage string) (MergeReport, error) {
	perf, report, err := ParsePerformance(r, stage)
	if err != nil {
		return report, err
	}
	return Apply(schools, perf, report)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
