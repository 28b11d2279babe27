package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewoneill45-ctrl/school-profile/internal/dataset"
	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
)

var f = school.Float

func fixtures() []school.School {
	return []school.School{
		{URN: "1", Name: "Aston Academy", Phase: school.PhaseSecondary, LA: "Leeds", Region: "yorkshire and the humber", Trust: "Star Academies",
			Ofsted: school.OfstedGood, Attainment8: f(40), Pupils: f(900), Capacity: f(1000), FSMPct: f(30)},
		{URN: "2", Name: "Bramley High", Phase: school.PhaseSecondary, LA: "Leeds", Region: "yorkshire and the humber", Trust: "Star Academies",
			Ofsted: school.OfstedOutstanding, Attainment8: f(50), Progress8: f(0.2), Pupils: f(1100)},
		{URN: "3", Name: "Chapel School", Phase: school.PhaseSecondary, LA: "Leeds", Region: "yorkshire and the humber",
			Attainment8: f(60), P8Prev: f(-0.1)},
		{URN: "4", Name: "Dringhouses School", Phase: school.PhaseSecondary, LA: "York", Region: "yorkshire and the humber",
			Ofsted: school.OfstedNone, Attainment8: f(70), Progress8: f(0.5)},
		{URN: "5", Name: "Eccup Primary", Phase: school.PhasePrimary, LA: "Leeds", Region: "yorkshire and the humber", Trust: "Star Academies",
			KS2RWMExp: f(60), KS2ReadAvg: f(104)},
		{URN: "6", Name: "Farnley Primary", Phase: school.PhasePrimary, LA: "Leeds", Region: "yorkshire and the humber",
			KS2RWMExp: f(80), KS2MatExp: f(85)},
		{URN: "7", Name: "Grange Special", Phase: school.PhaseSpecial, LA: "Leeds", Pupils: f(120)},
	}
}

func metric(t *testing.T, p Profile, m school.Metric) MetricContext {
	t.Helper()
	for _, mc := range p.Metrics {
		if mc.Metric == m {
			return mc
		}
	}
	t.Fatalf("metric %s missing from profile", m)
	return MetricContext{}
}

func TestBuildSecondary(t *testing.T) {
	ds := dataset.New(fixtures())
	s, ok := ds.ByURN("3")
	require.True(t, ok)

	p := Build(ds, s)
	assert.Equal(t, "Chapel School", p.Name)
	assert.Equal(t, "Not yet inspected", p.Ofsted)
	assert.Len(t, p.Metrics, 7)

	a8 := metric(t, p, school.MetricAttainment8)
	require.NotNil(t, a8.Decile)
	assert.Equal(t, 5, *a8.Decile)
	assert.Equal(t, "Mid", a8.DecileBand)
	require.NotNil(t, a8.Percentile)
	assert.Equal(t, 50, *a8.Percentile)
	assert.Equal(t, "Above average", a8.Band)
	assert.Equal(t, "broadly in line with the national average", a8.Narrative)
	assert.Equal(t, 4, a8.Peers)

	p8 := metric(t, p, school.MetricProgress8)
	assert.Nil(t, p8.Decile)
	assert.Nil(t, p8.Percentile)
	assert.Equal(t, "No data", p8.Band)

	require.NotNil(t, p.Headline)
	assert.Equal(t, school.MetricAttainment8, p.Headline.Metric)
	assert.InDelta(t, 55, *p.Headline.National, 1e-9)
	assert.InDelta(t, 50, *p.Headline.LA, 1e-9)
	assert.Equal(t, 3, p.Headline.LAReporting)
	assert.Equal(t, 3, p.LAPeers)
	assert.Equal(t, 0, p.TrustSchools)
	assert.Nil(t, p.Occupancy)
	assert.Nil(t, p.Inspection, "uninspected schools carry no inspection context")
}

func TestBuildInspectionContext(t *testing.T) {
	ds := dataset.New(fixtures())

	good, _ := ds.ByURN("1")
	p := Build(ds, good)
	require.NotNil(t, p.Inspection)
	assert.Equal(t, school.OfstedGood, p.Inspection.Rating)
	require.NotNil(t, p.Inspection.SameRatingPct)
	assert.Equal(t, 50, *p.Inspection.SameRatingPct, "1 of 2 inspected secondaries is Good")
	require.NotNil(t, p.Inspection.LAGoodOrBetterPct)
	assert.Equal(t, 67, *p.Inspection.LAGoodOrBetterPct, "2 of 3 Leeds secondaries, uninspected included")

	york := &school.School{URN: "99", Phase: school.PhaseSecondary, LA: "York", Ofsted: school.OfstedOutstanding}
	p = Build(ds, york)
	require.NotNil(t, p.Inspection)
	assert.Equal(t, 50, *p.Inspection.SameRatingPct)
	assert.Nil(t, p.Inspection.LAGoodOrBetterPct, "two or fewer LA peers")

	nursery := &school.School{URN: "98", Phase: school.PhaseNursery, Ofsted: school.OfstedGood}
	p = Build(ds, nursery)
	require.NotNil(t, p.Inspection)
	assert.Nil(t, p.Inspection.SameRatingPct, "no inspected peers")
}

func TestBuildTrustAndOccupancy(t *testing.T) {
	ds := dataset.New(fixtures())
	s, _ := ds.ByURN("1")

	p := Build(ds, s)
	assert.Equal(t, 3, p.TrustSchools, "trust count spans phases")
	require.NotNil(t, p.Occupancy)
	assert.Equal(t, 90, *p.Occupancy)

	a8 := metric(t, p, school.MetricAttainment8)
	assert.Equal(t, 1, *a8.Decile, "the population minimum sits in decile 1")
	assert.Equal(t, "Low", a8.DecileBand)
}

func TestBuildPrimaryAndOtherPhases(t *testing.T) {
	ds := dataset.New(fixtures())

	primary, _ := ds.ByURN("6")
	p := Build(ds, primary)
	require.NotNil(t, p.Headline)
	assert.Equal(t, school.MetricKS2RWMExp, p.Headline.Metric)
	assert.InDelta(t, 70, *p.Headline.National, 1e-9)
	assert.InDelta(t, 70, *p.Headline.LA, 1e-9)
	rwm := metric(t, p, school.MetricKS2RWMExp)
	assert.Equal(t, 5, *rwm.Decile)

	special, _ := ds.ByURN("7")
	p = Build(ds, special)
	assert.Nil(t, p.Headline)
	assert.Len(t, p.Metrics, 2)
	assert.Equal(t, 1, p.LAPeers)
}

func TestSummarize(t *testing.T) {
	sum := Summarize(fixtures())

	assert.Equal(t, 7, sum.Total)
	assert.Equal(t, map[string]int{school.PhaseSecondary: 4, school.PhasePrimary: 2, school.PhaseSpecial: 1}, sum.Phases)
	assert.Equal(t, 1, sum.Ofsted[school.OfstedGood])
	assert.Equal(t, 1, sum.Ofsted[school.OfstedOutstanding])
	assert.Equal(t, 5, sum.Ofsted["Not yet inspected"])
	assert.Equal(t, 6, sum.Regions["yorkshire and the humber"])

	assert.InDelta(t, 2120, sum.TotalPupils, 1e-9)
	require.NotNil(t, sum.AvgPupils)
	assert.InDelta(t, 2120.0/3, *sum.AvgPupils, 1e-9)

	assert.Equal(t, 4, sum.Attainment8.Count)
	assert.InDelta(t, 55, *sum.Attainment8.Mean, 1e-9)
	assert.InDelta(t, 55, *sum.Attainment8.Median, 1e-9)

	// p8_prev stands in for a missing progress8
	assert.Equal(t, 3, sum.Progress8.Count)
	assert.InDelta(t, 0.2, *sum.Progress8.Median, 1e-9)

	assert.Equal(t, 2, sum.KS2RWM.Count)
	assert.Equal(t, 1, sum.KS2Maths.Count)
	assert.Equal(t, 1, sum.KS2Read.Count)
	assert.Nil(t, Summarize(nil).Attainment8.Mean)

	assert.Equal(t, 2, sum.LocalAuthorities)
	assert.Equal(t, 1, sum.Trusts)
}

func TestOfstedLabel(t *testing.T) {
	assert.Equal(t, "Not yet inspected", OfstedLabel(""))
	assert.Equal(t, "Not yet inspected", OfstedLabel("null"))
	assert.Equal(t, school.OfstedGood, OfstedLabel(school.OfstedGood))
}

func TestCompare(t *testing.T) {
	ds := dataset.New(fixtures())
	a, _ := ds.ByURN("1")
	b, _ := ds.ByURN("2")
	c, _ := ds.ByURN("5")

	table := Compare([]*school.School{a, b, c})
	require.Len(t, table.Schools, 3)
	assert.Equal(t, "Bramley High", table.Schools[1].Name)
	assert.Equal(t, "Not yet inspected", table.Schools[2].Ofsted)

	var metrics []school.Metric
	rows := map[school.Metric]CompareRow{}
	for _, r := range table.Rows {
		metrics = append(metrics, r.Metric)
		rows[r.Metric] = r
	}
	assert.Equal(t, []school.Metric{
		school.MetricPupils, school.MetricFSM,
		school.MetricAttainment8, school.MetricProgress8, school.MetricBasics94, school.MetricBasics95,
		school.MetricKS2RWMExp, school.MetricKS2RWMHigh, school.MetricKS2ReadAvg, school.MetricKS2MathAvg,
	}, metrics)

	assert.Empty(t, rows[school.MetricPupils].Best, "context rows are never highlighted")
	a8 := rows[school.MetricAttainment8]
	require.Len(t, a8.Values, 3)
	assert.Nil(t, a8.Values[2])
	assert.Equal(t, []int{1}, a8.Best)
	assert.Empty(t, rows[school.MetricProgress8].Best, "a single reported value is not a best")
	assert.Empty(t, rows[school.MetricKS2RWMExp].Best)
}

func TestCompareTiesAndPhaseRows(t *testing.T) {
	x := &school.School{URN: "1", Phase: school.PhasePrimary, KS2RWMExp: f(70)}
	y := &school.School{URN: "2", Phase: school.PhasePrimary, KS2RWMExp: f(70)}
	z := &school.School{URN: "3", Phase: school.PhasePrimary, KS2RWMExp: f(55)}

	table := Compare([]*school.School{x, y, z})
	require.Len(t, table.Rows, 6, "no KS4 rows for an all-primary comparison")
	for _, r := range table.Rows {
		if r.Metric == school.MetricKS2RWMExp {
			assert.Equal(t, []int{0, 1}, r.Best)
		}
	}
}
