package parser

import (
	"testing"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileBlank(t *testing.T) {
	for _, q := range []string{"", "   ", "\t\n"} {
		assert.Nil(t, Compile(q), "%q", q)
	}
	assert.Nil(t, Compile("x"), "single character never becomes a fuzzy query")
}

func TestCompile(t *testing.T) {
	tests := []struct {
		query string
		want  filter.FilterSet
	}{
		{"outstanding secondary schools in Darlington",
			filter.FilterSet{Ofsted: "Outstanding", Phase: "Secondary", LocationQuery: "darlington"}},
		{"schools with Attainment 8 above 60", filter.FilterSet{MinAttainment8: f(60)}},
		{"Ark schools", filter.FilterSet{TrustQuery: "ark"}},
		{"W10", filter.FilterSet{PostcodeQuery: "W10"}},
		{"secondary schools in London", filter.FilterSet{Phase: "Secondary", Region: "london"}},
		{"best performing primaries in north east",
			filter.FilterSet{Phase: "Primary", MinAttainment8: f(55), Region: "north east"}},
		{"catholic schools in london", filter.FilterSet{FaithQuery: "Roman Catholic", Region: "london"}},
		{"large academies in yorkshire",
			filter.FilterSet{MinPupils: f(1000), TypeQuery: "academy", Region: "yorkshire"}},
		{"harris federation", filter.FilterSet{TrustQuery: "harris"}},
		{"high performing schools with more than 1000 pupils",
			filter.FilterSet{MinAttainment8: f(50), MinPupils: f(1000)}},
		{"struggling schools in manchester", filter.FilterSet{MaxAttainment8: f(35), LocationQuery: "manchester"}},
		{"church of england primaries", filter.FilterSet{Phase: "Primary", FaithQuery: "Church of England"}},
		{"coasting schools", filter.FilterSet{MinAttainment8: f(38), MaxAttainment8: f(46)}},
		{"girls schools in the midlands", filter.FilterSet{Gender: "Girls", Region: "west midlands"}},
		{"boys grammar schools", filter.FilterSet{Gender: "Boys", TypeQuery: "grammar"}},
		{"ri schools near SW1A 1AA", filter.FilterSet{Ofsted: "Requires improvement", PostcodeQuery: "SW1A 1AA"}},
		{"faith schools", filter.FilterSet{FaithQuery: filter.AnyFaith}},
		{"progress 8 between -0.5 and 0.5", filter.FilterSet{MinProgress8: f(-0.5), MaxProgress8: f(0.5)}},
		{"p8 above 0.3", filter.FilterSet{MinProgress8: f(0.3)}},
		{"p8 above +0.2", filter.FilterSet{MinProgress8: f(0.2)}},
		{"progress 8 between -0.2 and +0.4", filter.FilterSet{MinProgress8: f(-0.2), MaxProgress8: f(0.4)}},
		{"schools with positive progress 8", filter.FilterSet{MinProgress8: f(0.01)}},
		{"negative p8 schools", filter.FilterSet{MaxProgress8: f(-0.01)}},
		{"attainment 8 between 40 and 50", filter.FilterSet{MinAttainment8: f(40), MaxAttainment8: f(50)}},
		{"a8 below 35.5", filter.FilterSet{MaxAttainment8: f(35.5)}},
		{"fewer than 200 pupils", filter.FilterSet{MaxPupils: f(200)}},
		{"schools between 200 and 400 pupils", filter.FilterSet{MinPupils: f(200), MaxPupils: f(400)}},
		{"free school meals above 30%", filter.FilterSet{MinFSM: f(30)}},
		{"basics 4 above 70", filter.FilterSet{MinBasics4: f(70)}},
		{"5+ over 45", filter.FilterSet{MinBasics5: f(45)}},
		{"trust called star academies", filter.FilterSet{TrustQuery: "star academies", TypeQuery: "academy"}},
		{"primary school called st mary's in leeds",
			filter.FilterSet{Phase: "Primary", NameQuery: "st mary's", LocationQuery: "leeds"}},
		{"tiny schools in cornwall", filter.FilterSet{MaxPupils: f(100), LocationQuery: "cornwall"}},
		{"schools in northampton", filter.FilterSet{LocationQuery: "northampton"}},
		{"schools in england", filter.FilterSet{}},
		{"sixth form colleges", filter.FilterSet{Phase: "16 plus"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := Compile(tt.query)
			if tt.want.IsEmpty() {
				require.NotNil(t, got)
				assert.Equal(t, tt.query, got.FuzzyQuery)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestShortKeywordsNeedWholeWords(t *testing.T) {
	got := Compile("primary schools in church street")
	require.NotNil(t, got)
	assert.Empty(t, got.Ofsted, `"ri" inside "primary"`)
	assert.Empty(t, got.FaithQuery, `"rc" inside "church"`)
	assert.Equal(t, "church street", got.LocationQuery)

	got = Compile("ce primary")
	require.NotNil(t, got)
	assert.Equal(t, "Church of England", got.FaithQuery)
}

func TestFirstMatchWinsWithinCategory(t *testing.T) {
	got := Compile("very large schools")
	require.NotNil(t, got)
	assert.Equal(t, f(1000), got.MinPupils, "large precedes very large in the size table")

	got = Compile("good or outstanding schools")
	require.NotNil(t, got)
	assert.Equal(t, school.OfstedOutstanding, got.Ofsted)
}

func TestFreeSchoolMealsIsNotAType(t *testing.T) {
	got := Compile("free schools with free school meals above 40")
	require.NotNil(t, got)
	assert.Equal(t, "free school", got.TypeQuery)

	got = Compile("fsm above 40 free school meals")
	require.NotNil(t, got)
	assert.Empty(t, got.TypeQuery)
}

func TestPostcodeSkipsMetricAbbreviations(t *testing.T) {
	got := Compile("A8 above 50 near LS6")
	require.NotNil(t, got)
	assert.Equal(t, "LS6", got.PostcodeQuery)
	assert.Equal(t, f(50), got.MinAttainment8)
	assert.Empty(t, got.LocationQuery, "postcode suppresses location")

	got = Compile("KS2 results")
	require.NotNil(t, got)
	assert.Empty(t, got.PostcodeQuery)
	assert.Equal(t, "KS2 results", got.FuzzyQuery)
}

func TestFuzzyKeepsCase(t *testing.T) {
	got := Compile("  St Mary Magdalene  ")
	require.NotNil(t, got)
	assert.Equal(t, filter.FilterSet{FuzzyQuery: "St Mary Magdalene"}, *got)
}

func TestTrace(t *testing.T) {
	fs, fired := Trace("outstanding secondary schools in Darlington")
	require.NotNil(t, fs)
	assert.Equal(t, []string{"phase", "ofsted", "location"}, fired)

	_, fired = Trace("Westminster Abbey Choir")
	assert.Equal(t, []string{"fuzzy"}, fired)

	fs, fired = Trace(" ")
	assert.Nil(t, fs)
	assert.Nil(t, fired)
}

func TestCompileIsDeterministic(t *testing.T) {
	q := "top performing catholic girls schools in the south with more than 800 pupils"
	first := Compile(q)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Compile(q))
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "schools in leeds", Normalize("  Schools   IN\tLeeds "))
	assert.Equal(t, Normalize("Ark Schools"), Normalize("ark  schools"))
}
