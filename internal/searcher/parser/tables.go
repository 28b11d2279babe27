package parser

import (
	"regexp"
	"strings"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
)

// phrase is one lexical-table keyword. Short keywords and trust names only
// match as whole words so that "ri" does not fire inside "primary".
type phrase struct {
	text string
	word *regexp.Regexp
}

func newPhrase(text string, wholeWord bool) phrase {
	p := phrase{text: text}
	if wholeWord || len(text) <= 3 {
		p.word = regexp.MustCompile(`\b` + regexp.QuoteMeta(text) + `\b`)
	}
	return p
}

func (p phrase) in(s string) bool {
	if p.word != nil {
		return p.word.MatchString(s)
	}
	return strings.Contains(s, p.text)
}

type entry[T any] struct {
	phrase
	value T
}

func kw[T any](text string, value T) entry[T] {
	return entry[T]{phrase: newPhrase(text, false), value: value}
}

// firstIn scans table in declaration order and returns the first entry found
// in s.
func firstIn[T any](table []entry[T], s string) (entry[T], bool) {
	for _, e := range table {
		if e.in(s) {
			return e, true
		}
	}
	var zero entry[T]
	return zero, false
}

var phaseTable = []entry[string]{
	kw("primary", school.PhasePrimary),
	kw("primaries", school.PhasePrimary),
	kw("primary school", school.PhasePrimary),
	kw("junior", school.PhasePrimary),
	kw("infant", school.PhasePrimary),
	kw("juniors", school.PhasePrimary),
	kw("secondary", school.PhaseSecondary),
	kw("secondaries", school.PhaseSecondary),
	kw("secondary school", school.PhaseSecondary),
	kw("high school", school.PhaseSecondary),
	kw("high schools", school.PhaseSecondary),
	kw("special", school.PhaseSpecial),
	kw("special school", school.PhaseSpecial),
	kw("sen school", school.PhaseSpecial),
	kw("nursery", school.PhaseNursery),
	kw("nurseries", school.PhaseNursery),
	kw("all-through", school.PhaseAllThrough),
	kw("all through", school.PhaseAllThrough),
	kw("sixth form", school.PhaseSixteenPlus),
	kw("post-16", school.PhaseSixteenPlus),
	kw("post 16", school.PhaseSixteenPlus),
	kw("college", school.PhaseSixteenPlus),
}

var ofstedTable = []entry[string]{
	kw("outstanding", school.OfstedOutstanding),
	kw("ofsted 1", school.OfstedOutstanding),
	kw("good", school.OfstedGood),
	kw("ofsted 2", school.OfstedGood),
	kw("requires improvement", school.OfstedRI),
	kw("ri", school.OfstedRI),
	kw("requires improving", school.OfstedRI),
	kw("inadequate", school.OfstedInadequate),
	kw("ofsted 4", school.OfstedInadequate),
	kw("failing", school.OfstedInadequate),
}

func f(v float64) *float64 { return &v }

var performanceTable = []entry[filter.FilterSet]{
	kw("best performing", filter.FilterSet{MinAttainment8: f(55)}),
	kw("best", filter.FilterSet{MinAttainment8: f(55)}),
	kw("top performing", filter.FilterSet{MinAttainment8: f(60)}),
	kw("top", filter.FilterSet{MinAttainment8: f(60)}),
	kw("high performing", filter.FilterSet{MinAttainment8: f(50)}),
	kw("high attaining", filter.FilterSet{MinAttainment8: f(50)}),
	kw("well above average", filter.FilterSet{MinAttainment8: f(55)}),
	kw("above average", filter.FilterSet{MinAttainment8: f(48)}),
	kw("below average", filter.FilterSet{MaxAttainment8: f(42)}),
	kw("struggling", filter.FilterSet{MaxAttainment8: f(35)}),
	kw("underperforming", filter.FilterSet{MaxAttainment8: f(38)}),
	kw("low performing", filter.FilterSet{MaxAttainment8: f(38)}),
	kw("poorly performing", filter.FilterSet{MaxAttainment8: f(35)}),
	kw("coasting", filter.FilterSet{MinAttainment8: f(38), MaxAttainment8: f(46)}),
}

var sizeTable = []entry[filter.FilterSet]{
	kw("large", filter.FilterSet{MinPupils: f(1000)}),
	kw("very large", filter.FilterSet{MinPupils: f(1500)}),
	kw("big", filter.FilterSet{MinPupils: f(1000)}),
	kw("small", filter.FilterSet{MaxPupils: f(300)}),
	kw("very small", filter.FilterSet{MaxPupils: f(150)}),
	kw("tiny", filter.FilterSet{MaxPupils: f(100)}),
}

var faithTable = []entry[string]{
	kw("catholic", "Roman Catholic"),
	kw("rc", "Roman Catholic"),
	kw("church of england", "Church of England"),
	kw("c of e", "Church of England"),
	kw("coe", "Church of England"),
	kw("ce", "Church of England"),
	kw("anglican", "Church of England"),
	kw("jewish", "Jewish"),
	kw("muslim", "Muslim"),
	kw("islamic", "Muslim"),
	kw("sikh", "Sikh"),
	kw("hindu", "Hindu"),
	kw("methodist", "Methodist"),
	kw("faith school", filter.AnyFaith),
	kw("faith", filter.AnyFaith),
	kw("religious", filter.AnyFaith),
}

var typeTable = []entry[string]{
	kw("academy", "academy"),
	kw("academies", "academy"),
	kw("free school", "free school"),
	kw("free schools", "free school"),
	kw("maintained", "maintained"),
	kw("community school", "community"),
	kw("voluntary aided", "voluntary aided"),
	kw("va school", "voluntary aided"),
	kw("voluntary controlled", "voluntary controlled"),
	kw("vc school", "voluntary controlled"),
	kw("grammar", "grammar"),
	kw("grammars", "grammar"),
	kw("independent", "independent"),
	kw("private", "independent"),
}

// Region values are lower-case; the evaluator matches them
// case-insensitively against the school's region.
var regionTable = []entry[string]{
	kw("london", "london"),
	kw("south east", "south east"),
	kw("south west", "south west"),
	kw("east of england", "east of england"),
	kw("east midlands", "east midlands"),
	kw("west midlands", "west midlands"),
	kw("yorkshire and the humber", "yorkshire and the humber"),
	kw("yorkshire", "yorkshire"),
	kw("north west", "north west"),
	kw("north east", "north east"),
}

// Aliases are only consulted when no region matched, and match whole words
// so "north" does not fire inside "northampton".
var regionAliases = []entry[string]{
	word("the north", "north east"),
	word("north", "north east"),
	word("the south", "south east"),
	word("the midlands", "west midlands"),
	word("east anglia", "east of england"),
	word("the west country", "south west"),
}

var knownTrusts = []entry[string]{
	word("ark", "ark"),
	word("harris", "harris"),
	word("oasis", "oasis"),
	word("dixons", "dixons"),
	word("united learning", "united learning"),
	word("delta", "delta"),
	word("outwood", "outwood"),
	word("inspiration", "inspiration"),
	word("reach", "reach"),
	word("ormiston", "ormiston"),
}

func word(text, value string) entry[string] {
	return entry[string]{phrase: newPhrase(text, true), value: value}
}

// Phrases that follow a location preposition but do not name a place.
var nonPlaces = map[string]bool{
	"england":     true,
	"the uk":      true,
	"uk":          true,
	"the country": true,
	"my area":     true,
	"the map":     true,
	"a":           true,
	"this":        true,
	"this area":   true,
}

// Captures after "trust"/"mat"/"federation" that are not a trust name.
var genericTrustWords = map[string]bool{
	"school":    true,
	"schools":   true,
	"academy":   true,
	"academies": true,
	"trust":     true,
	"trusts":    true,
	"a":         true,
	"the":       true,
}

// Postcode-shaped tokens that are really metric abbreviations.
var notPostcodes = map[string]bool{
	"A8":  true,
	"P8":  true,
	"KS2": true,
	"KS4": true,
	"KS5": true,
}
