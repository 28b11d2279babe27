// Package parser compiles free-text school searches into a filter.FilterSet.
//
// Compilation runs a fixed sequence of independent rules. Each rule looks at
// the query (and, where it must, at what earlier rules found) and returns a
// partial filter set. Within a category the first table entry found wins, so
// table order is part of the behaviour.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
	"github.com/andrewoneill45-ctrl/school-profile/internal/searcher/filter"
)

type query struct {
	original string // trimmed, case preserved
	lower    string
	stripped string // lower with filler words removed
}

// rule inspects q and returns the keys it recognised. acc holds the keys
// produced by the rules before it.
type rule struct {
	name  string
	apply func(q query, acc filter.FilterSet) (filter.FilterSet, bool)
}

var rules = []rule{
	{"phase", phaseRule},
	{"ofsted", ofstedRule},
	{"performance", performanceRule},
	{"size", sizeRule},
	{"faith", faithRule},
	{"type", typeRule},
	{"gender", genderRule},
	{"region", regionRule},
	{"metrics", metricsRule},
	{"postcode", postcodeRule},
	{"trust", trustRule},
	{"location", locationRule},
	{"name", nameRule},
}

// Compile turns raw into a filter set. It returns nil for blank input. When
// no rule recognises anything, the trimmed input becomes a fuzzy query; input
// shorter than two characters then yields nil.
func Compile(raw string) *filter.FilterSet {
	fs, _ := Trace(raw)
	return fs
}

// Trace compiles raw like Compile and also names the rules that fired, in
// evaluation order. The fuzzy fallback is reported as "fuzzy".
func Trace(raw string) (*filter.FilterSet, []string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}
	q := newQuery(trimmed)

	var acc filter.FilterSet
	var fired []string
	for _, r := range rules {
		if part, ok := r.apply(q, acc); ok {
			acc = acc.Merge(part)
			fired = append(fired, r.name)
		}
	}
	if acc.IsEmpty() {
		if utf8.RuneCountInString(trimmed) < 2 {
			return nil, nil
		}
		acc.FuzzyQuery = trimmed
		fired = append(fired, "fuzzy")
	}
	return &acc, fired
}

// Normalize lower-cases raw and collapses runs of whitespace. Queries with
// the same normal form compile to the same filter set.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

var (
	leadingFiller = regexp.MustCompile(`^(?:show me|find|search for|list|display|get|what are|where are)\s+`)
	articleFiller = regexp.MustCompile(`\b(?:all the|all|the|every|any|some)\b`)
	schoolFiller  = regexp.MustCompile(`\bschools?\b`)
)

func newQuery(trimmed string) query {
	lower := strings.ToLower(trimmed)
	stripped := leadingFiller.ReplaceAllString(lower, "")
	stripped = articleFiller.ReplaceAllString(stripped, "")
	stripped = schoolFiller.ReplaceAllString(stripped, "")
	return query{
		original: trimmed,
		lower:    lower,
		stripped: strings.Join(strings.Fields(stripped), " "),
	}
}

func phaseRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	e, ok := firstIn(phaseTable, q.lower)
	return filter.FilterSet{Phase: e.value}, ok
}

func ofstedRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	e, ok := firstIn(ofstedTable, q.lower)
	return filter.FilterSet{Ofsted: e.value}, ok
}

func performanceRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	e, ok := firstIn(performanceTable, q.lower)
	return e.value, ok
}

// A size word counts when it qualifies a school noun, or when it is still
// there once filler words are stripped.
func sizeRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	for _, e := range sizeTable {
		if !e.in(q.lower) {
			continue
		}
		for _, noun := range []string{" school", " primary", " secondary", " academ"} {
			if strings.Contains(q.lower, e.text+noun) {
				return e.value, true
			}
		}
		if e.in(q.stripped) {
			return e.value, true
		}
	}
	return filter.FilterSet{}, false
}

func faithRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	e, ok := firstIn(faithTable, q.lower)
	return filter.FilterSet{FaithQuery: e.value}, ok
}

var freeSchoolMeals = regexp.MustCompile(`free school meals?`)

// "free school meals" names a metric, not the free school type.
func typeRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	e, ok := firstIn(typeTable, freeSchoolMeals.ReplaceAllString(q.lower, ""))
	return filter.FilterSet{TypeQuery: e.value}, ok
}

func genderRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(q.lower, s) {
				return true
			}
		}
		return false
	}
	switch {
	case has("girls", "girl's"):
		return filter.FilterSet{Gender: school.GenderGirls}, true
	case has("boys", "boy's"):
		return filter.FilterSet{Gender: school.GenderBoys}, true
	case has("mixed", "co-ed", "coed"):
		return filter.FilterSet{Gender: school.GenderMixed}, true
	}
	return filter.FilterSet{}, false
}

func regionRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	if e, ok := firstIn(regionTable, q.lower); ok {
		return filter.FilterSet{Region: e.value}, true
	}
	if e, ok := firstIn(regionAliases, q.lower); ok {
		return filter.FilterSet{Region: e.value}, true
	}
	return filter.FilterSet{}, false
}

const (
	number   = `(\d+(?:\.\d+)?)`
	signed   = `([-+]?\d+(?:\.\d+)?)`
	minCmp   = `(?:above|over|greater than|more than|at least|higher than|bigger than|>)`
	maxCmp   = `(?:below|under|less than|fewer than|lower than|smaller than|<)`
	rangeSep = `\s*(?:and|to|-)\s*`
	a8Name   = `(?:\battainment\s*8?|\ba8)`
	p8Name   = `(?:\bprogress\s*8?|\bp8)`
	pupilsN  = `(?:\bpupils?|\bstudents?|\bchildren)`
	pupilsS  = `\s*(?:pupils?|students?|children|kids)\b`
)

var (
	a8Min     = regexp.MustCompile(a8Name + `\s*` + minCmp + `\s*` + number)
	a8Max     = regexp.MustCompile(a8Name + `\s*` + maxCmp + `\s*` + number)
	a8Between = regexp.MustCompile(a8Name + `\s*between\s*` + number + rangeSep + number)

	p8Min     = regexp.MustCompile(p8Name + `\s*` + minCmp + `\s*` + signed)
	p8Max     = regexp.MustCompile(p8Name + `\s*` + maxCmp + `\s*` + signed)
	p8Between = regexp.MustCompile(p8Name + `\s*between\s*` + signed + rangeSep + signed)

	pupilsMin        = regexp.MustCompile(pupilsN + `\s*` + minCmp + `\s*(\d+)`)
	pupilsMax        = regexp.MustCompile(pupilsN + `\s*` + maxCmp + `\s*(\d+)`)
	pupilsMinSuffix  = regexp.MustCompile(minCmp + `\s*(\d+)` + pupilsS)
	pupilsMaxSuffix  = regexp.MustCompile(maxCmp + `\s*(\d+)` + pupilsS)
	pupilsBetween    = regexp.MustCompile(pupilsN + `\s*between\s*(\d+)` + rangeSep + `(\d+)`)
	pupilsBetweenSfx = regexp.MustCompile(`\bbetween\s*(\d+)` + rangeSep + `(\d+)` + pupilsS)

	fsmMin     = regexp.MustCompile(`(?:\bfsm|free school meals?|disadvantaged|pupil premium)\s*` + minCmp + `\s*` + number + `\s*%?`)
	basics4Min = regexp.MustCompile(`(?:4\+|basics\s*4|english and maths 4|eng.{0,5}maths 4)\s*(?:above|over|>)\s*` + number)
	basics5Min = regexp.MustCompile(`(?:5\+|basics\s*5|english and maths 5|eng.{0,5}maths 5)\s*(?:above|over|>)\s*` + number)
)

// metricsRule extracts "<metric> <comparator> <number>" phrases. Later
// matches overwrite earlier ones for the same key, so an explicit "between"
// wins over a single bound.
func metricsRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	var out filter.FilterSet
	found := false
	one := func(re *regexp.Regexp, dst **float64) {
		if m := re.FindStringSubmatch(q.lower); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				*dst = &v
				found = true
			}
		}
	}
	two := func(re *regexp.Regexp, lo, hi **float64) {
		if m := re.FindStringSubmatch(q.lower); m != nil {
			a, errA := strconv.ParseFloat(m[1], 64)
			b, errB := strconv.ParseFloat(m[2], 64)
			if errA == nil && errB == nil {
				*lo, *hi = &a, &b
				found = true
			}
		}
	}

	one(a8Min, &out.MinAttainment8)
	one(a8Max, &out.MaxAttainment8)
	two(a8Between, &out.MinAttainment8, &out.MaxAttainment8)

	one(p8Min, &out.MinProgress8)
	one(p8Max, &out.MaxProgress8)
	two(p8Between, &out.MinProgress8, &out.MaxProgress8)
	if strings.Contains(q.lower, "positive progress 8") || strings.Contains(q.lower, "positive p8") {
		out.MinProgress8, found = f(0.01), true
	}
	if strings.Contains(q.lower, "negative progress 8") || strings.Contains(q.lower, "negative p8") {
		out.MaxProgress8, found = f(-0.01), true
	}

	one(pupilsMin, &out.MinPupils)
	one(pupilsMinSuffix, &out.MinPupils)
	one(pupilsMax, &out.MaxPupils)
	one(pupilsMaxSuffix, &out.MaxPupils)
	two(pupilsBetween, &out.MinPupils, &out.MaxPupils)
	two(pupilsBetweenSfx, &out.MinPupils, &out.MaxPupils)

	one(basics4Min, &out.MinBasics4)
	one(basics5Min, &out.MinBasics5)
	one(fsmMin, &out.MinFSM)

	return out, found
}

var postcodeToken = regexp.MustCompile(`\b([A-Za-z]{1,2}\d{1,2}[A-Za-z]?(?:\s*\d[A-Za-z]{2})?)\b`)

// postcodeRule takes the first postcode-shaped token of the original text,
// skipping metric abbreviations such as A8 and KS2.
func postcodeRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	for _, m := range postcodeToken.FindAllStringSubmatch(q.original, -1) {
		pc := strings.Join(strings.Fields(strings.ToUpper(m[1])), " ")
		if notPostcodes[pc] || len(pc) < 2 || len(pc) > 8 {
			continue
		}
		return filter.FilterSet{PostcodeQuery: pc}, true
	}
	return filter.FilterSet{}, false
}

const stopWords = `with|that|where|and|who|which|having|show|above|below|la|local|region`

var (
	trustPhrase = regexp.MustCompile(`\b(?:trust|mat|federation)\s+(?:(?:called|named)\s+)?['"]?([a-z0-9][a-z0-9\s'&-]*?)['"]?` +
		`(?:\s+(?:in|near|around|from|across|` + stopWords + `)\b|\s*[,;:!?.]|$)`)
	locationPhrase = regexp.MustCompile(`\b(?:in|near|around|from|across)\s+([a-z][a-z\s'-]{1,30}?)` +
		`(?:\s+(?:` + stopWords + `)\b|\s*[,;:!?.]|$)`)
	locationFiller = regexp.MustCompile(`\s+(?:school|schools|primary|secondary|special|academy|academies|that|are|is|with|above|below|more|less|good|outstanding|inadequate)\b.*$`)
	namePhrase     = regexp.MustCompile(`\b(?:called|named)\s+['"]?([a-z0-9][a-z0-9\s'&.-]*?)['"]?` +
		`(?:\s+(?:in|near|around|from|across|with|that|where|who|which|having|show|above|below)\b|\s*[,;:!?]|$)`)
	prepositions = map[string]bool{"in": true, "near": true, "around": true, "from": true, "across": true}
)

// trustRule prefers the known-trust list and otherwise takes the phrase
// after "trust", "mat" or "federation".
func trustRule(q query, _ filter.FilterSet) (filter.FilterSet, bool) {
	if e, ok := firstIn(knownTrusts, q.lower); ok {
		return filter.FilterSet{TrustQuery: e.value}, true
	}
	m := trustPhrase.FindStringSubmatch(q.lower)
	if m == nil {
		return filter.FilterSet{}, false
	}
	name := strings.TrimSpace(m[1])
	words := strings.Fields(name)
	if len(words) == 0 || genericTrustWords[name] || prepositions[words[0]] {
		return filter.FilterSet{}, false
	}
	return filter.FilterSet{TrustQuery: name}, true
}

// locationRule only runs when neither a region nor a postcode was found, so
// "secondary schools in london" stays a region search.
func locationRule(q query, acc filter.FilterSet) (filter.FilterSet, bool) {
	if acc.Region != "" || acc.PostcodeQuery != "" {
		return filter.FilterSet{}, false
	}
	for _, m := range locationPhrase.FindAllStringSubmatch(q.lower, -1) {
		place := strings.TrimSpace(m[1])
		place = strings.TrimSpace(locationFiller.ReplaceAllString(place, ""))
		if utf8.RuneCountInString(place) < 2 || nonPlaces[place] {
			continue
		}
		return filter.FilterSet{LocationQuery: place}, true
	}
	return filter.FilterSet{}, false
}

// nameRule reads "called X" / "named X". A phrase introduced by "trust
// called" belongs to the trust rule and is not repeated as a school name.
func nameRule(q query, acc filter.FilterSet) (filter.FilterSet, bool) {
	m := namePhrase.FindStringSubmatchIndex(q.lower)
	if m == nil {
		return filter.FilterSet{}, false
	}
	if before := strings.Fields(q.lower[:m[0]]); len(before) > 0 && acc.TrustQuery != "" {
		switch before[len(before)-1] {
		case "trust", "mat", "federation":
			return filter.FilterSet{}, false
		}
	}
	name := strings.Trim(strings.TrimSpace(q.lower[m[2]:m[3]]), `.'"`)
	if name == "" {
		return filter.FilterSet{}, false
	}
	return filter.FilterSet{NameQuery: name}, true
}
