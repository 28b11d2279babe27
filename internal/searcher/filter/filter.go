// Package filter holds the structured filter set produced by the query
// compiler, the conjunctive evaluator that applies it to school records, and
// the describer that renders it back to a short phrase.
package filter

import (
	"strconv"
	"strings"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
)

// AnyFaith is the FaithQuery sentinel meaning "declares any religious
// character".
const AnyFaith = "any faith"

// FilterSet is a sparse set of constraints. Empty strings and nil numbers
// are absent keys. A FilterSet is not mutated once built.
type FilterSet struct {
	Phase         string `json:"phase,omitempty"`
	Ofsted        string `json:"ofsted,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Region        string `json:"region,omitempty"`
	LocationQuery string `json:"locationQuery,omitempty"`
	PostcodeQuery string `json:"postcodeQuery,omitempty"`
	TrustQuery    string `json:"trustQuery,omitempty"`
	TypeQuery     string `json:"typeQuery,omitempty"`
	FaithQuery    string `json:"faithQuery,omitempty"`
	NameQuery     string `json:"nameQuery,omitempty"`
	FuzzyQuery    string `json:"fuzzyQuery,omitempty"`

	MinAttainment8 *float64 `json:"minAttainment8,omitempty"`
	MaxAttainment8 *float64 `json:"maxAttainment8,omitempty"`
	MinProgress8   *float64 `json:"minProgress8,omitempty"`
	MaxProgress8   *float64 `json:"maxProgress8,omitempty"`
	MinPupils      *float64 `json:"minPupils,omitempty"`
	MaxPupils      *float64 `json:"maxPupils,omitempty"`
	MinBasics4     *float64 `json:"minBasics4,omitempty"`
	MinBasics5     *float64 `json:"minBasics5,omitempty"`
	MinFSM         *float64 `json:"minFSM,omitempty"`
}

// IsEmpty reports whether no key is present. A nil set is empty.
func (f *FilterSet) IsEmpty() bool {
	return f == nil || len(f.Keys()) == 0
}

// Keys lists the present keys by JSON name, in declaration order.
func (f *FilterSet) Keys() []string {
	if f == nil {
		return nil
	}
	var keys []string
	str := func(name, v string) {
		if v != "" {
			keys = append(keys, name)
		}
	}
	num := func(name string, v *float64) {
		if v != nil {
			keys = append(keys, name)
		}
	}
	str("phase", f.Phase)
	str("ofsted", f.Ofsted)
	str("gender", f.Gender)
	str("region", f.Region)
	str("locationQuery", f.LocationQuery)
	str("postcodeQuery", f.PostcodeQuery)
	str("trustQuery", f.TrustQuery)
	str("typeQuery", f.TypeQuery)
	str("faithQuery", f.FaithQuery)
	str("nameQuery", f.NameQuery)
	str("fuzzyQuery", f.FuzzyQuery)
	num("minAttainment8", f.MinAttainment8)
	num("maxAttainment8", f.MaxAttainment8)
	num("minProgress8", f.MinProgress8)
	num("maxProgress8", f.MaxProgress8)
	num("minPupils", f.MinPupils)
	num("maxPupils", f.MaxPupils)
	num("minBasics4", f.MinBasics4)
	num("minBasics5", f.MinBasics5)
	num("minFSM", f.MinFSM)
	return keys
}

// Merge returns a copy of f with every key present in other written over it.
func (f FilterSet) Merge(other FilterSet) FilterSet {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pickNum := func(dst **float64, v *float64) {
		if v != nil {
			n := *v
			*dst = &n
		}
	}
	pick(&f.Phase, other.Phase)
	pick(&f.Ofsted, other.Ofsted)
	pick(&f.Gender, other.Gender)
	pick(&f.Region, other.Region)
	pick(&f.LocationQuery, other.LocationQuery)
	pick(&f.PostcodeQuery, other.PostcodeQuery)
	pick(&f.TrustQuery, other.TrustQuery)
	pick(&f.TypeQuery, other.TypeQuery)
	pick(&f.FaithQuery, other.FaithQuery)
	pick(&f.NameQuery, other.NameQuery)
	pick(&f.FuzzyQuery, other.FuzzyQuery)
	pickNum(&f.MinAttainment8, other.MinAttainment8)
	pickNum(&f.MaxAttainment8, other.MaxAttainment8)
	pickNum(&f.MinProgress8, other.MinProgress8)
	pickNum(&f.MaxProgress8, other.MaxProgress8)
	pickNum(&f.MinPupils, other.MinPupils)
	pickNum(&f.MaxPupils, other.MaxPupils)
	pickNum(&f.MinBasics4, other.MinBasics4)
	pickNum(&f.MinBasics5, other.MinBasics5)
	pickNum(&f.MinFSM, other.MinFSM)
	return f
}

// Apply returns the schools satisfying every present key of fs, in input
// order. A nil fs returns schools itself. The input slice is never modified.
func Apply(schools []school.School, fs *FilterSet) []school.School {
	if fs == nil {
		return schools
	}
	out := make([]school.School, 0, len(schools))
	for i := range schools {
		if Match(&schools[i], fs) {
			out = append(out, schools[i])
		}
	}
	return out
}

// Match reports whether s satisfies every present key of fs.
func Match(s *school.School, fs *FilterSet) bool {
	if fs == nil {
		return true
	}
	if fs.Phase != "" && !strings.EqualFold(s.Phase, fs.Phase) {
		return false
	}
	if fs.Ofsted != "" && !strings.EqualFold(s.Ofsted, fs.Ofsted) {
		return false
	}
	if fs.Gender != "" && !strings.EqualFold(s.Gender, fs.Gender) {
		return false
	}
	if fs.Region != "" && !contains(s.Region, fs.Region) {
		return false
	}
	if q := fs.LocationQuery; q != "" {
		if !contains(s.LA, q) && !contains(s.Town, q) && !contains(s.Name, q) &&
			!strings.HasPrefix(strings.ToLower(s.Postcode), strings.ToLower(q)) {
			return false
		}
	}
	if fs.PostcodeQuery != "" && !strings.HasPrefix(normalizePostcode(s.Postcode), normalizePostcode(fs.PostcodeQuery)) {
		return false
	}
	if q := fs.TrustQuery; q != "" && !contains(s.Trust, q) && !contains(s.Name, q) {
		return false
	}
	if fs.TypeQuery != "" && !contains(s.Type, fs.TypeQuery) {
		return false
	}
	if q := fs.FaithQuery; q != "" {
		if q == AnyFaith {
			if !s.HasFaith() {
				return false
			}
		} else if !contains(s.ReligiousCharacter, q) {
			return false
		}
	}
	if fs.NameQuery != "" && !contains(s.Name, fs.NameQuery) {
		return false
	}
	if !above(s.Attainment8, fs.MinAttainment8) || !below(s.Attainment8, fs.MaxAttainment8) {
		return false
	}
	if p := s.Progress(); !above(p, fs.MinProgress8) || !below(p, fs.MaxProgress8) {
		return false
	}
	if !above(s.Pupils, fs.MinPupils) || !below(s.Pupils, fs.MaxPupils) {
		return false
	}
	if !above(s.Basics94, fs.MinBasics4) || !above(s.Basics95, fs.MinBasics5) || !above(s.FSMPct, fs.MinFSM) {
		return false
	}
	if fs.FuzzyQuery != "" && !fuzzyMatch(s, fs.FuzzyQuery) {
		return false
	}
	return true
}

// above is true when there is no bound, or the value is present and strictly
// greater than it.
func above(v, bound *float64) bool {
	return bound == nil || (v != nil && *v > *bound)
}

func below(v, bound *float64) bool {
	return bound == nil || (v != nil && *v < *bound)
}

func contains(field, q string) bool {
	if field == "" {
		return false
	}
	return strings.Contains(strings.ToLower(field), strings.ToLower(q))
}

func normalizePostcode(pc string) string {
	return strings.ToUpper(strings.Join(strings.Fields(pc), ""))
}

func fuzzyMatch(s *school.School, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	fields := make([]string, 0, 8)
	for _, f := range []string{s.Name, s.LA, s.Town, s.Trust, s.Postcode, s.Region, s.Type, s.ReligiousCharacter} {
		if f != "" {
			fields = append(fields, strings.ToLower(f))
		}
	}
	for _, f := range fields {
		if strings.Contains(f, q) || strings.Contains(q, f) {
			return true
		}
	}
	all := strings.Join(fields, " ")
	for _, w := range strings.Fields(q) {
		if !strings.Contains(all, w) {
			return false
		}
	}
	return len(fields) > 0
}

// Describe renders fs as a short phrase such as
// "Outstanding secondary schools in leeds (ark) A8 > 50". A fuzzy set is
// rendered as the quoted query.
func Describe(fs *FilterSet) string {
	if fs == nil {
		return ""
	}
	if fs.FuzzyQuery != "" {
		return `"` + fs.FuzzyQuery + `"`
	}
	var parts []string
	if fs.Ofsted != "" {
		parts = append(parts, fs.Ofsted)
	}
	if fs.Phase != "" {
		parts = append(parts, strings.ToLower(fs.Phase))
	}
	if fs.TypeQuery != "" {
		parts = append(parts, fs.TypeQuery)
	}
	if fs.FaithQuery != "" {
		parts = append(parts, fs.FaithQuery)
	}
	parts = append(parts, "schools")
	if fs.LocationQuery != "" {
		parts = append(parts, "in "+fs.LocationQuery)
	}
	if fs.Region != "" {
		parts = append(parts, "in "+fs.Region)
	}
	if fs.PostcodeQuery != "" {
		parts = append(parts, "near "+fs.PostcodeQuery)
	}
	if fs.TrustQuery != "" {
		parts = append(parts, "("+fs.TrustQuery+")")
	}
	if fs.MinAttainment8 != nil {
		parts = append(parts, "A8 > "+formatNum(*fs.MinAttainment8))
	}
	if fs.MinProgress8 != nil {
		parts = append(parts, "P8 > "+formatNum(*fs.MinProgress8))
	}
	if fs.MinPupils != nil {
		parts = append(parts, "> "+formatNum(*fs.MinPupils)+" pupils")
	}
	return strings.Join(parts, " ")
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
