// Package dataset holds the read-only snapshot of schools the service
// searches. A Dataset is built once at startup, from a JSON file or from
// PostgreSQL, and never mutated afterwards.
package dataset

import (
	"strings"

	"github.com/andrewoneill45-ctrl/school-profile/internal/school"
)

// excludedTypes are establishment types kept out of the searchable set.
// Matching is a case-insensitive substring test on School.Type.
var excludedTypes = []string{"independent", "non-maintained special"}

type Dataset struct {
	schools  []school.School
	byURN    map[school.URN]int
	deciles  *DecileTable
	excluded int
}

// New filters out excluded establishments and indexes the rest. The first
// record wins when a URN repeats.
func New(schools []school.School) *Dataset {
	d := &Dataset{
		schools: make([]school.School, 0, len(schools)),
		byURN:   make(map[school.URN]int, len(schools)),
	}
	for i := range schools {
		s := schools[i]
		if Excluded(&s) {
			d.excluded++
			continue
		}
		if _, dup := d.byURN[s.URN]; dup && s.URN != "" {
			continue
		}
		d.byURN[s.URN] = len(d.schools)
		d.schools = append(d.schools, s)
	}
	d.deciles = NewDecileTable(d.schools)
	return d
}

// Excluded reports whether s is an independent or non-maintained special
// school.
func Excluded(s *school.School) bool {
	t := strings.ToLower(s.Type)
	for _, ex := range excludedTypes {
		if strings.Contains(t, ex) {
			return true
		}
	}
	return false
}

// All returns the snapshot in load order. Callers must not modify it.
func (d *Dataset) All() []school.School { return d.schools }

func (d *Dataset) ByURN(urn school.URN) (*school.School, bool) {
	i, ok := d.byURN[urn]
	if !ok {
		return nil, false
	}
	return &d.schools[i], true
}

func (d *Dataset) Len() int { return len(d.schools) }

// ExcludedCount is the number of records New dropped by type.
func (d *Dataset) ExcludedCount() int { return d.excluded }

func (d *Dataset) Deciles() *DecileTable { return d.deciles }
