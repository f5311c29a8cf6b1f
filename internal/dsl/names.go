package dsl

import (
	"sort"

	"github.com/sells-group/feedback-cli/internal/model"
	"github.com/sells-group/feedback-cli/internal/payload"
)

// NameSet is a set of variable names a template may reference.
type NameSet map[string]struct{}

// NewNameSet returns a set holding names.
func NewNameSet(names ...string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexicographic order.
func (s NameSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AvailableNames unions the top-level keys of every component's parsed
// payload, scanning list elements when the payload is a list.
func AvailableNames(res model.EnrichedResult) NameSet {
	s := NameSet{}
	for _, c := range res.ComponentResults {
		for _, rec := range payload.Records(c.ParsedData) {
			for _, k := range rec.Keys() {
				s[k] = struct{}{}
			}
		}
	}
	return s
}

// NamesFromVariables returns the variable names of a snapshot.
func NamesFromVariables(vars []model.VariableRecord) NameSet {
	s := make(NameSet, len(vars))
	for _, v := range vars {
		s[v.VariableName] = struct{}{}
	}
	return s
}
