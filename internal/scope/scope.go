// Package scope turns the space-delimited OAuth scope parameter into a set
// and decides which requested scopes a client may receive.
package scope

import (
	"slices"
	"strings"
)

// Set is a collection of scope names. The zero value is an empty set.
type Set map[string]struct{}

// Parse splits a space-delimited scope string into a set. Duplicates
// collapse and surrounding whitespace is ignored.
func Parse(raw string) Set {
	fields := strings.Fields(raw)
	s := make(Set, len(fields))
	for _, f := range fields {
		s[f] = struct{}{}
	}
	return s
}

// Of builds a set from individual scope names
func Of(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			s[n] = struct{}{}
		}
	}
	return s
}

func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Slice returns the members in sorted order
func (s Set) Slice() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// String renders the wire form: sorted and space-delimited
func (s Set) String() string {
	return strings.Join(s.Slice(), " ")
}

// SubsetOf reports whether every member of s is in other
func (s Set) SubsetOf(other Set) bool {
	for name := range s {
		if !other.Has(name) {
			return false
		}
	}
	return true
}

func (s Set) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Set) UnmarshalText(b []byte) error {
	*s = Parse(string(b))
	return nil
}
