package domain

import (
	"fmt"
	"strings"
)

// DefaultCategories is the closed category set used when none is configured.
var DefaultCategories = []string{"healthcare", "satellite", "surveillance"}

// CategorySet is the closed, ordered set of valid image categories.
type CategorySet struct {
	names []string
	index map[string]struct{}
}

// NewCategorySet builds a set from names. Names are trimmed and lowercased;
// empty and duplicate names are rejected.
func NewCategorySet(names []string) (CategorySet, error) {
	if len(names) == 0 {
		return CategorySet{}, fmt.Errorf("%w: category set is empty", ErrInvalidCategory)
	}
	set := CategorySet{
		names: make([]string, 0, len(names)),
		index: make(map[string]struct{}, len(names)),
	}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			return CategorySet{}, fmt.Errorf("%w: empty category name", ErrInvalidCategory)
		}
		if _, dup := set.index[n]; dup {
			return CategorySet{}, fmt.Errorf("%w: duplicate category %q", ErrInvalidCategory, n)
		}
		set.index[n] = struct{}{}
		set.names = append(set.names, n)
	}
	return set, nil
}

// Contains reports whether name is a member of the set.
func (s CategorySet) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// Validate returns ErrInvalidCategory when name is not in the set.
func (s CategorySet) Validate(name string) error {
	if !s.Contains(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, name)
	}
	return nil
}

// Names returns the categories in configuration order.
func (s CategorySet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}
