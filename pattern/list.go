package pattern

import (
	"errors"

	"github.com/pboyd/retext/apis"
)

// List is an ordered, immutable sequence of rules. The first rule that
// matches wins.
type List struct {
	rules []*Rule
}

// NewList wraps rules. Nil rules are dropped.
func NewList(rules ...*Rule) *List {
	l := &List{rules: make([]*Rule, 0, len(rules))}
	for _, r := range rules {
		if r != nil {
			l.rules = append(l.rules, r)
		}
	}
	return l
}

// Build compiles entries in order. Entries that fail to compile stay in the
// list as rules that never match and their errors are joined.
func Build(entries []apis.TranslationEntry) (*List, error) {
	l := &List{rules: make([]*Rule, 0, len(entries))}
	var errs []error
	for _, e := range entries {
		r, err := Compile(e)
		if err != nil {
			errs = append(errs, err)
		}
		l.rules = append(l.rules, r)
	}
	return l, errors.Join(errs...)
}

// Len returns the number of rules, including broken ones.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}

// Rules returns a copy of the rules.
func (l *List) Rules() []*Rule {
	if l == nil {
		return nil
	}
	out := make([]*Rule, len(l.rules))
	copy(out, l.rules)
	return out
}

// Match evaluates the rules in order.
func (l *List) Match(s string) (string, bool) {
	if l == nil {
		return "", false
	}
	for _, r := range l.rules {
		if out, ok := r.Apply(s); ok {
			return out, true
		}
	}
	return "", false
}

// Source provides the pattern list registered for a unit.
type Source interface {
	LookupPatterns(id apis.UnitID) (*List, bool)
}

// Matcher matches runtime strings against the patterns of a unit.
type Matcher struct {
	src Source
}

// NewMatcher creates a Matcher reading lists from src.
func NewMatcher(src Source) *Matcher {
	return &Matcher{src: src}
}

// Match returns the translation of s for the unit, or false when no rule of
// the unit matches.
func (m *Matcher) Match(id apis.UnitID, s string) (string, bool) {
	l, ok := m.src.LookupPatterns(id)
	if !ok {
		return "", false
	}
	return l.Match(s)
}
