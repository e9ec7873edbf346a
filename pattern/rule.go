package pattern

import (
	"regexp"

	"github.com/pboyd/retext/apis"
)

// Rule is a compiled template or regex entry.
type Rule struct {
	entry apis.TranslationEntry
	re    *regexp.Regexp
	err   error
}

// Compile compiles e. When compilation fails the returned rule is still
// usable but never matches, and the error has kind PatternError.
func Compile(e apis.TranslationEntry) (*Rule, error) {
	r := &Rule{entry: e}

	switch {
	case e.IsRegex:
		r.re, r.err = regexp.Compile(e.Pattern)
	case e.IsTemplate:
		r.re, r.err = MatchingPattern(e.Original)
	default:
		r.re, r.err = regexp.Compile(`^` + regexp.QuoteMeta(e.Original) + `$`)
	}

	if r.err != nil {
		r.re = nil
		return r, apis.NewError(apis.KindPatternError, subject(e), r.err)
	}
	return r, nil
}

func subject(e apis.TranslationEntry) string {
	if e.IsRegex {
		return e.Pattern
	}
	return e.Original
}

// Entry returns the entry the rule was compiled from.
func (r *Rule) Entry() apis.TranslationEntry {
	return r.entry
}

// Err returns the compilation error, if any.
func (r *Rule) Err() error {
	return r.err
}

// Apply matches s and returns the translation.
func (r *Rule) Apply(s string) (string, bool) {
	if r.re == nil {
		return "", false
	}

	switch {
	case r.entry.IsRegex:
		if !r.re.MatchString(s) {
			return "", false
		}
		return r.re.ReplaceAllString(s, r.entry.Translated), true

	case r.entry.IsTemplate:
		m := r.re.FindStringSubmatch(s)
		if m == nil {
			return "", false
		}
		// Captures are positional: group 1 fills {0}, group 2 fills {1}.
		values := make(map[int]string, len(m)-1)
		for i, v := range m[1:] {
			values[i] = v
		}
		return Format(r.entry.Translated, values), true

	default:
		if !r.re.MatchString(s) {
			return "", false
		}
		return r.entry.Translated, true
	}
}
