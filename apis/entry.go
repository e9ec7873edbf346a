package apis

import (
	"errors"
	"regexp"
)

var placeholderRE = regexp.MustCompile(`\{\d+\}`)

// TranslationEntry is a single translation rule.
type TranslationEntry struct {
	Original   string
	Translated string

	// IsTemplate marks Original as a format string with {N} placeholders.
	IsTemplate bool
	// IsRegex marks Pattern as a regular expression. Translated may use
	// $1 / ${name} expansions.
	IsRegex bool
	Pattern string

	Context string
	Quality float64
}

// Exact reports whether the entry is matched by exact text.
func (e TranslationEntry) Exact() bool {
	return !e.IsTemplate && !e.IsRegex
}

// Validate checks the structural requirements of an entry.
func (e TranslationEntry) Validate() error {
	if e.IsRegex && e.Pattern == "" {
		return errors.New("regex entry has an empty pattern")
	}
	if e.IsTemplate && !placeholderRE.MatchString(e.Original) {
		return errors.New("template entry has no placeholder")
	}
	return nil
}
