package pattern

import (
	"regexp"
	"slices"
	"strconv"
)

// placeholderCapture replaces each placeholder in a template's expression.
const placeholderCapture = `(.+?)`

var (
	placeholderRE       = regexp.MustCompile(`\{(\d+)\}`)
	quotedPlaceholderRE = regexp.MustCompile(`\\\{(\d+)\\\}`)
)

// HasPlaceholder reports whether text contains a brace-delimited
// non-negative integer.
func HasPlaceholder(text string) bool {
	return placeholderRE.MatchString(text)
}

// PlaceholderIndices returns the sorted set of distinct placeholder indices
// in text.
func PlaceholderIndices(text string) []int {
	var indices []int
	for _, m := range placeholderRE.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			// Too large for an int. Nothing could format it anyway.
			continue
		}
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	return slices.Compact(indices)
}

// Compatible reports whether every placeholder index in original also
// appears in translated. A false result is a content problem, not a reason
// to reject the translation.
func Compatible(original, translated string) bool {
	have := PlaceholderIndices(translated)
	for _, idx := range PlaceholderIndices(original) {
		if _, found := slices.BinarySearch(have, idx); !found {
			return false
		}
	}
	return true
}

// Format replaces each {N} in format with values[N]. Placeholders without a
// value are left as they are.
func Format(format string, values map[int]string) string {
	if len(values) == 0 {
		return format
	}
	return placeholderRE.ReplaceAllStringFunc(format, func(tok string) string {
		idx, err := strconv.Atoi(tok[1 : len(tok)-1])
		if err != nil {
			return tok
		}
		if v, ok := values[idx]; ok {
			return v
		}
		return tok
	})
}

// MatchingPattern builds the anchored expression for a template. Each
// placeholder becomes a non-greedy group capturing at least one character;
// everything else matches literally.
func MatchingPattern(template string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(template)
	expr := quotedPlaceholderRE.ReplaceAllLiteralString(quoted, placeholderCapture)
	return regexp.Compile(`(?s)^` + expr + `$`)
}
