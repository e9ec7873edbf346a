package resolver

import "strings"

var synthesizedMarkers = []string{"d__", "c__"}

// IsSynthesizedName reports whether name looks like a compiler-synthesized
// type name: a method name between angle brackets followed by a marker,
// as in "<Move>d__3".
func IsSynthesizedName(name string) bool {
	open := strings.IndexByte(name, '<')
	if open < 0 {
		return false
	}
	end := strings.IndexByte(name[open:], '>')
	if end < 0 {
		return false
	}
	rest := name[open+end+1:]
	for _, m := range synthesizedMarkers {
		if strings.Contains(rest, m) {
			return true
		}
	}
	return false
}

// SplitSynthesizedName returns the declaring type and method encoded in a
// synthesized type name. The base type is everything before the last
// nesting separator ('+' or '/'), or before the first '<' when there is no
// separator. The method is the text between the first '<' and the next
// '>'. ok is false when name has no bracketed method.
func SplitSynthesizedName(name string) (baseType, method string, ok bool) {
	open := strings.IndexByte(name, '<')
	if open < 0 {
		return "", "", false
	}
	end := strings.IndexByte(name[open+1:], '>')
	if end < 0 {
		return "", "", false
	}
	method = name[open+1 : open+1+end]

	if sep := strings.LastIndexAny(name, "+/"); sep >= 0 {
		baseType = name[:sep]
	} else {
		baseType = name[:open]
	}
	return baseType, method, true
}
