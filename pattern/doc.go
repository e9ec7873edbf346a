// Package pattern matches runtime strings against template and regular
// expression translation entries.
//
// A template is a format string with positional placeholders such as {0}.
// It is turned into an anchored regular expression in which every
// placeholder captures one or more characters, so "Raid will arrive in {0}
// hours" matches "Raid will arrive in 3 hours" and the captured "3" is
// substituted into the translated text.
package pattern
