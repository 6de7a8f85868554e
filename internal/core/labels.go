package core

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeLabel trims s and capitalizes its first letter, lower-casing the
// rest. Whitespace-only input yields "".
func NormalizeLabel(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	_, size := utf8.DecodeRuneInString(s)
	// Casers carry state and are not shared between goroutines.
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	return upper.String(s[:size]) + lower.String(s[size:])
}

// labelKey is the case-insensitive identity of a label.
func labelKey(s string) string {
	return strings.ToLower(NormalizeLabel(s))
}
