// Package sanitize cleans free-form identifiers before they are stored or
// used to name output files.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxSubjectLength is the maximum allowed length for subject identifiers.
const MaxSubjectLength = 64

var (
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
	reRepeatedDots        = regexp.MustCompile(`\.{2,}`)
)

// Subject sanitizes a subject identifier, keeping only [a-zA-Z0-9._-],
// turning whitespace into underscores and enforcing MaxSubjectLength.
// Repeated separators are collapsed and leading dots removed, so the
// result is always safe as a file name component.
func Subject(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t':
			b.WriteRune('_')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = reRepeatedDots.ReplaceAllString(s, ".")
	s = strings.TrimLeft(s, ".")

	if len(s) > MaxSubjectLength {
		s = s[:MaxSubjectLength]
	}

	return s
}
