// Package sanitize cleans user-supplied strings that end up in file names
// and catalog labels. Output suffixes must never turn into shell redirections
// or escape the output directory.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSuffixLength is the maximum allowed length for an output file suffix.
const MaxSuffixLength = 64

// MaxLabelLength is the maximum allowed length for a run label.
const MaxLabelLength = 80

// Pre-compiled regular expressions for performance.
var (
	// reRepeatedHyphens matches 2 or more consecutive hyphens.
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)

	// reRepeatedUnderscores matches 2 or more consecutive underscores.
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// IsRedirect reports whether s begins with a shell redirection or job control
// character (>, &, <, |).
func IsRedirect(s string) bool {
	if s == "" {
		return false
	}
	switch s[0] {
	case '>', '&', '<', '|':
		return true
	}
	return false
}

// Suffix sanitizes an output file suffix. A suffix beginning with a
// redirection character is replaced by "0". Control characters and path
// separators are removed and the result is truncated to at most
// MaxSuffixLength bytes on a rune boundary.
func Suffix(input string) string {
	if input == "" {
		return ""
	}
	if IsRedirect(input) {
		return "0"
	}

	s := stripControlChars(input)
	s = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' {
			return -1
		}
		return r
	}, s)
	s = strings.ReplaceAll(s, "..", "")

	if len(s) > MaxSuffixLength {
		n := MaxSuffixLength
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n]
	}
	return s
}

// Label sanitizes a run label, keeping only safe characters
// ([a-zA-Z0-9-_.=]) and enforcing a maximum length of MaxLabelLength.
// Repeated hyphens and underscores are collapsed to single instances.
func Label(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' || r == '.' || r == '=' {
			b.WriteRune(r)
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")

	if len(s) > MaxLabelLength {
		s = s[:MaxLabelLength]
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F and 0x7F).
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
