// Package slug turns display names into stable URL identifiers such as plan
// slugs: lowercase ASCII letters and digits separated by single hyphens.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength matches the plan slug column.
const MaxLength = 64

// Make builds a slug from s. Accents are folded (é becomes e), every other
// run of non-alphanumeric characters becomes one hyphen, and the result is
// cut at maxLen runes without leaving a trailing hyphen. maxLen <= 0 means
// no limit.
func Make(s string, maxLen int) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range strings.ToLower(folded) {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			if maxLen > 0 && b.Len()+2 > maxLen {
				break
			}
			b.WriteByte('-')
			pendingSep = false
		}
		if maxLen > 0 && b.Len() >= maxLen {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Valid reports whether s is already a slug Make could have produced.
func Valid(s string) bool {
	if s == "" || len(s) > MaxLength || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	prevSep := false
	for _, r := range s {
		switch {
		case r == '-':
			if prevSep {
				return false
			}
			prevSep = true
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			prevSep = false
		default:
			return false
		}
	}
	return true
}
