// Package textnorm folds Turkish text into the ASCII form used for search
// matching, fuzzy keys and slugs.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Turkish)

// Fold lower-cases s with Turkish rules (İ→i, I→ı), strips diacritics, maps
// the dotless ı to i and collapses whitespace.
func Fold(s string) string {
	if s == "" {
		return ""
	}
	s = lower.String(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		switch r {
		case 'ı':
			return 'i'
		case 'ß':
			return 's'
		}
		return r
	}, folded)
	return strings.Join(strings.Fields(folded), " ")
}

// Terms splits the folded text into unique search terms, keeping order.
func Terms(s string) []string {
	fields := strings.Fields(Fold(s))
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// Slug folds s and joins alphanumeric runs with single hyphens.
func Slug(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range Fold(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
