package ocr

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Plausible applies the lightweight text filter: the stripped text must reach
// minLen characters and contain at least one letter or digit. Pure symbol or
// whitespace output is rejected. Lengths count runes, not bytes, so non-Latin
// scripts are gated the same as ASCII.
func Plausible(text string, minLen int) bool {
	stripped := strings.TrimSpace(text)
	if utf8.RuneCountInString(stripped) < minLen {
		return false
	}
	for _, r := range stripped {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// Fuse selects the best candidate: longest text first, confidence as the
// tie-break. Order among equals follows the input slice, so earlier backends
// win remaining ties. Empty candidates are ignored.
func Fuse(candidates []Candidate) (Candidate, bool) {
	var (
		best  Candidate
		found bool
	)
	for _, c := range candidates {
		if c.Empty() {
			continue
		}
		if !found || better(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func better(a, b Candidate) bool {
	la, lb := utf8.RuneCountInString(a.Text), utf8.RuneCountInString(b.Text)
	if la != lb {
		return la > lb
	}
	return a.Confidence > b.Confidence
}
