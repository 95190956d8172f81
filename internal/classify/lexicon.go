package classify

import (
	"regexp"
	"strings"
)

// Lexicon matches whole words and phrases, case-insensitively. A phrase
// matches across any run of whitespace.
type Lexicon struct {
	terms    []string
	patterns []*regexp.Regexp
}

func NewLexicon(terms ...string) Lexicon {
	lx := Lexicon{terms: terms, patterns: make([]*regexp.Regexp, 0, len(terms))}
	for _, term := range terms {
		words := strings.Fields(term)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		lx.patterns = append(lx.patterns, regexp.MustCompile(`(?i)\b`+strings.Join(words, `\s+`)+`\b`))
	}
	return lx
}

// Count reports how many distinct terms occur in text.
func (lx Lexicon) Count(text string) int {
	n := 0
	for _, p := range lx.patterns {
		if p.MatchString(text) {
			n++
		}
	}
	return n
}

func (lx Lexicon) Matches(text string) bool {
	for _, p := range lx.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Hits returns the matched terms in lexicon order.
func (lx Lexicon) Hits(text string) []string {
	var out []string
	for i, p := range lx.patterns {
		if p.MatchString(text) {
			out = append(out, lx.terms[i])
		}
	}
	return out
}

func (lx Lexicon) Terms() []string {
	return append([]string(nil), lx.terms...)
}
