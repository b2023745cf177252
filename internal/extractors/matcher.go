package extractors

import (
	"sort"
	"strings"
)

// Term is a weighted lexicon pattern. Words ending in '*' match by prefix;
// multi-word patterns match consecutive tokens.
type Term struct {
	Pattern string
	Weight  float64
	words   []string
}

// T builds a unit-weight term.
func T(pattern string) Term { return Term{Pattern: pattern, Weight: 1} }

// W builds a weighted term.
func W(pattern string, weight float64) Term { return Term{Pattern: pattern, Weight: weight} }

// TermSet is a compiled group of terms.
type TermSet struct {
	terms []Term
}

// NewTermSet compiles patterns once so matching stays allocation-light.
func NewTermSet(terms ...Term) TermSet {
	compiled := make([]Term, 0, len(terms))
	for _, t := range terms {
		t.words = strings.Fields(strings.ToLower(t.Pattern))
		if len(t.words) == 0 {
			continue
		}
		if t.Weight == 0 {
			t.Weight = 1
		}
		compiled = append(compiled, t)
	}
	return TermSet{terms: compiled}
}

// Hit is a matched term with its occurrence count.
type Hit struct {
	Pattern string
	Count   int
	Weight  float64
}

// Match counts every term in tokens.
func (s TermSet) Match(tokens []string) []Hit {
	var hits []Hit
	for _, t := range s.terms {
		if n := countPattern(tokens, t.words); n > 0 {
			hits = append(hits, Hit{Pattern: t.Pattern, Count: n, Weight: t.Weight})
		}
	}
	return hits
}

// Score sums weight*count across matched terms.
func (s TermSet) Score(tokens []string) float64 {
	total := 0.0
	for _, t := range s.terms {
		if n := countPattern(tokens, t.words); n > 0 {
			total += float64(n) * t.Weight
		}
	}
	return total
}

// Contains reports whether any term matches.
func (s TermSet) Contains(tokens []string) bool {
	for _, t := range s.terms {
		if countPattern(tokens, t.words) > 0 {
			return true
		}
	}
	return false
}

// Patterns lists the source patterns.
func (s TermSet) Patterns() []string {
	out := make([]string, 0, len(s.terms))
	for _, t := range s.terms {
		out = append(out, t.Pattern)
	}
	return out
}

func countPattern(tokens, words []string) int {
	if len(words) == 0 || len(tokens) < len(words) {
		return 0
	}
	count := 0
	for i := 0; i+len(words) <= len(tokens); i++ {
		matched := true
		for j, w := range words {
			if !wordMatches(tokens[i+j], w) {
				matched = false
				break
			}
		}
		if matched {
			count++
		}
	}
	return count
}

func wordMatches(token, word string) bool {
	if strings.HasSuffix(word, "*") {
		return strings.HasPrefix(token, strings.TrimSuffix(word, "*"))
	}
	return token == word
}

// HitPatterns returns the distinct patterns of hits, sorted.
func HitPatterns(hits []Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		p := strings.TrimSuffix(h.Pattern, "*")
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HitCount sums counts across hits.
func HitCount(hits []Hit) int {
	total := 0
	for _, h := range hits {
		total += h.Count
	}
	return total
}
