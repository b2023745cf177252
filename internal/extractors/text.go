package extractors

import (
	"strings"
	"unicode"
)

// Document is tokenised signal text ready for term matching.
type Document struct {
	Raw         string
	Tokens      []string
	TitleTokens []string
	// ContentTokens excludes stopwords and is used for length and diversity measures.
	ContentTokens []string
}

// NewDocument tokenises title and body. The title is also part of Tokens.
func NewDocument(title, body string) Document {
	titleTokens := Tokenize(title)
	bodyTokens := Tokenize(body)
	tokens := make([]string, 0, len(titleTokens)+len(bodyTokens))
	tokens = append(tokens, titleTokens...)
	tokens = append(tokens, bodyTokens...)

	content := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := stopwords[tok]; !stop {
			content = append(content, tok)
		}
	}
	return Document{
		Raw:           strings.TrimSpace(title + "\n" + body),
		Tokens:        tokens,
		TitleTokens:   titleTokens,
		ContentTokens: content,
	}
}

// Empty reports whether the document has no content tokens.
func (d Document) Empty() bool {
	return len(d.ContentTokens) == 0
}

// AvgTokenLength is the mean rune length of content tokens.
func (d Document) AvgTokenLength() float64 {
	if len(d.ContentTokens) == 0 {
		return 0
	}
	total := 0
	for _, tok := range d.ContentTokens {
		total += len([]rune(tok))
	}
	return float64(total) / float64(len(d.ContentTokens))
}

// Tokenize lowercases text and splits on anything that is not a letter or digit.
// Single-rune tokens are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

var stopwords = toSet(
	"the", "and", "or", "to", "of", "in", "on", "for", "with", "is", "are", "was", "were",
	"be", "been", "it", "its", "this", "that", "these", "those", "an", "as", "at", "by",
	"from", "our", "we", "us", "they", "their", "has", "have", "had", "not", "no", "but",
	"so", "if", "into", "out", "up", "off", "too", "very", "can", "cannot", "will", "would",
	"should", "could", "do", "does", "did", "all", "any", "each", "there", "which", "who",
	"when", "where", "than", "then", "also", "about", "after", "before", "over", "under",
	"per", "via", "my", "me", "you", "your", "he", "she", "his", "her", "them", "sit", "get",
	"gets", "got", "takes", "take", "long", "more", "most", "some", "such",
)

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
