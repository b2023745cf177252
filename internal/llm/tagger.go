package llm

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-hotspot/internal/extractors"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// DefaultMaxTags caps the number of tags attached to one signal.
const DefaultMaxTags = 8

// TagRequest carries a signal and its classification into a Tagger.
type TagRequest struct {
	Signal         models.Signal
	Classification models.DomainClassificationResult
}

// Tagger produces short, lowercase topic tags for a signal.
type Tagger interface {
	Tags(ctx context.Context, req TagRequest) ([]string, error)
	Name() string
}

// KeywordTagger derives tags from the classification, scope and entities
// without any network call.
type KeywordTagger struct {
	maxTags  int
	entities *extractors.EntityExtractor
}

// NewKeywordTagger returns a deterministic tagger.
func NewKeywordTagger(maxTags int) *KeywordTagger {
	if maxTags <= 0 {
		maxTags = DefaultMaxTags
	}
	return &KeywordTagger{maxTags: maxTags, entities: extractors.NewEntityExtractor()}
}

func (k *KeywordTagger) Name() string { return "keyword" }

// Tags orders candidates root cause first, then department and phase, matched
// domain terms, entities, and finally the most frequent content words.
func (k *KeywordTagger) Tags(_ context.Context, req TagRequest) ([]string, error) {
	sig, cls := req.Signal, req.Classification
	var candidates []string
	if cls.RootCause != "" {
		candidates = append(candidates, string(cls.RootCause))
	}
	candidates = append(candidates, cls.Department, cls.ProjectPhase)
	candidates = append(candidates, cls.MatchedTerms...)

	ents := k.entities.Extract(sig.Title, sig.Description, sig.Metadata)
	candidates = append(candidates, ents.Vendors...)
	candidates = append(candidates, ents.Projects...)

	doc := extractors.NewDocument(sig.Title, sig.Description)
	candidates = append(candidates, frequentWords(doc.ContentTokens, k.maxTags)...)

	return normaliseTags(candidates, k.maxTags), nil
}

func frequentWords(tokens []string, n int) []string {
	counts := make(map[string]int)
	for _, tok := range tokens {
		if len(tok) > 3 {
			counts[tok]++
		}
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// normaliseTags lowercases, hyphenates and de-duplicates tags, keeping order.
func normaliseTags(raw []string, max int) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, max)
	for _, r := range raw {
		tag := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(r))), "-")
		tag = strings.Trim(tag, "-#.,;:")
		if tag == "" || len(tag) > 40 {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
		if len(out) == max {
			break
		}
	}
	return out
}

// Config selects a tagger implementation.
type Config struct {
	Provider string
	APIKey   string
	Model    string
	MaxTags  int
}

// NewTagger returns an Anthropic-backed tagger when provider is "anthropic" and a
// key is present, otherwise the keyword tagger.
func NewTagger(cfg Config, logger *slog.Logger) Tagger {
	if logger == nil {
		logger = slog.Default()
	}
	keyword := NewKeywordTagger(cfg.MaxTags)
	if strings.EqualFold(cfg.Provider, "anthropic") && cfg.APIKey != "" {
		return NewAnthropicTagger(cfg.APIKey, cfg.Model, cfg.MaxTags, keyword, logger)
	}
	if cfg.Provider != "" && !strings.EqualFold(cfg.Provider, "keyword") {
		logger.Warn("llm provider unavailable, using keyword tagger", slog.String("provider", cfg.Provider))
	}
	return keyword
}
