package engine

import (
	"math"
	"sort"

	"github.com/miradorstack/mirador-hotspot/internal/extractors"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

const (
	// titleBoost is the extra weight given to terms that appear in the title.
	titleBoost = 0.5
	// fallbackConfidence is reported when no domain vocabulary matched.
	fallbackConfidence = 0.1
)

// Classifier assigns one root cause to a signal from weighted domain vocabulary.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	terms map[models.RootCause]extractors.TermSet
}

// NewClassifier returns a classifier over the built-in architecture/engineering lexicon.
func NewClassifier() *Classifier {
	return &Classifier{terms: extractors.RootCauseTerms}
}

// Classify never fails: empty or off-domain text yields PROCESS at the lowest confidence.
func (c *Classifier) Classify(inputID, title, description string, metadata map[string]string) models.DomainClassificationResult {
	doc := extractors.NewDocument(title, description)
	return c.classifyDocument(inputID, doc, nil, metadata)
}

func (c *Classifier) classifyDocument(inputID string, doc extractors.Document, departments []string, metadata map[string]string) models.DomainClassificationResult {
	deptScores := extractors.DepartmentScores(doc, departments, metadata)
	phase, _ := extractors.DetectPhase(doc, metadata)

	result := models.DomainClassificationResult{
		InputID:      inputID,
		RootCause:    models.RootCauseProcess,
		Confidence:   fallbackConfidence,
		Scores:       make(map[models.RootCause]float64, len(models.RootCauses)),
		Department:   extractors.PrimaryDepartment(deptScores),
		ProjectPhase: phase,
	}

	total := 0.0
	for _, rc := range models.RootCauses {
		set := c.terms[rc]
		score := set.Score(doc.Tokens) + titleBoost*set.Score(doc.TitleTokens)
		result.Scores[rc] = score
		total += score
	}

	jargon := extractors.Jargon.Score(doc.Tokens)
	result.DomainRelevance = math.Max(fallbackConfidence, extractors.Saturate(total+jargon, 4))
	if total == 0 {
		return result
	}

	// Ties resolve in RootCauses order so identical input always yields the same category.
	best, bestScore := models.RootCauseProcess, -1.0
	for _, rc := range models.RootCauses {
		if result.Scores[rc] > bestScore {
			best, bestScore = rc, result.Scores[rc]
		}
	}
	share := bestScore / total

	result.RootCause = best
	result.Confidence = extractors.Clamp01(0.25 + 0.45*share + 0.3*extractors.Saturate(bestScore, 3))
	result.MatchedTerms = extractors.HitPatterns(c.terms[best].Match(doc.Tokens))
	return result
}

// Secondary returns the runner-up categories with a non-zero score, strongest first.
func Secondary(result models.DomainClassificationResult) []models.RootCause {
	var out []models.RootCause
	for _, rc := range models.RootCauses {
		if rc != result.RootCause && result.Scores[rc] > 0 {
			out = append(out, rc)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return result.Scores[out[i]] > result.Scores[out[j]]
	})
	return out
}
