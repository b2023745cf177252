package engine

import (
	"context"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/extractors"
	"github.com/miradorstack/mirador-hotspot/internal/metrics"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// DefaultFeatureBudget is the single-signal latency target.
const DefaultFeatureBudget = time.Second

// rootCauseWeight expresses how strategically loaded each category tends to be.
var rootCauseWeight = map[models.RootCause]float64{
	models.RootCauseProcess:       0.6,
	models.RootCauseResource:      0.7,
	models.RootCauseTechnology:    0.6,
	models.RootCauseQuality:       0.8,
	models.RootCauseCommunication: 0.5,
	models.RootCauseTraining:      0.4,
}

// FeatureEngine turns a classified signal into the 89-dim clustering vector.
type FeatureEngine struct {
	logger     *slog.Logger
	classifier *Classifier
	budget     time.Duration
}

// NewFeatureEngine constructs a feature engine. A nil classifier gets the default lexicon.
func NewFeatureEngine(logger *slog.Logger, classifier *Classifier, budget time.Duration) *FeatureEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	if budget <= 0 {
		budget = DefaultFeatureBudget
	}
	return &FeatureEngine{logger: logger, classifier: classifier, budget: budget}
}

// Generate builds features for one request. Requests without a valid classification are
// classified first. The only error is a cancelled context.
func (e *FeatureEngine) Generate(ctx context.Context, req models.FeatureRequest) (models.FeatureResult, error) {
	if err := ctx.Err(); err != nil {
		return models.FeatureResult{}, err
	}
	start := time.Now()

	doc := extractors.NewDocument(req.Title, bodyText(req.Title, req.InputText))
	cls := req.Classification
	if cls.RootCause.Index() < 0 {
		cls = e.classifier.classifyDocument(req.SignalID, doc, req.Departments, req.Metadata)
	}
	severity := req.Severity
	if severity == "" {
		severity = models.SeverityMedium
	}

	result := e.build(doc, cls, severity, req)
	result.SignalID = req.SignalID
	result.ProcessingTime = time.Since(start)

	metrics.ObserveFeatureGeneration(result.ProcessingTime)
	if result.ProcessingTime > e.budget {
		metrics.BudgetViolation(metrics.StageFeatures)
		e.logger.Warn("feature generation exceeded budget",
			slog.String("signal_id", req.SignalID),
			slog.Duration("elapsed", result.ProcessingTime),
			slog.Duration("budget", e.budget))
	}
	return result, nil
}

func (e *FeatureEngine) build(doc extractors.Document, cls models.DomainClassificationResult, severity models.Severity, req models.FeatureRequest) models.FeatureResult {
	var vec models.OptimizedFeatureVector

	fillRootCause(&vec, cls)

	deptScores := extractors.DepartmentScores(doc, req.Departments, req.Metadata)
	normaliseInto(vec.Department[:], models.Departments, deptScores)
	phase, phaseScores := extractors.DetectPhase(doc, req.Metadata)
	normaliseInto(vec.ProjectPhase[:], models.ProjectPhases, phaseScores)

	fillUrgency(&vec, severity)
	fillBusinessContext(&vec, doc, severity)
	axes := fillEmbedding(&vec, doc)

	// Terminology density: jargon frequency, breadth and technical depth.
	jargonHits := extractors.Jargon.Match(doc.Tokens)
	uniqueJargon := float64(len(extractors.HitPatterns(jargonHits)))
	ratio := float64(extractors.HitCount(jargonHits)) / math.Max(1, float64(len(doc.ContentTokens)))
	density := extractors.Clamp01(0.6*(1-math.Exp(-6*ratio)) + 0.4*math.Min(1, uniqueJargon/6))
	complexity := extractors.Clamp01(0.35*math.Min(1, uniqueJargon/5) +
		0.35*math.Min(1, float64(axes)/5) +
		0.3*math.Min(1, doc.AvgTokenLength()/8))
	depth := extractors.Saturate(extractors.TechnicalJargon.Score(doc.Tokens), 3)
	vec.TerminologyDensity = [models.TerminologyDensityDims]float64{density, complexity, depth}

	tokenShare := math.Min(1, float64(len(doc.ContentTokens))/20)
	clarity := extractors.Clamp01(0.6*extractors.Saturate(extractors.ClarityCues.Score(doc.Tokens), 1.5) + 0.4*tokenShare)
	solution := extractors.Saturate(extractors.SolutionCues.Score(doc.Tokens), 1.5)
	vec.SemanticPatterns = [models.SemanticPatternDims]float64{clarity, solution}

	scope := extractors.MeasureScope(doc, deptScores)
	exec := executiveFeatures(doc, cls, severity, scope, solution)
	vec.Executive = exec

	quality := qualityMetrics(density, cls.Confidence, axes, clarity, len(doc.ContentTokens), exec)

	return models.FeatureResult{
		Features: models.ClusteringFeatures{
			RootCause:                cls.RootCause,
			PrimaryDepartment:        extractors.PrimaryDepartment(deptScores),
			ProjectPhase:             phase,
			Severity:                 severity,
			DomainTerminologyDensity: density,
			SemanticComplexity:       complexity,
			TechnicalDepth:           depth,
			ProblemClarity:           clarity,
			SolutionOrientation:      solution,
			ScopeComplexity:          scope.Complexity,
			DepartmentSpread:         scope.DepartmentSpread,
			TokenCount:               len(doc.ContentTokens),
			BusinessImpact:           exec.BusinessImpact,
			StrategicPriority:        exec.StrategicPriority,
			Actionability:            exec.Actionability,
			ExecutiveAttention:       exec.ExecutiveAttention,
		},
		OptimizedVector: vec,
		QualityMetrics:  quality,
	}
}

// fillRootCause amplifies the classified slot above 0.5 and keeps runner-ups as shares.
func fillRootCause(vec *models.OptimizedFeatureVector, cls models.DomainClassificationResult) {
	total := 0.0
	for _, s := range cls.Scores {
		total += s
	}
	primary := cls.RootCause.Index()
	for i, rc := range models.RootCauses {
		if i == primary {
			vec.RootCause[i] = 0.55 + 0.45*extractors.Clamp01(cls.Confidence)
			continue
		}
		if total > 0 {
			vec.RootCause[i] = 0.4 * cls.Scores[rc] / total
		}
	}
}

func normaliseInto(dst []float64, slots []string, scores map[string]float64) {
	peak := 0.0
	for _, s := range scores {
		peak = math.Max(peak, s)
	}
	if peak == 0 {
		return
	}
	for i, slot := range slots {
		dst[i] = scores[slot] / peak
	}
}

func fillUrgency(vec *models.OptimizedFeatureVector, severity models.Severity) {
	idx := severity.Index()
	for i := range vec.UrgencyLevel {
		switch d := i - idx; {
		case d == 0:
			vec.UrgencyLevel[i] = 1
		case d == 1 || d == -1:
			vec.UrgencyLevel[i] = 0.25
		}
	}
}

// fillBusinessContext writes three measures per theme: title presence, body density
// and severity-weighted presence.
func fillBusinessContext(vec *models.OptimizedFeatureVector, doc extractors.Document, severity models.Severity) {
	for i, theme := range extractors.BusinessThemes {
		base := i * 3
		if theme.Contains(doc.TitleTokens) {
			vec.BusinessContext[base] = 1
		}
		count := float64(extractors.HitCount(theme.Match(doc.Tokens)))
		vec.BusinessContext[base+1] = extractors.Saturate(count, 2)
		if count > 0 {
			vec.BusinessContext[base+2] = severity.Weight()
		}
	}
}

// fillEmbedding projects text onto the concept axes and L2-normalises the result.
// Text with no concept hits falls back to hashed tokens so it still has a direction.
// It returns the number of concept axes hit.
func fillEmbedding(vec *models.OptimizedFeatureVector, doc extractors.Document) int {
	axes := 0
	for i, axis := range extractors.ConceptAxes {
		score := axis.Score(doc.Tokens) + titleBoost*axis.Score(doc.TitleTokens)
		if score > 0 {
			vec.TextEmbedding[i] = math.Log1p(score)
			axes++
		}
	}
	if axes == 0 {
		for _, tok := range doc.ContentTokens {
			h := fnv.New32a()
			h.Write([]byte(tok))
			vec.TextEmbedding[h.Sum32()%models.TextEmbeddingDims] += 0.1
		}
	}
	l2Normalise(vec.TextEmbedding[:])
	return axes
}

func l2Normalise(v []float64) {
	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}

func executiveFeatures(doc extractors.Document, cls models.DomainClassificationResult, severity models.Severity, scope extractors.Scope, solution float64) models.ExecutiveFeatures {
	sev := severity.Weight()
	impactTerms := extractors.Saturate(extractors.ImpactTerms.Score(doc.Tokens), 2)
	spread := 0.0
	if scope.DepartmentSpread > 1 {
		spread = math.Min(1, float64(scope.DepartmentSpread-1)/3)
	}
	client := extractors.Saturate(extractors.BusinessThemes[extractors.ClientTheme].Score(doc.Tokens), 1)
	strategicHits := 0.0
	for _, idx := range extractors.StrategicThemes {
		strategicHits += extractors.BusinessThemes[idx].Score(doc.Tokens)
	}
	strategicThemes := extractors.Saturate(strategicHits, 2)

	impact := 0.45*sev + 0.25*impactTerms + 0.15*spread + 0.15*client
	strategic := 0.35*strategicThemes + 0.25*sev + 0.2*client + 0.2*rootCauseWeight[cls.RootCause]
	attention := 0.4*sev + 0.25*impact + 0.2*extractors.Clamp01(cls.Confidence) + 0.15*strategic
	actionability := math.Max(0.05, math.Min(1, 0.9-0.7*scope.Complexity+0.1*solution))

	return models.ExecutiveFeatures{
		BusinessImpact:     impact,
		StrategicPriority:  strategic,
		Actionability:      actionability,
		ExecutiveAttention: attention,
	}
}

func qualityMetrics(density, confidence float64, axes int, clarity float64, tokens int, exec models.ExecutiveFeatures) models.FeatureQualityMetrics {
	coverage := math.Min(1, float64(axes)/4)
	domain := 0.45 + 0.35*density + 0.2*extractors.Clamp01(confidence)
	semantic := 0.4 + 0.3*coverage + 0.15*clarity + 0.15*math.Min(1, float64(tokens)/25)
	executive := 0.45 + 0.25*exec.BusinessImpact + 0.15*exec.StrategicPriority + 0.15*exec.ExecutiveAttention
	return models.FeatureQualityMetrics{
		DomainRelevance:    domain,
		SemanticQuality:    semantic,
		ExecutiveAlignment: executive,
		OverallConfidence:  0.6*domain + 0.3*semantic + 0.1*executive,
	}
}

// bodyText strips a leading copy of the title so it is not counted twice.
func bodyText(title, input string) string {
	t := strings.TrimSpace(title)
	in := strings.TrimSpace(input)
	if t != "" && strings.HasPrefix(in, t) {
		return strings.TrimSpace(strings.TrimPrefix(in, t))
	}
	return in
}
