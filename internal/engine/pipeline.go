package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-hotspot/internal/extractors"
	"github.com/miradorstack/mirador-hotspot/internal/metrics"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// ErrInvalidSignal marks signals the pipeline refuses to process.
var ErrInvalidSignal = errors.New("invalid signal")

const (
	// DefaultBatchBudget is the latency target for a batch of about ten signals.
	DefaultBatchBudget = 5 * time.Second
	// DefaultBatchSize bounds concurrent per-signal pipelines.
	DefaultBatchSize = 8
)

// timestampKeys are metadata entries that must hold RFC3339 values when present.
var timestampKeys = []string{"timestamp", "createdAt", "submittedAt"}

// Readiness holds the thresholds behind the clustering-readiness verdict.
type Readiness struct {
	ClusterReady  float64
	MinConfidence float64
	AIEnhance     float64
}

// DefaultReadiness returns the standard verdict thresholds.
func DefaultReadiness() Readiness {
	return Readiness{ClusterReady: 0.6, MinConfidence: 0.35, AIEnhance: 0.45}
}

// Integrator sequences classification and feature generation for single signals and batches.
type Integrator struct {
	logger      *slog.Logger
	classifier  *Classifier
	features    *FeatureEngine
	readiness   Readiness
	batchBudget time.Duration
	batchSize   int
	now         func() time.Time
}

// IntegratorOption customises an Integrator.
type IntegratorOption func(*Integrator)

// WithReadiness overrides the verdict thresholds.
func WithReadiness(r Readiness) IntegratorOption {
	return func(i *Integrator) { i.readiness = r }
}

// WithBatchBudget overrides the batch latency target.
func WithBatchBudget(d time.Duration) IntegratorOption {
	return func(i *Integrator) {
		if d > 0 {
			i.batchBudget = d
		}
	}
}

// WithBatchSize sets the default worker bound used when a request does not specify one.
func WithBatchSize(n int) IntegratorOption {
	return func(i *Integrator) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// NewIntegrator wires the pipeline. Nil collaborators get defaults.
func NewIntegrator(logger *slog.Logger, classifier *Classifier, features *FeatureEngine, opts ...IntegratorOption) *Integrator {
	if logger == nil {
		logger = slog.Default()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	if features == nil {
		features = NewFeatureEngine(logger, classifier, DefaultFeatureBudget)
	}
	i := &Integrator{
		logger:      logger,
		classifier:  classifier,
		features:    features,
		readiness:   DefaultReadiness(),
		batchBudget: DefaultBatchBudget,
		batchSize:   DefaultBatchSize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ProcessSignal classifies one signal, generates its features and attaches a verdict.
func (p *Integrator) ProcessSignal(ctx context.Context, signal models.Signal) (models.PipelineResult, error) {
	if err := ValidateSignal(signal); err != nil {
		return models.PipelineResult{}, utils.NewKindError(utils.KindInvalidInput, "pipeline.ProcessSignal", signal.ID, err)
	}
	severity, _ := models.ParseSeverity(string(signal.Severity))
	start := time.Now()

	doc := extractors.NewDocument(signal.Title, signal.Description)
	cls := p.classifier.classifyDocument(signal.ID, doc, signal.Departments, signal.Metadata)
	domainTime := time.Since(start)

	featureStart := time.Now()
	features, err := p.features.Generate(ctx, models.FeatureRequest{
		SignalID:       signal.ID,
		Classification: cls,
		InputText:      signal.Description,
		Title:          signal.Title,
		Severity:       severity,
		Departments:    signal.Departments,
		Metadata:       signal.Metadata,
	})
	if err != nil {
		return models.PipelineResult{}, fmt.Errorf("generate features: %w", err)
	}
	featureTime := time.Since(featureStart)

	assessment := p.assess(cls, features)
	metrics.ObserveSignal(string(assessment.RecommendedAction))

	return models.PipelineResult{
		SignalID:           signal.ID,
		ContentHash:        signal.ContentHash(),
		Classification:     cls,
		Features:           features,
		ReadyForClustering: assessment.RecommendedAction == models.ActionClusterReady,
		QualityAssessment:  assessment,
		Timings: models.StageTimings{
			Domain:   domainTime,
			Features: featureTime,
			Total:    time.Since(start),
		},
		ProcessedAt: p.now().UTC(),
	}, nil
}

func (p *Integrator) assess(cls models.DomainClassificationResult, features models.FeatureResult) models.QualityAssessment {
	q := features.QualityMetrics
	out := models.QualityAssessment{ReadinessScore: q.OverallConfidence}

	switch {
	case q.OverallConfidence >= p.readiness.ClusterReady && cls.Confidence >= p.readiness.MinConfidence:
		out.RecommendedAction = models.ActionClusterReady
		return out
	case q.OverallConfidence >= p.readiness.AIEnhance:
		out.RecommendedAction = models.ActionAIEnhance
	default:
		out.RecommendedAction = models.ActionManualReview
	}

	if cls.Confidence < p.readiness.MinConfidence {
		out.Reasons = append(out.Reasons, fmt.Sprintf("classification confidence %.2f below %.2f", cls.Confidence, p.readiness.MinConfidence))
	}
	if q.OverallConfidence < p.readiness.ClusterReady {
		out.Reasons = append(out.Reasons, fmt.Sprintf("overall feature confidence %.2f below %.2f", q.OverallConfidence, p.readiness.ClusterReady))
	}
	if features.Features.DomainTerminologyDensity < 0.1 {
		out.Reasons = append(out.Reasons, "little domain terminology; add project or discipline detail")
	}
	return out
}

// ProcessBatch runs every signal through the pipeline. Per-signal failures, including
// panics, are recorded in the summary and never abort siblings. Results are sorted by
// signal ID. Only a cancelled context fails the whole batch.
func (p *Integrator) ProcessBatch(ctx context.Context, signals []models.Signal, opts models.BatchOptions) (models.BatchResult, error) {
	start := time.Now()
	limit := 1
	if opts.Parallel {
		limit = opts.BatchSize
		if limit <= 0 {
			limit = p.batchSize
		}
	}

	results := make([]*models.PipelineResult, len(signals))
	failures := make([]*models.BatchFailure, len(signals))
	seen := make(map[string]struct{}, len(signals))
	for i, s := range signals {
		if _, dup := seen[s.ID]; dup && s.ID != "" {
			failures[i] = &models.BatchFailure{SignalID: s.ID, Error: "duplicate signal id in batch"}
			continue
		}
		seen[s.ID] = struct{}{}
	}

	runOne := func(ctx context.Context, i int) {
		if failures[i] != nil {
			return
		}
		signal := signals[i]
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("signal pipeline panicked", slog.String("signal_id", signal.ID), slog.Any("panic", r))
				failures[i] = &models.BatchFailure{SignalID: signal.ID, Error: fmt.Sprintf("panic: %v", r)}
			}
		}()
		if err := ctx.Err(); err != nil {
			failures[i] = &models.BatchFailure{SignalID: signal.ID, Error: err.Error()}
			return
		}
		res, err := p.ProcessSignal(ctx, signal)
		if err != nil {
			p.logger.Warn("signal failed in batch", slog.String("signal_id", signal.ID), slog.Any("error", err))
			failures[i] = &models.BatchFailure{SignalID: signal.ID, Error: err.Error()}
			return
		}
		results[i] = &res
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range signals {
		g.Go(func() error {
			runOne(gCtx, i)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return models.BatchResult{}, fmt.Errorf("process batch: %w", err)
	}

	out := models.BatchResult{Results: make([]models.PipelineResult, 0, len(signals))}
	for _, r := range results {
		if r != nil {
			out.Results = append(out.Results, *r)
		}
	}
	sort.Slice(out.Results, func(i, j int) bool { return out.Results[i].SignalID < out.Results[j].SignalID })

	var failed []models.BatchFailure
	for _, f := range failures {
		if f != nil {
			failed = append(failed, *f)
		}
	}
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].SignalID < failed[j].SignalID })

	out.Summary = summarise(out.Results, failed, len(signals))
	out.Summary.TotalTime = time.Since(start)

	if out.Summary.TotalTime > p.batchBudget {
		metrics.BudgetViolation(metrics.StageBatch)
		p.logger.Warn("batch exceeded budget",
			slog.Int("signals", len(signals)),
			slog.Duration("elapsed", out.Summary.TotalTime),
			slog.Duration("budget", p.batchBudget))
	}
	return out, nil
}

func summarise(results []models.PipelineResult, failures []models.BatchFailure, total int) models.BatchSummary {
	summary := models.BatchSummary{
		Total:      total,
		Successful: len(results),
		Failed:     len(failures),
		Actions:    make(map[models.RecommendedAction]int, 3),
		Failures:   failures,
	}
	for _, r := range results {
		summary.Actions[r.QualityAssessment.RecommendedAction]++
		if r.ReadyForClustering {
			summary.ReadyForClustering++
		}
		q := r.Features.QualityMetrics
		summary.AverageQuality.DomainRelevance += q.DomainRelevance
		summary.AverageQuality.SemanticQuality += q.SemanticQuality
		summary.AverageQuality.ExecutiveAlignment += q.ExecutiveAlignment
		summary.AverageQuality.OverallConfidence += q.OverallConfidence
	}
	if n := float64(len(results)); n > 0 {
		summary.ReadinessRate = float64(summary.ReadyForClustering) / n
		summary.AverageQuality.DomainRelevance /= n
		summary.AverageQuality.SemanticQuality /= n
		summary.AverageQuality.ExecutiveAlignment /= n
		summary.AverageQuality.OverallConfidence /= n
	}
	return summary
}

// ValidateSignal reports why the pipeline would refuse a signal, wrapping ErrInvalidSignal.
func ValidateSignal(s models.Signal) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidSignal)
	}
	if _, ok := models.ParseSeverity(string(s.Severity)); !ok {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidSignal, s.Severity)
	}
	for _, key := range timestampKeys {
		if v, ok := s.Metadata[key]; ok {
			if _, err := utils.ParseRFC3339(v); err != nil {
				return fmt.Errorf("%w: metadata %s: %v", ErrInvalidSignal, key, err)
			}
		}
	}
	return nil
}

// ClusterInputFrom adapts a pipeline result and its signal into a clustering input.
func ClusterInputFrom(signal models.Signal, res models.PipelineResult) models.ClusterInput {
	return models.ClusterInput{
		SignalID:       signal.ID,
		ContentHash:    res.ContentHash,
		Title:          signal.Title,
		Text:           signal.Text(),
		Severity:       res.Features.Features.Severity,
		Departments:    signal.Departments,
		Metadata:       signal.Metadata,
		Classification: res.Classification,
		Features:       res.Features.Features,
		Vector:         res.Features.OptimizedVector,
		Quality:        res.Features.QualityMetrics,
	}
}
