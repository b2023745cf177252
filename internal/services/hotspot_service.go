package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
	"github.com/miradorstack/mirador-hotspot/internal/engine"
	"github.com/miradorstack/mirador-hotspot/internal/llm"
	"github.com/miradorstack/mirador-hotspot/internal/metrics"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/patterns"
	"github.com/miradorstack/mirador-hotspot/internal/repo"
	"github.com/miradorstack/mirador-hotspot/internal/store"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// Store is the persistence the service needs; *store.Store implements it.
type Store interface {
	UpsertSignals(ctx context.Context, signals []models.Signal) error
	GetSignal(ctx context.Context, id string) (models.Signal, error)
	ListSignals(ctx context.Context) ([]models.Signal, error)
	DeleteSignal(ctx context.Context, id string) error
	SaveAnalyses(ctx context.Context, results []models.PipelineResult) error
	GetAnalysis(ctx context.Context, signalID string) (models.PipelineResult, error)
	ListAnalyses(ctx context.Context, action models.RecommendedAction) ([]models.PipelineResult, error)
	SaveTags(ctx context.Context, signalID, contentHash string, tags []string, at time.Time) error
	GetTags(ctx context.Context, signalID string) (string, []string, error)
	CommitSnapshot(ctx context.Context, run models.ClusteringRun, snap models.Snapshot) error
	LoadSnapshot(ctx context.Context) (models.Snapshot, error)
	SaveRun(ctx context.Context, run models.ClusteringRun) error
	GetRun(ctx context.Context, id string) (models.ClusteringRun, error)
	RecentRuns(ctx context.Context, limit int) ([]models.ClusteringRun, error)
	ReplacePatterns(ctx context.Context, patterns []models.HotspotPattern) error
	ListPatterns(ctx context.Context) ([]models.HotspotPattern, error)
}

// SignalSource pulls signals from the upstream application.
type SignalSource interface {
	Enabled() bool
	FetchSignals(ctx context.Context, since time.Time) ([]models.Signal, error)
}

// VectorIndex answers nearest-neighbour queries over feature vectors.
type VectorIndex interface {
	Enabled() bool
	Upsert(ctx context.Context, signals []repo.IndexedSignal) error
	Similar(ctx context.Context, excludeID string, vector []float64, limit int) ([]models.SimilarSignal, error)
	Delete(ctx context.Context, signalID string) error
}

// Deps are the collaborators of HotspotService. Store, Classifier, Integrator and
// Generator are required.
type Deps struct {
	Store      Store
	Classifier *engine.Classifier
	Integrator *engine.Integrator
	Generator  *engine.Generator
	Tagger     llm.Tagger
	Miner      *patterns.Miner
	Source     SignalSource
	Index      VectorIndex
	Cache      cache.Provider
}

// RunConfig bounds clustering runs.
type RunConfig struct {
	Timeout time.Duration
	LockKey string
	LockTTL time.Duration
}

// DefaultRunConfig returns the run limits used when none are configured.
func DefaultRunConfig() RunConfig {
	return RunConfig{Timeout: 2 * time.Minute, LockKey: "lock:clustering-run", LockTTL: 5 * time.Minute}
}

// HotspotService is the facade over ingestion, analysis and clustering used by
// both transports and the CLI.
type HotspotService struct {
	logger     *slog.Logger
	store      Store
	classifier *engine.Classifier
	integrator *engine.Integrator
	generator  *engine.Generator
	tagger     llm.Tagger
	miner      *patterns.Miner
	source     SignalSource
	index      VectorIndex
	cache      cache.Provider
	runCfg     RunConfig
	latencies  *utils.LatencyTracker
	stages     *utils.StageLatencies
	newID      func() string
	now        func() time.Time

	current atomic.Pointer[models.Snapshot]

	mu       sync.Mutex
	active   *runHandle
	starting bool
	lastRun  *models.ClusteringRun
}

// NewHotspotService wires the service. Optional collaborators fall back to
// keyword tagging, no vector index, no upstream source and no shared cache.
func NewHotspotService(logger *slog.Logger, deps Deps, runCfg RunConfig) (*HotspotService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Store == nil || deps.Classifier == nil || deps.Integrator == nil || deps.Generator == nil {
		return nil, errors.New("hotspot service: store, classifier, integrator and generator are required")
	}
	if deps.Tagger == nil {
		deps.Tagger = llm.NewKeywordTagger(0)
	}
	if deps.Miner == nil {
		deps.Miner = patterns.NewMiner(logger, deps.Store)
	}
	if deps.Cache == nil {
		deps.Cache = cache.NoopProvider{}
	}
	def := DefaultRunConfig()
	if runCfg.Timeout <= 0 {
		runCfg.Timeout = def.Timeout
	}
	if runCfg.LockKey == "" {
		runCfg.LockKey = def.LockKey
	}
	if runCfg.LockTTL <= 0 {
		runCfg.LockTTL = max(def.LockTTL, 2*runCfg.Timeout)
	}
	if runCfg.LockTTL <= runCfg.Timeout {
		return nil, fmt.Errorf("hotspot service: run lock TTL %s must exceed run timeout %s", runCfg.LockTTL, runCfg.Timeout)
	}
	return &HotspotService{
		logger:     logger,
		store:      deps.Store,
		classifier: deps.Classifier,
		integrator: deps.Integrator,
		generator:  deps.Generator,
		tagger:     deps.Tagger,
		miner:      deps.Miner,
		source:     deps.Source,
		index:      deps.Index,
		cache:      deps.Cache,
		runCfg:     runCfg,
		latencies:  utils.NewLatencyTracker(1024),
		stages:     utils.NewStageLatencies(1024),
		newID:      newRunID,
		now:        time.Now,
	}, nil
}

// Restore loads the last committed snapshot and run so readers see it after a restart.
func (s *HotspotService) Restore(ctx context.Context) error {
	snap, err := s.store.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	default:
		s.current.Store(&snap)
		metrics.SetActiveHotspots(len(snap.Hotspots))
	}

	runs, err := s.store.RecentRuns(ctx, 1)
	if err != nil {
		return fmt.Errorf("load recent runs: %w", err)
	}
	if len(runs) == 1 {
		run := runs[0]
		if !run.Status.Done() {
			// A run that was in flight when the process stopped never committed.
			run.Status = models.RunFailed
			run.Error = "interrupted by restart"
			run.FinishedAt = s.now().UTC()
			if err := s.store.SaveRun(ctx, run); err != nil {
				s.logger.Warn("record interrupted run failed", slog.String("run_id", run.ID), slog.Any("error", err))
			}
		}
		s.mu.Lock()
		s.lastRun = &run
		s.mu.Unlock()
	}
	return nil
}

// IngestSignals validates and upserts signals. CreatedAt defaults to now.
func (s *HotspotService) IngestSignals(ctx context.Context, signals []models.Signal) (int, error) {
	now := s.now().UTC()
	clean := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		sig.ID = strings.TrimSpace(sig.ID)
		if sig.ID == "" {
			return 0, utils.NewKindError(utils.KindInvalidInput, "services.IngestSignals", "signal id is required", engine.ErrInvalidSignal)
		}
		severity, ok := models.ParseSeverity(string(sig.Severity))
		if !ok {
			return 0, utils.NewKindError(utils.KindInvalidInput, "services.IngestSignals",
				fmt.Sprintf("signal %s has unknown severity %q", sig.ID, sig.Severity), engine.ErrInvalidSignal)
		}
		sig.Severity = severity
		if sig.CreatedAt.IsZero() {
			sig.CreatedAt = now
		}
		if sig.UpdatedAt.IsZero() {
			sig.UpdatedAt = now
		}
		clean = append(clean, sig)
	}
	if err := s.store.UpsertSignals(ctx, clean); err != nil {
		return 0, utils.NewAppError("services.IngestSignals", "persist signals", err)
	}
	return len(clean), nil
}

// SyncSignals pulls signals updated since the given time from the upstream application.
func (s *HotspotService) SyncSignals(ctx context.Context, since time.Time) (int, error) {
	if s.source == nil || !s.source.Enabled() {
		return 0, utils.NewKindError(utils.KindUnavailable, "services.SyncSignals", "signal source not configured", nil)
	}
	signals, err := s.source.FetchSignals(ctx, since)
	if err != nil {
		return 0, utils.NewKindError(utils.KindUnavailable, "services.SyncSignals", "fetch upstream signals", err)
	}
	n, err := s.IngestSignals(ctx, signals)
	if err != nil {
		return 0, err
	}
	s.logger.Info("signals synced", slog.Int("count", n), slog.Time("since", since))
	return n, nil
}

// ListSignals returns all stored signals.
func (s *HotspotService) ListSignals(ctx context.Context) ([]models.Signal, error) {
	signals, err := s.store.ListSignals(ctx)
	if err != nil {
		return nil, utils.NewAppError("services.ListSignals", "list signals", err)
	}
	return signals, nil
}

// DeleteSignal removes a signal, its analysis and its indexed vector. The
// current hotspot snapshot is left as committed until the next run.
func (s *HotspotService) DeleteSignal(ctx context.Context, signalID string) error {
	if err := s.store.DeleteSignal(ctx, signalID); err != nil {
		return storeError("services.DeleteSignal", signalID, err)
	}
	if s.index != nil && s.index.Enabled() {
		if err := s.index.Delete(ctx, signalID); err != nil {
			s.logger.Warn("vector delete failed", slog.String("signal_id", signalID), slog.Any("error", err))
		}
	}
	return nil
}

// GetAnalysis returns the latest stored analysis for a signal.
func (s *HotspotService) GetAnalysis(ctx context.Context, signalID string) (models.PipelineResult, error) {
	res, err := s.store.GetAnalysis(ctx, signalID)
	if err != nil {
		return models.PipelineResult{}, storeError("services.GetAnalysis", signalID, err)
	}
	return res, nil
}

// GenerateFeatures analyses one stored signal. Without force, a stored analysis
// whose content hash still matches is returned and reused is true.
func (s *HotspotService) GenerateFeatures(ctx context.Context, signalID string, force bool) (models.PipelineResult, bool, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return models.PipelineResult{}, false, storeError("services.GenerateFeatures", signalID, err)
	}
	if !force {
		if prev, err := s.store.GetAnalysis(ctx, signalID); err == nil && prev.ContentHash == sig.ContentHash() {
			return prev, true, nil
		}
	}

	res, err := s.integrator.ProcessSignal(ctx, sig)
	if err != nil {
		return models.PipelineResult{}, false, err
	}
	s.observeLatency(res.Timings)
	if hash, tags, err := s.store.GetTags(ctx, signalID); err == nil && hash == res.ContentHash {
		res.Tags = tags
	}
	if err := s.persistAnalyses(ctx, []models.Signal{sig}, []models.PipelineResult{res}); err != nil {
		return models.PipelineResult{}, false, err
	}
	return res, false, nil
}

// GenerateTags tags one stored signal. Without force, tags generated for the
// current content hash are returned and reused is true.
func (s *HotspotService) GenerateTags(ctx context.Context, signalID string, force bool) ([]string, bool, error) {
	sig, err := s.store.GetSignal(ctx, signalID)
	if err != nil {
		return nil, false, storeError("services.GenerateTags", signalID, err)
	}
	hash := sig.ContentHash()
	if !force {
		if stored, tags, err := s.store.GetTags(ctx, signalID); err == nil && stored == hash {
			return tags, true, nil
		}
	}

	cls := s.classifier.Classify(sig.ID, sig.Title, sig.Description, sig.Metadata)
	if prev, err := s.store.GetAnalysis(ctx, signalID); err == nil && prev.ContentHash == hash {
		cls = prev.Classification
	}
	tags, err := s.tagger.Tags(ctx, llm.TagRequest{Signal: sig, Classification: cls})
	if err != nil {
		return nil, false, utils.NewKindError(utils.KindUnavailable, "services.GenerateTags", "tag generation failed", err)
	}
	if err := s.store.SaveTags(ctx, signalID, hash, tags, s.now().UTC()); err != nil {
		return nil, false, utils.NewAppError("services.GenerateTags", "persist tags", err)
	}
	return tags, false, nil
}

// ProcessBatch upserts the valid signals, analyses every submitted signal and
// stores the results. Invalid signals are not persisted and show up as batch
// failures, even when a stored signal with the same ID exists.
func (s *HotspotService) ProcessBatch(ctx context.Context, signals []models.Signal, opts models.BatchOptions) (models.BatchResult, error) {
	if len(signals) == 0 {
		return models.BatchResult{}, utils.NewKindError(utils.KindInvalidInput, "services.ProcessBatch", "no signals supplied", nil)
	}

	var valid []models.Signal
	for _, sig := range signals {
		if engine.ValidateSignal(sig) == nil {
			valid = append(valid, sig)
		}
	}
	if len(valid) == 0 {
		return s.analyse(ctx, signals, opts)
	}
	if _, err := s.IngestSignals(ctx, valid); err != nil {
		return models.BatchResult{}, err
	}

	// Valid signals are analysed in their stored form so severity and timestamps
	// match what clustering later reads back.
	batch := make([]models.Signal, 0, len(signals))
	for _, sig := range signals {
		if engine.ValidateSignal(sig) != nil {
			batch = append(batch, sig)
			continue
		}
		stored, err := s.store.GetSignal(ctx, strings.TrimSpace(sig.ID))
		if err != nil {
			return models.BatchResult{}, storeError("services.ProcessBatch", sig.ID, err)
		}
		batch = append(batch, stored)
	}
	return s.analyse(ctx, batch, opts)
}

// AnalysePending analyses stored signals that have no analysis for their current
// content, or every signal when force is set. It returns how many were processed.
func (s *HotspotService) AnalysePending(ctx context.Context, force bool) (models.BatchSummary, error) {
	signals, err := s.store.ListSignals(ctx)
	if err != nil {
		return models.BatchSummary{}, utils.NewAppError("services.AnalysePending", "list signals", err)
	}
	analyses, err := s.store.ListAnalyses(ctx, "")
	if err != nil {
		return models.BatchSummary{}, utils.NewAppError("services.AnalysePending", "list analyses", err)
	}
	hashes := make(map[string]string, len(analyses))
	for _, a := range analyses {
		hashes[a.SignalID] = a.ContentHash
	}

	var pending []models.Signal
	for _, sig := range signals {
		if force || hashes[sig.ID] != sig.ContentHash() {
			pending = append(pending, sig)
		}
	}
	if len(pending) == 0 {
		return models.BatchSummary{Actions: map[models.RecommendedAction]int{}}, nil
	}
	res, err := s.analyse(ctx, pending, models.BatchOptions{Parallel: true})
	if err != nil {
		return models.BatchSummary{}, err
	}
	return res.Summary, nil
}

func (s *HotspotService) analyse(ctx context.Context, signals []models.Signal, opts models.BatchOptions) (models.BatchResult, error) {
	res, err := s.integrator.ProcessBatch(ctx, signals, opts)
	if err != nil {
		return models.BatchResult{}, err
	}
	for _, r := range res.Results {
		s.observeLatency(r.Timings)
	}
	if err := s.persistAnalyses(ctx, signals, res.Results); err != nil {
		return models.BatchResult{}, err
	}
	return res, nil
}

func (s *HotspotService) persistAnalyses(ctx context.Context, signals []models.Signal, results []models.PipelineResult) error {
	if len(results) == 0 {
		return nil
	}
	if err := s.store.SaveAnalyses(ctx, results); err != nil {
		return utils.NewAppError("services.persistAnalyses", "persist analyses", err)
	}
	if s.index == nil || !s.index.Enabled() {
		return nil
	}

	byID := make(map[string]models.Signal, len(signals))
	for _, sig := range signals {
		byID[sig.ID] = sig
	}
	indexed := make([]repo.IndexedSignal, 0, len(results))
	for _, r := range results {
		indexed = append(indexed, repo.IndexedSignal{
			SignalID:    r.SignalID,
			Title:       byID[r.SignalID].Title,
			ContentHash: r.ContentHash,
			RootCause:   r.Classification.RootCause,
			Departments: byID[r.SignalID].Departments,
			Vector:      r.Features.OptimizedVector.Flatten(),
		})
	}
	if err := s.index.Upsert(ctx, indexed); err != nil {
		s.logger.Warn("vector index upsert failed", slog.Int("signals", len(indexed)), slog.Any("error", err))
	}
	return nil
}

// SimilarSignals finds signals closest to the given one. The vector index is
// used when configured; otherwise stored analyses are compared in process with
// the clustering similarity.
func (s *HotspotService) SimilarSignals(ctx context.Context, signalID string, limit int) ([]models.SimilarSignal, error) {
	if limit <= 0 {
		limit = 5
	}
	target, err := s.store.GetAnalysis(ctx, signalID)
	if err != nil {
		return nil, storeError("services.SimilarSignals", signalID, err)
	}

	if s.index != nil && s.index.Enabled() {
		hits, err := s.index.Similar(ctx, signalID, target.Features.OptimizedVector.Flatten(), limit)
		if err == nil {
			return hits, nil
		}
		s.logger.Warn("vector index query failed, using local similarity", slog.String("signal_id", signalID), slog.Any("error", err))
	}

	analyses, err := s.store.ListAnalyses(ctx, "")
	if err != nil {
		return nil, utils.NewAppError("services.SimilarSignals", "list analyses", err)
	}
	signals, err := s.store.ListSignals(ctx)
	if err != nil {
		return nil, utils.NewAppError("services.SimilarSignals", "list signals", err)
	}
	titles := make(map[string]string, len(signals))
	for _, sig := range signals {
		titles[sig.ID] = sig.Title
	}

	weights := engine.DefaultGroupWeights()
	hits := make([]models.SimilarSignal, 0, len(analyses))
	for _, a := range analyses {
		if a.SignalID == signalID {
			continue
		}
		hits = append(hits, models.SimilarSignal{
			SignalID:   a.SignalID,
			Title:      titles[a.SignalID],
			RootCause:  a.Classification.RootCause,
			Similarity: engine.Similarity(target.Features.OptimizedVector, a.Features.OptimizedVector, weights),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].SignalID < hits[j].SignalID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Patterns returns mined recurring hotspot patterns.
func (s *HotspotService) Patterns(ctx context.Context) ([]models.HotspotPattern, error) {
	p, err := s.store.ListPatterns(ctx)
	if err != nil {
		return nil, utils.NewAppError("services.Patterns", "list patterns", err)
	}
	return p, nil
}

func (s *HotspotService) observeLatency(t models.StageTimings) {
	s.latencies.Observe(t.Total)
	s.stages.Observe("domain", t.Domain)
	s.stages.Observe("features", t.Features)
	if count := s.latencies.Count(); count >= 50 && count%50 == 0 {
		s.logger.Info("signal analysis latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Duration("domain_p95", s.stages.P95("domain")),
			slog.Duration("features_p95", s.stages.P95("features")),
			slog.Int("samples", count))
	}
}

func storeError(op, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return utils.NewKindError(utils.KindNotFound, op, id+" not found", err)
	}
	return utils.NewAppError(op, id, err)
}

// Classify runs domain classification on a signal without storing anything.
func (s *HotspotService) Classify(sig models.Signal) models.DomainClassificationResult {
	return s.classifier.Classify(sig.ID, sig.Title, sig.Description, sig.Metadata)
}
