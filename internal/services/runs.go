package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-hotspot/internal/cache"
	"github.com/miradorstack/mirador-hotspot/internal/engine"
	"github.com/miradorstack/mirador-hotspot/internal/metrics"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// ErrRunInProgress is returned when a clustering run is already active in this
// process or, through the shared cache lock, in another replica.
var ErrRunInProgress = errors.New("clustering run already in progress")

// ErrRunFinished is returned when cancelling a run that already ended.
var ErrRunFinished = errors.New("clustering run already finished")

// RunRequest starts a clustering run.
type RunRequest struct {
	Options models.ClusteringOptions
	// RegenerateFeatures re-analyses every signal before clustering instead of
	// only those whose content changed.
	RegenerateFeatures bool
}

type runHandle struct {
	run             models.ClusteringRun
	snapshot        *models.Snapshot
	cancel          context.CancelFunc
	cancelRequested bool
	done            chan struct{}
}

func newRunID() string { return uuid.NewString() }

// StartRun launches a clustering run in the background and returns it in the
// running state. Only one run may be active at a time.
func (s *HotspotService) StartRun(ctx context.Context, req RunRequest) (models.ClusteringRun, error) {
	h, err := s.begin(ctx, req)
	if err != nil {
		return models.ClusteringRun{}, err
	}
	return h.run, nil
}

// GenerateHotspots runs clustering to completion and returns the finished run
// with the snapshot it produced. Cancelling ctx cancels the run.
func (s *HotspotService) GenerateHotspots(ctx context.Context, req RunRequest) (models.ClusteringRun, models.Snapshot, error) {
	h, err := s.begin(ctx, req)
	if err != nil {
		return models.ClusteringRun{}, models.Snapshot{}, err
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		_, _ = s.CancelRun(context.Background(), h.run.ID)
		<-h.done
	}

	s.mu.Lock()
	run := h.run
	var snap models.Snapshot
	if h.snapshot != nil {
		snap = *h.snapshot
	}
	s.mu.Unlock()

	switch run.Status {
	case models.RunSucceeded:
		return run, snap, nil
	case models.RunCancelled:
		return run, models.Snapshot{}, utils.NewKindError(utils.KindConflict, "services.GenerateHotspots", "run cancelled", context.Canceled)
	default:
		return run, models.Snapshot{}, utils.NewAppError("services.GenerateHotspots", "clustering run failed", errors.New(run.Error))
	}
}

// GetRun returns an active or recorded run.
func (s *HotspotService) GetRun(ctx context.Context, id string) (models.ClusteringRun, error) {
	s.mu.Lock()
	if s.active != nil && s.active.run.ID == id {
		run := s.active.run
		s.mu.Unlock()
		return run, nil
	}
	s.mu.Unlock()

	run, err := s.store.GetRun(ctx, id)
	if err != nil {
		return models.ClusteringRun{}, storeError("services.GetRun", id, err)
	}
	return run, nil
}

// CancelRun requests cancellation of the active run. The previously committed
// snapshot is left untouched.
func (s *HotspotService) CancelRun(ctx context.Context, id string) (models.ClusteringRun, error) {
	s.mu.Lock()
	if s.active != nil && s.active.run.ID == id {
		s.active.cancelRequested = true
		s.active.cancel()
		run := s.active.run
		s.mu.Unlock()
		s.logger.Info("clustering run cancellation requested", slog.String("run_id", id))
		return run, nil
	}
	s.mu.Unlock()

	run, err := s.GetRun(ctx, id)
	if err != nil {
		return models.ClusteringRun{}, err
	}
	return run, utils.NewKindError(utils.KindConflict, "services.CancelRun", id, ErrRunFinished)
}

// Hotspots returns the current view. A run in progress reports processing while
// still serving the last committed hotspots; a failed latest run reports failed.
func (s *HotspotService) Hotspots() models.HotspotView {
	view := models.HotspotView{SchemaVersion: models.HotspotSchemaVersion, Hotspots: []models.Hotspot{}}
	if snap := s.current.Load(); snap != nil {
		view.RunID = snap.RunID
		if snap.Hotspots != nil {
			view.Hotspots = snap.Hotspots
		}
		view.Outliers = snap.Outliers
		m := snap.Metrics
		view.Metrics = &m
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.active != nil:
		view.State = models.ViewProcessing
		view.ActiveRunID = s.active.run.ID
	case s.lastRun != nil && s.lastRun.Status == models.RunFailed:
		view.State = models.ViewFailed
		view.Error = s.lastRun.Error
	case len(view.Hotspots) > 0:
		view.State = models.ViewReady
	default:
		view.State = models.ViewEmpty
	}
	return view
}

func (s *HotspotService) begin(ctx context.Context, req RunRequest) (*runHandle, error) {
	s.mu.Lock()
	if s.active != nil || s.starting {
		msg := "run is starting"
		if s.active != nil {
			msg = "active run " + s.active.run.ID
		}
		s.mu.Unlock()
		return nil, utils.NewKindError(utils.KindConflict, "services.StartRun", msg, ErrRunInProgress)
	}
	s.starting = true
	s.mu.Unlock()

	h, err := s.acquire(ctx, req)
	if err != nil {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
		return nil, err
	}
	runCtx, cancel := context.WithTimeout(context.Background(), s.runCfg.Timeout)
	h.cancel = cancel

	s.mu.Lock()
	s.starting = false
	s.active = h
	s.mu.Unlock()

	s.logger.Info("clustering run started", slog.String("run_id", h.run.ID), slog.Bool("force", req.Options.ForceReclustering))
	go s.execute(runCtx, h, req)
	return h, nil
}

// acquire takes the shared run lock and records the run. It runs without s.mu
// so readers are not held behind cache or store latency.
func (s *HotspotService) acquire(ctx context.Context, req RunRequest) (*runHandle, error) {
	id := s.newID()
	ok, err := s.cache.SetNX(ctx, s.runCfg.LockKey, []byte(id), s.runCfg.LockTTL)
	if err != nil {
		return nil, utils.NewKindError(utils.KindUnavailable, "services.StartRun", "acquire run lock", err)
	}
	if !ok {
		return nil, utils.NewKindError(utils.KindConflict, "services.StartRun", "run lock held by another replica", ErrRunInProgress)
	}

	req.Options.RunID = id
	run := models.ClusteringRun{
		ID:        id,
		Status:    models.RunRunning,
		Options:   req.Options,
		StartedAt: s.now().UTC(),
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.releaseLock(context.Background(), id)
		return nil, utils.NewAppError("services.StartRun", "record run", err)
	}
	return &runHandle{run: run, done: make(chan struct{})}, nil
}

// releaseLock deletes the shared run lock only while it still names runID, so
// a run whose lock expired cannot drop a lock another replica took since.
func (s *HotspotService) releaseLock(ctx context.Context, runID string) {
	held, err := s.cache.Get(ctx, s.runCfg.LockKey)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		s.logger.Debug("run lock already gone", slog.String("run_id", runID))
		return
	case err != nil:
		s.logger.Warn("read run lock failed", slog.String("run_id", runID), slog.Any("error", err))
		return
	case string(held) != runID:
		s.logger.Warn("run lock taken over by another run", slog.String("run_id", runID), slog.String("holder", string(held)))
		return
	}
	if err := s.cache.Del(ctx, s.runCfg.LockKey); err != nil {
		s.logger.Warn("release run lock failed", slog.String("run_id", runID), slog.Any("error", err))
	}
}

func (s *HotspotService) execute(ctx context.Context, h *runHandle, req RunRequest) {
	start := time.Now()
	snap, err := s.cluster(ctx, req)
	finished := s.now().UTC()

	s.mu.Lock()
	run := h.run
	run.FinishedAt = finished
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil && h.cancelRequested:
		run.Status = models.RunCancelled
		run.Error = "cancelled"
		outcome = metrics.OutcomeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		run.Status = models.RunFailed
		run.Error = fmt.Sprintf("timed out after %s", s.runCfg.Timeout)
		outcome = metrics.OutcomeError
	case err != nil:
		run.Status = models.RunFailed
		run.Error = err.Error()
		outcome = metrics.OutcomeError
	default:
		run.Status = models.RunSucceeded
		run.Metrics = snap.Metrics
		if snap.Metrics.Reused {
			outcome = metrics.OutcomeReused
		}
	}
	s.mu.Unlock()

	// Persistence uses a fresh context; the run context may already be done.
	persistCtx, cancelPersist := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPersist()

	if run.Status == models.RunSucceeded && !snap.Metrics.Reused {
		if err := s.store.CommitSnapshot(persistCtx, run, snap); err != nil {
			run.Status = models.RunFailed
			run.Error = "commit snapshot: " + err.Error()
			outcome = metrics.OutcomeError
		} else {
			s.current.Store(&snap)
			metrics.SetActiveHotspots(len(snap.Hotspots))
			s.minePatterns(persistCtx, snap)
		}
	}
	if run.Status != models.RunSucceeded || snap.Metrics.Reused {
		if err := s.store.SaveRun(persistCtx, run); err != nil {
			s.logger.Error("record run failed", slog.String("run_id", run.ID), slog.Any("error", err))
		}
	}
	metrics.ObserveClusteringRun(time.Since(start), outcome)

	s.mu.Lock()
	h.run = run
	if run.Status == models.RunSucceeded {
		h.snapshot = &snap
	}
	if run.Status != models.RunCancelled {
		last := run
		s.lastRun = &last
	}
	s.active = nil
	s.mu.Unlock()

	s.releaseLock(persistCtx, run.ID)
	h.cancel()
	close(h.done)

	attrs := []any{slog.String("run_id", run.ID), slog.String("status", string(run.Status)), slog.Duration("elapsed", time.Since(start))}
	if run.Error != "" {
		s.logger.Warn("clustering run finished", append(attrs, slog.String("error", run.Error))...)
		return
	}
	s.logger.Info("clustering run finished", append(attrs, slog.Int("hotspots", len(snap.Hotspots)))...)
}

// cluster refreshes stale analyses, then clusters every CLUSTER_READY signal.
func (s *HotspotService) cluster(ctx context.Context, req RunRequest) (models.Snapshot, error) {
	if _, err := s.AnalysePending(ctx, req.RegenerateFeatures); err != nil {
		return models.Snapshot{}, fmt.Errorf("analyse signals: %w", err)
	}
	inputs, err := s.clusterInputs(ctx)
	if err != nil {
		return models.Snapshot{}, err
	}
	return s.generator.GenerateHotspots(ctx, inputs, req.Options, s.current.Load())
}

func (s *HotspotService) clusterInputs(ctx context.Context) ([]models.ClusterInput, error) {
	ready, err := s.store.ListAnalyses(ctx, models.ActionClusterReady)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	signals, err := s.store.ListSignals(ctx)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	byID := make(map[string]models.Signal, len(signals))
	for _, sig := range signals {
		byID[sig.ID] = sig
	}

	inputs := make([]models.ClusterInput, 0, len(ready))
	for _, res := range ready {
		sig, ok := byID[res.SignalID]
		if !ok || sig.ContentHash() != res.ContentHash {
			continue
		}
		inputs = append(inputs, engine.ClusterInputFrom(sig, res))
	}
	return inputs, nil
}

func (s *HotspotService) minePatterns(ctx context.Context, snap models.Snapshot) {
	previous, err := s.store.ListPatterns(ctx)
	if err != nil {
		s.logger.Warn("load previous patterns failed", slog.Any("error", err))
	}
	if _, err := s.miner.Mine(ctx, snap, previous); err != nil {
		s.logger.Warn("pattern mining failed", slog.String("run_id", snap.RunID), slog.Any("error", err))
	}
}
