package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/engine"
	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/services"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

const maxBodyBytes = 8 << 20

// HotspotAPI is the service surface exposed over HTTP and gRPC.
type HotspotAPI interface {
	IngestSignals(ctx context.Context, signals []models.Signal) (int, error)
	SyncSignals(ctx context.Context, since time.Time) (int, error)
	ListSignals(ctx context.Context) ([]models.Signal, error)
	DeleteSignal(ctx context.Context, signalID string) error
	GetAnalysis(ctx context.Context, signalID string) (models.PipelineResult, error)
	GenerateFeatures(ctx context.Context, signalID string, force bool) (models.PipelineResult, bool, error)
	GenerateTags(ctx context.Context, signalID string, force bool) ([]string, bool, error)
	ProcessBatch(ctx context.Context, signals []models.Signal, opts models.BatchOptions) (models.BatchResult, error)
	SimilarSignals(ctx context.Context, signalID string, limit int) ([]models.SimilarSignal, error)
	StartRun(ctx context.Context, req services.RunRequest) (models.ClusteringRun, error)
	GenerateHotspots(ctx context.Context, req services.RunRequest) (models.ClusteringRun, models.Snapshot, error)
	GetRun(ctx context.Context, id string) (models.ClusteringRun, error)
	CancelRun(ctx context.Context, id string) (models.ClusteringRun, error)
	Hotspots() models.HotspotView
	Patterns(ctx context.Context) ([]models.HotspotPattern, error)
	Classify(sig models.Signal) models.DomainClassificationResult
}

// Handler serves the JSON API under /api/v1.
type Handler struct {
	logger *slog.Logger
	svc    HotspotAPI
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, svc HotspotAPI) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, svc: svc}
}

// Routes returns a mux with every API route registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/v1/signals", h.listSignals)
	mux.HandleFunc("POST /api/v1/signals", h.ingestSignals)
	mux.HandleFunc("POST /api/v1/signals/sync", h.syncSignals)
	mux.HandleFunc("DELETE /api/v1/signals/{id}", h.deleteSignal)
	mux.HandleFunc("POST /api/v1/classify", h.classify)
	mux.HandleFunc("GET /api/v1/signals/{id}/analysis", h.getAnalysis)
	mux.HandleFunc("GET /api/v1/signals/{id}/similar", h.similarSignals)
	mux.HandleFunc("POST /api/v1/signals/{id}/generate-features", h.generateFeatures)
	mux.HandleFunc("POST /api/v1/signals/{id}/generate-tags", h.generateTags)
	mux.HandleFunc("POST /api/v1/process-batch", h.processBatch)
	mux.HandleFunc("POST /api/v1/signals/clustering/generate", h.clusteringGenerate)
	mux.HandleFunc("POST /api/v1/cluster/generate-hotspots", h.generateHotspots)
	mux.HandleFunc("GET /api/v1/cluster/runs/{id}", h.getRun)
	mux.HandleFunc("DELETE /api/v1/cluster/runs/{id}", h.cancelRun)
	mux.HandleFunc("GET /api/v1/hotspots", h.hotspots)
	mux.HandleFunc("GET /api/v1/hotspots/patterns", h.patterns)
	return mux
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

type signalsRequest struct {
	Signals []models.Signal `json:"signals"`
}

type syncRequest struct {
	Since string `json:"since"`
}

type regenerateRequest struct {
	ForceRegenerate bool `json:"forceRegenerate"`
}

type processBatchRequest struct {
	Signals []models.Signal     `json:"signals"`
	Options models.BatchOptions `json:"options"`
}

type clusteringConfig struct {
	TargetClusterCount int     `json:"targetClusterCount"`
	DomainWeight       float64 `json:"domainWeight"`
	SemanticWeight     float64 `json:"semanticWeight"`
	MinClusterSize     int     `json:"minClusterSize"`
}

type clusteringGenerateRequest struct {
	ForceRegenerate  bool             `json:"forceRegenerate"`
	IncludeMetrics   bool             `json:"includeMetrics"`
	ClusteringConfig clusteringConfig `json:"clusteringConfig"`
}

type clusteringResult struct {
	RunID                  string                    `json:"runId"`
	InputSignalCount       int                       `json:"inputSignalCount"`
	OutputClusterCount     int                       `json:"outputClusterCount"`
	ClusteringEfficiency   float64                   `json:"clusteringEfficiency"`
	BusinessRelevanceScore float64                   `json:"businessRelevanceScore"`
	ExecutiveActionability float64                   `json:"executiveActionability"`
	FinalClusters          []models.Hotspot          `json:"finalClusters"`
	Outliers               []string                  `json:"outliers,omitempty"`
	ProcessingTime         float64                   `json:"processingTime"`
	GeneratedAt            time.Time                 `json:"generatedAt"`
	Metrics                *models.ClusteringMetrics `json:"metrics,omitempty"`
}

type generateHotspotsRequest struct {
	MinClusterSize     int     `json:"minClusterSize"`
	MinSamples         int     `json:"minSamples"`
	ForceReclustering  bool    `json:"forceReclustering"`
	GenerateSolutions  bool    `json:"generateSolutions"`
	TargetClusterCount int     `json:"targetClusterCount"`
	Similarity         float64 `json:"similarity"`
	Async              bool    `json:"async"`
}

type hotspotResults struct {
	AllHotspots []models.Hotspot `json:"allHotspots"`
	Outliers    []string         `json:"outliers,omitempty"`
}

type generateHotspotsResponse struct {
	Success         bool                      `json:"success"`
	RunID           string                    `json:"runId"`
	Status          models.RunStatus          `json:"status"`
	HotspotsCreated int                       `json:"hotspotsCreated"`
	Results         *hotspotResults           `json:"results,omitempty"`
	Metrics         *models.ClusteringMetrics `json:"metrics,omitempty"`
}

func (h *Handler) listSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := h.svc.ListSignals(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if signals == nil {
		signals = []models.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "signals": signals})
}

func (h *Handler) ingestSignals(w http.ResponseWriter, r *http.Request) {
	var req signalsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Signals) == 0 {
		h.writeError(w, r, invalid("api.ingestSignals", "signals must not be empty"))
		return
	}
	n, err := h.svc.IngestSignals(r.Context(), req.Signals)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "ingested": n})
}

func (h *Handler) syncSignals(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !h.decode(w, r, &req) {
		return
	}
	var since time.Time
	if req.Since != "" {
		t, err := utils.ParseRFC3339(req.Since)
		if err != nil {
			h.writeError(w, r, utils.NewKindError(utils.KindInvalidInput, "api.syncSignals", "since must be RFC3339", err))
			return
		}
		since = t
	}
	n, err := h.svc.SyncSignals(r.Context(), since)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "synced": n})
}

func (h *Handler) classify(w http.ResponseWriter, r *http.Request) {
	var sig models.Signal
	if !h.decode(w, r, &sig) {
		return
	}
	res := h.svc.Classify(sig)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"classification": res,
		"secondary":      engine.Secondary(res),
	})
}

func (h *Handler) deleteSignal(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSignal(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.GetAnalysis(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "analysis": res})
}

func (h *Handler) similarSignals(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			h.writeError(w, r, invalid("api.similarSignals", "limit must be between 1 and 100"))
			return
		}
		limit = n
	}
	hits, err := h.svc.SimilarSignals(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []models.SimilarSignal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "similar": hits})
}

func (h *Handler) generateFeatures(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, reused, err := h.svc.GenerateFeatures(r.Context(), r.PathValue("id"), req.ForceRegenerate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reused": reused, "result": res})
}

func (h *Handler) generateTags(w http.ResponseWriter, r *http.Request) {
	var req regenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	tags, reused, err := h.svc.GenerateTags(r.Context(), r.PathValue("id"), req.ForceRegenerate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reused": reused, "tags": tags})
}

func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	var req processBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Options.BatchSize < 0 {
		h.writeError(w, r, invalid("api.processBatch", "batchSize must not be negative"))
		return
	}
	res, err := h.svc.ProcessBatch(r.Context(), req.Signals, req.Options)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": res.Results, "summary": res.Summary})
}

func (h *Handler) clusteringGenerate(w http.ResponseWriter, r *http.Request) {
	var req clusteringGenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	opts := models.ClusteringOptions{
		MinClusterSize:     req.ClusteringConfig.MinClusterSize,
		TargetClusterCount: req.ClusteringConfig.TargetClusterCount,
		DomainWeight:       req.ClusteringConfig.DomainWeight,
		SemanticWeight:     req.ClusteringConfig.SemanticWeight,
		ForceReclustering:  req.ForceRegenerate,
	}
	if err := validateOptions("api.clusteringGenerate", opts); err != nil {
		h.writeError(w, r, err)
		return
	}
	_, snap, err := h.svc.GenerateHotspots(r.Context(), services.RunRequest{Options: opts, RegenerateFeatures: req.ForceRegenerate})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	m := snap.Metrics
	result := clusteringResult{
		RunID:                  snap.RunID,
		InputSignalCount:       m.InputSignalCount,
		OutputClusterCount:     m.OutputClusterCount,
		ClusteringEfficiency:   m.ClusteringEfficiency,
		BusinessRelevanceScore: m.BusinessRelevanceScore,
		ExecutiveActionability: m.ExecutiveActionability,
		FinalClusters:          nonNilHotspots(snap.Hotspots),
		Outliers:               snap.Outliers,
		ProcessingTime:         utils.Milliseconds(m.ProcessingTime),
		GeneratedAt:            m.GeneratedAt,
	}
	if req.IncludeMetrics {
		result.Metrics = &m
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result})
}

func (h *Handler) generateHotspots(w http.ResponseWriter, r *http.Request) {
	var req generateHotspotsRequest
	if !h.decode(w, r, &req) {
		return
	}
	opts := models.ClusteringOptions{
		MinClusterSize:     req.MinClusterSize,
		MinSamples:         req.MinSamples,
		ForceReclustering:  req.ForceReclustering,
		GenerateSolutions:  req.GenerateSolutions,
		TargetClusterCount: req.TargetClusterCount,
		Similarity:         req.Similarity,
	}
	if err := validateOptions("api.generateHotspots", opts); err != nil {
		h.writeError(w, r, err)
		return
	}
	runReq := services.RunRequest{Options: opts}

	if req.Async {
		run, err := h.svc.StartRun(r.Context(), runReq)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Location", "/api/v1/cluster/runs/"+run.ID)
		writeJSON(w, http.StatusAccepted, generateHotspotsResponse{Success: true, RunID: run.ID, Status: run.Status})
		return
	}

	run, snap, err := h.svc.GenerateHotspots(r.Context(), runReq)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, generateHotspotsResponse{
		Success:         true,
		RunID:           run.ID,
		Status:          run.Status,
		HotspotsCreated: hotspotsCreated(snap),
		Results:         &hotspotResults{AllHotspots: nonNilHotspots(snap.Hotspots), Outliers: snap.Outliers},
		Metrics:         &snap.Metrics,
	})
}

// hotspotsCreated is zero when the run reused the committed snapshot.
func hotspotsCreated(snap models.Snapshot) int {
	if snap.Metrics.Reused {
		return 0
	}
	return len(snap.Hotspots)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": run})
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.CancelRun(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "run": run})
}

func (h *Handler) hotspots(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Hotspots())
}

func (h *Handler) patterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := h.svc.Patterns(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if patterns == nil {
		patterns = []models.HotspotPattern{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "patterns": patterns})
}

// decode reads a JSON body. An empty body leaves dst at its zero value.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, utils.NewKindError(utils.KindInvalidInput, "api.decode", "malformed JSON body", err))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(r.Context(), level, "request failed",
		slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", status), slog.Any("error", err))
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: utils.KindOf(err).String()})
}

func httpStatus(err error) int {
	switch utils.KindOf(err) {
	case utils.KindInvalidInput:
		return http.StatusBadRequest
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindConflict:
		return http.StatusConflict
	case utils.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func invalid(op, msg string) error {
	return utils.NewKindError(utils.KindInvalidInput, op, msg, nil)
}

// validateOptions rejects clustering options the generator would refuse.
func validateOptions(op string, opts models.ClusteringOptions) error {
	if opts.MinClusterSize < 0 || opts.MinSamples < 0 || opts.TargetClusterCount < 0 {
		return invalid(op, "cluster sizes and target count must not be negative")
	}
	if opts.Similarity < 0 || opts.Similarity > 1 {
		return invalid(op, fmt.Sprintf("similarity %.2f must be in [0,1]", opts.Similarity))
	}
	if opts.DomainWeight != 0 || opts.SemanticWeight != 0 {
		if _, err := engine.NewGroupWeights(opts.DomainWeight, opts.SemanticWeight); err != nil {
			return utils.NewKindError(utils.KindInvalidInput, op, "invalid clustering weights", err)
		}
	}
	return nil
}

func nonNilHotspots(h []models.Hotspot) []models.Hotspot {
	if h == nil {
		return []models.Hotspot{}
	}
	return h
}
