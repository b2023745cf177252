package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
	"github.com/miradorstack/mirador-hotspot/internal/services"
	"github.com/miradorstack/mirador-hotspot/internal/utils"
)

// stubService implements HotspotAPI with canned responses and records the calls it receives.
type stubService struct {
	ingested    []models.Signal
	since       time.Time
	forced      bool
	runReq      services.RunRequest
	started     bool
	snapshot    models.Snapshot
	runErr      error
	analysisErr error
	view        models.HotspotView
	deleted     []string
}

func (s *stubService) IngestSignals(_ context.Context, signals []models.Signal) (int, error) {
	s.ingested = signals
	return len(signals), nil
}

func (s *stubService) SyncSignals(_ context.Context, since time.Time) (int, error) {
	s.since = since
	return 3, nil
}

func (s *stubService) ListSignals(context.Context) ([]models.Signal, error) { return nil, nil }

func (s *stubService) DeleteSignal(_ context.Context, id string) error {
	if s.analysisErr != nil {
		return s.analysisErr
	}
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubService) GetAnalysis(_ context.Context, id string) (models.PipelineResult, error) {
	if s.analysisErr != nil {
		return models.PipelineResult{}, s.analysisErr
	}
	return models.PipelineResult{SignalID: id}, nil
}

func (s *stubService) GenerateFeatures(_ context.Context, id string, force bool) (models.PipelineResult, bool, error) {
	s.forced = force
	return models.PipelineResult{SignalID: id}, !force, nil
}

func (s *stubService) GenerateTags(_ context.Context, _ string, force bool) ([]string, bool, error) {
	s.forced = force
	return []string{"process", "permit"}, !force, nil
}

func (s *stubService) ProcessBatch(_ context.Context, signals []models.Signal, _ models.BatchOptions) (models.BatchResult, error) {
	return models.BatchResult{Summary: models.BatchSummary{Total: len(signals), Successful: len(signals)}}, nil
}

func (s *stubService) SimilarSignals(context.Context, string, int) ([]models.SimilarSignal, error) {
	return []models.SimilarSignal{{SignalID: "sig-2", Similarity: 0.9}}, nil
}

func (s *stubService) StartRun(_ context.Context, req services.RunRequest) (models.ClusteringRun, error) {
	s.runReq = req
	s.started = true
	if s.runErr != nil {
		return models.ClusteringRun{}, s.runErr
	}
	return models.ClusteringRun{ID: "run-async", Status: models.RunRunning}, nil
}

func (s *stubService) GenerateHotspots(_ context.Context, req services.RunRequest) (models.ClusteringRun, models.Snapshot, error) {
	s.runReq = req
	if s.runErr != nil {
		return models.ClusteringRun{}, models.Snapshot{}, s.runErr
	}
	return models.ClusteringRun{ID: s.snapshot.RunID, Status: models.RunSucceeded}, s.snapshot, nil
}

func (s *stubService) GetRun(_ context.Context, id string) (models.ClusteringRun, error) {
	if id != "run-1" {
		return models.ClusteringRun{}, utils.NewKindError(utils.KindNotFound, "stub.GetRun", id, nil)
	}
	return models.ClusteringRun{ID: id, Status: models.RunSucceeded}, nil
}

func (s *stubService) CancelRun(_ context.Context, id string) (models.ClusteringRun, error) {
	return models.ClusteringRun{ID: id}, utils.NewKindError(utils.KindConflict, "stub.CancelRun", id, services.ErrRunFinished)
}

func (s *stubService) Hotspots() models.HotspotView { return s.view }

func (s *stubService) Patterns(context.Context) ([]models.HotspotPattern, error) { return nil, nil }

func (s *stubService) Classify(sig models.Signal) models.DomainClassificationResult {
	return models.DomainClassificationResult{
		InputID:   sig.ID,
		RootCause: models.RootCauseProcess,
		Scores: map[models.RootCause]float64{
			models.RootCauseProcess:       2.5,
			models.RootCauseCommunication: 1,
			models.RootCauseResource:      0.5,
		},
	}
}

func testSnapshot() models.Snapshot {
	return models.Snapshot{
		RunID:    "run-1",
		Hotspots: []models.Hotspot{{ID: "hs-1", SchemaVersion: models.HotspotSchemaVersion, RunID: "run-1"}},
		Outliers: []string{"sig-9"},
		Metrics: models.ClusteringMetrics{
			InputSignalCount:     3,
			OutputClusterCount:   1,
			ClusteringEfficiency: 2.0 / 3.0,
			ProcessingTime:       1500 * time.Microsecond,
		},
	}
}

func newTestHandler(svc *stubService) http.Handler {
	return NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc).Routes()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestClusteringGenerateResponseShape(t *testing.T) {
	svc := &stubService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/api/v1/signals/clustering/generate",
		`{"forceRegenerate":true,"includeMetrics":false,"clusteringConfig":{"targetClusterCount":4,"domainWeight":0.5,"semanticWeight":0.4,"minClusterSize":3}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	want := models.ClusteringOptions{
		MinClusterSize:     3,
		TargetClusterCount: 4,
		DomainWeight:       0.5,
		SemanticWeight:     0.4,
		ForceReclustering:  true,
	}
	if diff := cmp.Diff(want, svc.runReq.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if !svc.runReq.RegenerateFeatures {
		t.Fatal("forceRegenerate should regenerate features")
	}

	body := decodeBody(t, rec)
	result := body["result"].(map[string]any)
	if body["success"] != true || result["inputSignalCount"].(float64) != 3 || result["outputClusterCount"].(float64) != 1 {
		t.Fatalf("unexpected body: %v", body)
	}
	if result["processingTime"].(float64) != 1.5 {
		t.Fatalf("processing time should be in ms, got %v", result["processingTime"])
	}
	if len(result["finalClusters"].([]any)) != 1 {
		t.Fatalf("expected one final cluster: %v", result)
	}
	if _, ok := result["metrics"]; ok {
		t.Fatal("metrics must be omitted unless includeMetrics is set")
	}
}

func TestClusteringGenerateRejectsBadWeights(t *testing.T) {
	svc := &stubService{}
	rec := do(t, newTestHandler(svc), http.MethodPost, "/api/v1/signals/clustering/generate",
		`{"clusteringConfig":{"domainWeight":0.8,"semanticWeight":0.5}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if decodeBody(t, rec)["kind"] != "invalid_input" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestGenerateHotspotsSyncAndAsync(t *testing.T) {
	svc := &stubService{snapshot: testSnapshot()}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/api/v1/cluster/generate-hotspots", `{"minClusterSize":2,"minSamples":1,"generateSolutions":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("sync status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hotspotsCreated"].(float64) != 1 || len(body["results"].(map[string]any)["allHotspots"].([]any)) != 1 {
		t.Fatalf("unexpected sync body: %v", body)
	}
	if !svc.runReq.Options.GenerateSolutions || svc.runReq.Options.MinSamples != 1 {
		t.Fatalf("options not forwarded: %+v", svc.runReq.Options)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/cluster/generate-hotspots", `{"async":true}`)
	if rec.Code != http.StatusAccepted || !svc.started {
		t.Fatalf("async should return 202, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/v1/cluster/runs/run-async" {
		t.Fatalf("unexpected location %q", loc)
	}
}

func TestGenerateHotspotsReusedCreatesNothing(t *testing.T) {
	snap := testSnapshot()
	snap.Metrics.Reused = true
	h := newTestHandler(&stubService{snapshot: snap})

	rec := do(t, h, http.MethodPost, "/api/v1/cluster/generate-hotspots", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["hotspotsCreated"].(float64) != 0 {
		t.Fatalf("reused snapshot should report no created hotspots, got %v", body["hotspotsCreated"])
	}
	if len(body["results"].(map[string]any)["allHotspots"].([]any)) != 1 {
		t.Fatalf("reused snapshot should still list its hotspots: %v", body)
	}
}

func TestGenerateHotspotsConflict(t *testing.T) {
	svc := &stubService{runErr: utils.NewKindError(utils.KindConflict, "stub", "busy", services.ErrRunInProgress)}
	rec := do(t, newTestHandler(svc), http.MethodPost, "/api/v1/cluster/generate-hotspots", `{"async":true}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestPerSignalEndpoints(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/api/v1/signals/sig-1/generate-features", `{"forceRegenerate":false}`)
	if rec.Code != http.StatusOK || decodeBody(t, rec)["reused"] != true || svc.forced {
		t.Fatalf("generate-features: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/api/v1/signals/sig-1/generate-tags", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("generate-tags without body: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/signals/sig-1/generate-tags", `{"forceRegenerate":true}`)
	if rec.Code != http.StatusOK || !svc.forced {
		t.Fatalf("generate-tags force: %d", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/v1/signals/sig-1/generate-tags", `{"forceRegenerate":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body should be 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/signals/sig-1/similar?limit=0", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit should be 400, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/api/v1/signals/sig-1/similar?limit=3", "")
	if rec.Code != http.StatusOK || len(decodeBody(t, rec)["similar"].([]any)) != 1 {
		t.Fatalf("similar: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodDelete, "/api/v1/signals/sig-1", "")
	if rec.Code != http.StatusNoContent || len(svc.deleted) != 1 || svc.deleted[0] != "sig-1" {
		t.Fatalf("delete: %d deleted=%v", rec.Code, svc.deleted)
	}

	svc.analysisErr = utils.NewKindError(utils.KindNotFound, "stub", "missing", nil)
	if rec = do(t, h, http.MethodGet, "/api/v1/signals/missing/analysis", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec = do(t, h, http.MethodDelete, "/api/v1/signals/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: expected 404, got %d", rec.Code)
	}
}

func TestClassifyReportsRunnerUps(t *testing.T) {
	h := newTestHandler(&stubService{})

	rec := do(t, h, http.MethodPost, "/api/v1/classify", `{"id":"sig-9","title":"Approval loop stalls submittals"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("classify: %d %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if got := body["classification"].(map[string]any)["rootCause"]; got != "PROCESS" {
		t.Fatalf("rootCause = %v", got)
	}
	want := []any{"COMMUNICATION", "RESOURCE"}
	if diff := cmp.Diff(want, body["secondary"]); diff != "" {
		t.Fatalf("secondary mismatch (-want +got):\n%s", diff)
	}
}

func TestSignalIngestAndSync(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(svc)

	rec := do(t, h, http.MethodPost, "/api/v1/signals", `{"signals":[{"id":"sig-1","title":"Late RFIs","severity":"HIGH"}]}`)
	if rec.Code != http.StatusOK || len(svc.ingested) != 1 {
		t.Fatalf("ingest: %d %s", rec.Code, rec.Body.String())
	}
	if rec = do(t, h, http.MethodPost, "/api/v1/signals", `{"signals":[]}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty ingest should be 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodPost, "/api/v1/signals/sync", `{"since":"2026-05-01T00:00:00Z"}`)
	if rec.Code != http.StatusOK || !svc.since.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("sync: %d since=%v", rec.Code, svc.since)
	}
	if rec = do(t, h, http.MethodPost, "/api/v1/signals/sync", `{"since":"yesterday"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad since should be 400, got %d", rec.Code)
	}
}

func TestRunsAndHotspotView(t *testing.T) {
	svc := &stubService{view: models.HotspotView{SchemaVersion: models.HotspotSchemaVersion, State: models.ViewProcessing, ActiveRunID: "run-2", Hotspots: []models.Hotspot{}}}
	h := newTestHandler(svc)

	if rec := do(t, h, http.MethodGet, "/api/v1/cluster/runs/run-1", ""); rec.Code != http.StatusOK {
		t.Fatalf("get run: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/cluster/runs/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown run: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/api/v1/cluster/runs/run-1", ""); rec.Code != http.StatusConflict {
		t.Fatalf("cancelling a finished run should conflict, got %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/v1/hotspots", "")
	body := decodeBody(t, rec)
	if body["state"] != "processing" || body["schemaVersion"] != models.HotspotSchemaVersion || body["activeRunId"] != "run-2" {
		t.Fatalf("unexpected view: %v", body)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/hotspots/patterns", ""); rec.Code != http.StatusOK {
		t.Fatalf("patterns: %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}
