package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hotspot.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var baseTime = time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)

func TestSignalsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sigs := []models.Signal{
		{ID: "sig-b", Title: "Revit model corruption", Severity: models.SeverityHigh, Departments: []string{"BIM"}, CreatedAt: baseTime, UpdatedAt: baseTime},
		{ID: "sig-a", Title: "Permit approval delay", Severity: models.SeverityMedium, Metadata: map[string]string{"project": "Atlas"}, CreatedAt: baseTime, UpdatedAt: baseTime},
	}
	if err := s.UpsertSignals(ctx, sigs); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetSignal(ctx, "sig-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(sigs[1], got); diff != "" {
		t.Fatalf("signal mismatch (-want +got):\n%s", diff)
	}

	sigs[0].Title = "Revit model corruption on sync"
	if err := s.UpsertSignals(ctx, sigs[:1]); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	all, err := s.ListSignals(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "sig-a" || all[1].Title != "Revit model corruption on sync" {
		t.Fatalf("unexpected list: %+v", all)
	}

	if _, err := s.GetSignal(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSignalCascades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.UpsertSignals(ctx, []models.Signal{{ID: "sig-1", Title: "x", UpdatedAt: baseTime}})
	_ = s.SaveAnalyses(ctx, []models.PipelineResult{{SignalID: "sig-1", ContentHash: "h", ProcessedAt: baseTime}})
	_ = s.SaveTags(ctx, "sig-1", "h", []string{"permits"}, baseTime)

	if err := s.DeleteSignal(ctx, "sig-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetAnalysis(ctx, "sig-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("analysis should be gone, got %v", err)
	}
	if _, _, err := s.GetTags(ctx, "sig-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("tags should be gone, got %v", err)
	}
	if err := s.DeleteSignal(ctx, "sig-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should report ErrNotFound, got %v", err)
	}
}

func TestAnalysesFilterByAction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	results := []models.PipelineResult{
		{SignalID: "sig-2", ContentHash: "h2", ReadyForClustering: true, QualityAssessment: models.QualityAssessment{RecommendedAction: models.ActionClusterReady}, ProcessedAt: baseTime},
		{SignalID: "sig-1", ContentHash: "h1", QualityAssessment: models.QualityAssessment{RecommendedAction: models.ActionAIEnhance}, ProcessedAt: baseTime},
	}
	if err := s.SaveAnalyses(ctx, results); err != nil {
		t.Fatalf("save: %v", err)
	}

	ready, err := s.ListAnalyses(ctx, models.ActionClusterReady)
	if err != nil {
		t.Fatalf("list ready: %v", err)
	}
	if len(ready) != 1 || ready[0].SignalID != "sig-2" {
		t.Fatalf("unexpected ready analyses: %+v", ready)
	}
	all, _ := s.ListAnalyses(ctx, "")
	if len(all) != 2 || all[0].SignalID != "sig-1" {
		t.Fatalf("expected both analyses ordered by ID, got %+v", all)
	}
}

func TestTagsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveTags(ctx, "sig-1", "hash-1", []string{"permits", "approvals"}, baseTime); err != nil {
		t.Fatalf("save tags: %v", err)
	}
	hash, tags, err := s.GetTags(ctx, "sig-1")
	if err != nil {
		t.Fatalf("get tags: %v", err)
	}
	if hash != "hash-1" || !cmp.Equal(tags, []string{"permits", "approvals"}) {
		t.Fatalf("unexpected tags %q %v", hash, tags)
	}
}

func TestCommitSnapshotReplacesAtomically(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before first commit, got %v", err)
	}

	first := models.Snapshot{RunID: "run-1", Hotspots: []models.Hotspot{{ID: "h-1", Title: "Process hotspot"}}, CreatedAt: baseTime}
	run1 := models.ClusteringRun{ID: "run-1", Status: models.RunSucceeded, StartedAt: baseTime}
	if err := s.CommitSnapshot(ctx, run1, first); err != nil {
		t.Fatalf("commit first: %v", err)
	}

	second := models.Snapshot{RunID: "run-2", Hotspots: []models.Hotspot{{ID: "h-2"}, {ID: "h-3"}}, CreatedAt: baseTime.Add(time.Hour)}
	run2 := models.ClusteringRun{ID: "run-2", Status: models.RunSucceeded, StartedAt: baseTime.Add(time.Hour)}
	if err := s.CommitSnapshot(ctx, run2, second); err != nil {
		t.Fatalf("commit second: %v", err)
	}

	got, err := s.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RunID != "run-2" || len(got.Hotspots) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	runs, err := s.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" {
		t.Fatalf("expected newest run first, got %+v", runs)
	}
}

func TestSaveRunUpdatesStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := models.ClusteringRun{ID: "run-9", Status: models.RunRunning, StartedAt: baseTime}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("save: %v", err)
	}
	run.Status = models.RunCancelled
	run.Error = "cancelled by caller"
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetRun(ctx, "run-9")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.RunCancelled || got.Error == "" {
		t.Fatalf("unexpected run: %+v", got)
	}
}

func TestReplacePatterns(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_ = s.ReplacePatterns(ctx, []models.HotspotPattern{{ID: "old", LastSeen: baseTime}})
	next := []models.HotspotPattern{
		{ID: "p-1", RootCause: models.RootCauseProcess, Department: "Architecture", LastSeen: baseTime},
		{ID: "p-2", RootCause: models.RootCauseTechnology, Department: "BIM", LastSeen: baseTime.Add(time.Hour)},
	}
	if err := s.ReplacePatterns(ctx, next); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, err := s.ListPatterns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p-2" {
		t.Fatalf("unexpected patterns: %+v", got)
	}
}

func TestOpenInMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.UpsertSignals(context.Background(), []models.Signal{{ID: "sig-1"}}); err != nil {
		t.Fatalf("upsert in memory: %v", err)
	}
}
