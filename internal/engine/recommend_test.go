package engine

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRuleEngineRecommend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: bim-sync
    match:
      root_cause: "technology"
      department: "IT"
      min_priority: "high"
      terms_contain: ["revit", "sync"]
    recommendations:
      - action: "Audit worksharing settings"
        owner: IT
        effort: low
  - id: any-quality
    match:
      root_cause: "quality"
    recommendations:
      - action: "Add a QA gate"
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	engine, err := NewRuleEngine(path, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	h := models.Hotspot{
		ID:                  "h1",
		Title:               "Technology hotspot: revit, central model",
		Priority:            models.PriorityCritical,
		AffectedDepartments: []string{"IT", "MEP"},
		RootCauseBreakdown:  []models.RootCauseShare{{RootCause: models.RootCauseTechnology, Percentage: 100}},
	}
	recs := engine.Recommend(h)
	if len(recs) != 1 || recs[0].Action != "Audit worksharing settings" || recs[0].OwnerDepartment != "IT" {
		t.Fatalf("unexpected recommendations %+v", recs)
	}

	h.Priority = models.PriorityMedium
	if recs := engine.Recommend(h); len(recs) != 0 {
		t.Fatalf("priority floor ignored: %+v", recs)
	}
}

func TestRuleEngineNoFile(t *testing.T) {
	engine, err := NewRuleEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if engine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if recs := engine.Recommend(models.Hotspot{}); recs != nil {
		t.Fatalf("nil engine should recommend nothing")
	}
}

func TestRuleEngineBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("rules: [unterminated"), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	if _, err := NewRuleEngine(path, nil); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestAppendStepDeduplicatesCaseInsensitively(t *testing.T) {
	steps := appendStep(nil,
		models.RecommendedStep{Action: "Run clash reviews"},
		models.RecommendedStep{Action: "run clash reviews"},
		models.RecommendedStep{Action: ""},
	)
	if len(steps) != 1 {
		t.Fatalf("expected one step, got %+v", steps)
	}
}

func TestDefaultPlaybookCoversEveryRootCause(t *testing.T) {
	for _, rc := range models.RootCauses {
		if len(defaultActions[rc]) == 0 {
			t.Fatalf("no default actions for %s", rc)
		}
		if solutionSeeds[rc].Action == "" {
			t.Fatalf("no solution seed for %s", rc)
		}
	}
}
