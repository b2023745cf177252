package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

func hotspot(id string, rc models.RootCause, count int, depts []string, terms ...string) models.Hotspot {
	return models.Hotspot{
		ID:                  id,
		RootCauseBreakdown:  []models.RootCauseShare{{RootCause: rc, Count: count, Percentage: 100}},
		AffectedDepartments: depts,
		KeyTerms:            terms,
		Metrics:             models.HotspotMetrics{SignalCount: count},
	}
}

func TestMinerMinesPatterns(t *testing.T) {
	var stored []models.HotspotPattern
	miner := NewMiner(nil, StoreFunc(func(_ context.Context, p []models.HotspotPattern) error {
		stored = p
		return nil
	}))

	run1 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	snap := models.Snapshot{
		RunID:     "run-1",
		CreatedAt: run1,
		Hotspots: []models.Hotspot{
			hotspot("h-1", models.RootCauseProcess, 3, []string{"Architecture"}, "permit", "approval"),
			hotspot("h-2", models.RootCauseTechnology, 1, nil, "revit"),
		},
	}

	patterns, err := miner.Mine(context.Background(), snap, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 2 || len(stored) != 2 {
		t.Fatalf("expected 2 mined and stored patterns, got %d/%d", len(patterns), len(stored))
	}
	first := patterns[0]
	if first.ID != "pattern-process-architecture" || first.Prevalence != 0.75 || first.RunCount != 1 {
		t.Fatalf("unexpected leading pattern: %+v", first)
	}
	if diff := cmp.Diff([]string{"permit", "approval"}, first.KeyTerms); diff != "" {
		t.Fatalf("key terms mismatch (-want +got):\n%s", diff)
	}
	if patterns[1].ID != "pattern-technology-unassigned" {
		t.Fatalf("expected unassigned department pattern, got %s", patterns[1].ID)
	}
}

func TestMinerCarriesHistory(t *testing.T) {
	miner := NewMiner(nil, nil)
	run1 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	run2 := run1.Add(24 * time.Hour)

	first, _ := miner.Mine(context.Background(), models.Snapshot{
		CreatedAt: run1,
		Hotspots: []models.Hotspot{
			hotspot("h-1", models.RootCauseProcess, 2, []string{"Architecture"}, "permit"),
			hotspot("h-2", models.RootCauseResource, 2, []string{"Operations"}, "staffing"),
		},
	}, nil)

	second, err := miner.Mine(context.Background(), models.Snapshot{
		CreatedAt: run2,
		Hotspots:  []models.Hotspot{hotspot("h-9", models.RootCauseProcess, 4, []string{"Architecture"}, "permit")},
	}, first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("expected stale pattern to be retained, got %+v", second)
	}
	recurring := second[0]
	if recurring.ID != "pattern-process-architecture" || recurring.RunCount != 2 {
		t.Fatalf("expected recurring pattern seen twice, got %+v", recurring)
	}
	if !recurring.FirstSeen.Equal(run1) || !recurring.LastSeen.Equal(run2) {
		t.Fatalf("unexpected first/last seen: %v / %v", recurring.FirstSeen, recurring.LastSeen)
	}
	stale := second[1]
	if stale.RunCount != 1 || !stale.LastSeen.Equal(run1) {
		t.Fatalf("stale pattern should keep its history, got %+v", stale)
	}
}

func TestMinerHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMiner(nil, nil).Mine(ctx, models.Snapshot{}, nil); err == nil {
		t.Fatal("expected context error")
	}
}
