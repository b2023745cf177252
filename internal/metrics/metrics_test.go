package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestObserveClusteringRunNormalisesOutcome(t *testing.T) {
	before := testutil.ToFloat64(clusteringRunsTotal.WithLabelValues(OutcomeError))
	ObserveClusteringRun(-time.Second, "boom")
	after := testutil.ToFloat64(clusteringRunsTotal.WithLabelValues(OutcomeError))
	if after != before+1 {
		t.Fatalf("expected error outcome to increment, got %v -> %v", before, after)
	}
}

func TestSetActiveHotspots(t *testing.T) {
	SetActiveHotspots(7)
	if got := testutil.ToFloat64(hotspotsActive); got != 7 {
		t.Fatalf("expected 7 active hotspots, got %v", got)
	}
}

func TestBudgetViolation(t *testing.T) {
	before := testutil.ToFloat64(budgetViolationsTotal.WithLabelValues(StageBatch))
	BudgetViolation(StageBatch)
	if got := testutil.ToFloat64(budgetViolationsTotal.WithLabelValues(StageBatch)); got != before+1 {
		t.Fatalf("expected violation counted")
	}
}
