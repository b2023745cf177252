package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

func TestClassifierRootCauses(t *testing.T) {
	classifier := NewClassifier()
	cases := map[string]models.RootCause{
		"sig-approval-1": models.RootCauseProcess,
		"sig-approval-2": models.RootCauseProcess,
		"sig-bim-1":      models.RootCauseTechnology,
		"sig-bim-2":      models.RootCauseTechnology,
		"sig-staff-1":    models.RootCauseResource,
		"sig-qa-1":       models.RootCauseQuality,
	}
	for id, want := range cases {
		s := signalByID(t, id)
		got := classifier.Classify(s.ID, s.Title, s.Description, s.Metadata)
		if got.RootCause != want {
			t.Fatalf("%s: expected %s, got %s (scores %v)", id, want, got.RootCause, got.Scores)
		}
		if got.Confidence < 0.5 || got.Confidence > 1 {
			t.Fatalf("%s: confidence %v out of expected range", id, got.Confidence)
		}
		if got.InputID != id {
			t.Fatalf("input id not carried")
		}
	}
}

func TestClassifierEmptyTextDegrades(t *testing.T) {
	got := NewClassifier().Classify("empty", "", "   ", nil)
	if got.RootCause != models.RootCauseProcess {
		t.Fatalf("expected fallback PROCESS, got %s", got.RootCause)
	}
	if got.Confidence != fallbackConfidence {
		t.Fatalf("expected lowest confidence, got %v", got.Confidence)
	}
	if len(got.MatchedTerms) != 0 {
		t.Fatalf("expected no matched terms, got %v", got.MatchedTerms)
	}
}

func TestClassifierIsDeterministic(t *testing.T) {
	classifier := NewClassifier()
	s := signalByID(t, "sig-bim-1")
	first := classifier.Classify(s.ID, s.Title, s.Description, s.Metadata)
	for i := 0; i < 5; i++ {
		again := classifier.Classify(s.ID, s.Title, s.Description, s.Metadata)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("classification changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestClassifierConfidenceTracksTerminology(t *testing.T) {
	classifier := NewClassifier()
	weak := classifier.Classify("weak", "Software", "The software is annoying", nil)
	strong := classifier.Classify("strong", "Revit crashes", "Revit crashes during worksharing sync and the BIM central model is corrupted on the server", nil)
	if weak.RootCause != models.RootCauseTechnology || strong.RootCause != models.RootCauseTechnology {
		t.Fatalf("expected TECHNOLOGY for both, got %s and %s", weak.RootCause, strong.RootCause)
	}
	if strong.Confidence <= weak.Confidence {
		t.Fatalf("dense terminology should raise confidence: weak %v strong %v", weak.Confidence, strong.Confidence)
	}
}

func TestClassifierDetectsDepartmentAndPhase(t *testing.T) {
	s := signalByID(t, "sig-qa-1")
	got := NewClassifier().Classify(s.ID, s.Title, s.Description, map[string]string{"department": "mep"})
	if got.Department != "MEP" {
		t.Fatalf("expected MEP, got %q", got.Department)
	}
	if got.ProjectPhase != "CONSTRUCTION" {
		t.Fatalf("expected CONSTRUCTION, got %q", got.ProjectPhase)
	}
}

func TestSecondaryOrdersRunnerUps(t *testing.T) {
	res := models.DomainClassificationResult{
		RootCause: models.RootCauseTechnology,
		Scores: map[models.RootCause]float64{
			models.RootCauseTechnology: 5,
			models.RootCauseQuality:    2,
			models.RootCauseProcess:    3,
		},
	}
	want := []models.RootCause{models.RootCauseProcess, models.RootCauseQuality}
	if diff := cmp.Diff(want, Secondary(res)); diff != "" {
		t.Fatalf("secondary mismatch (-want +got):\n%s", diff)
	}
}
