package engine

import (
	"context"
	"testing"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// representativeSignals is a mixed batch covering process, technology, resource and quality issues.
func representativeSignals() []models.Signal {
	return []models.Signal{
		{
			ID:          "sig-approval-1",
			Title:       "Approval workflow delays on drawing sign-off",
			Description: "Drawing approvals wait weeks for principal sign-off because the review process has too many steps. This delays permit submittals and frustrates the client.",
			Severity:    models.SeverityHigh,
			Departments: []string{"Project Management"},
			Metadata:    map[string]string{"projectPhase": "documentation"},
		},
		{
			ID:          "sig-approval-2",
			Title:       "Slow sign-off process for construction documents",
			Description: "Sign-off on construction documents is held up for weeks because every sheet needs approval from three reviewers. The approval workflow bottleneck delays the schedule.",
			Severity:    models.SeverityHigh,
			Departments: []string{"Project Management"},
		},
		{
			ID:          "sig-bim-1",
			Title:       "BIM Model Synchronization Issues",
			Description: "The Revit central model keeps getting corrupted when team members synchronize with central. Worksharing conflicts between the structural and MEP linked models cause lost work and rework across the project team.",
			Severity:    models.SeverityCritical,
			Departments: []string{"IT"},
		},
		{
			ID:          "sig-bim-2",
			Title:       "Revit central file corruption",
			Description: "Revit worksharing sync failures corrupt the central model several times a week, causing rework for the architecture and MEP teams. We need a model management process and a faster file server.",
			Severity:    models.SeverityHigh,
			Departments: []string{"IT"},
		},
		{
			ID:          "sig-staff-1",
			Title:       "Structural team understaffed",
			Description: "The structural engineering team is understaffed and overloaded; overtime and burnout are rising because hiring has stalled, and structural calculations slip past deadlines.",
			Severity:    models.SeverityHigh,
			Departments: []string{"Structural"},
		},
		{
			ID:          "sig-qa-1",
			Title:       "Coordination clashes found late",
			Description: "Clash detection between structural beams and MEP ductwork happens too late, causing rework and errors in construction documents and RFIs from the contractor.",
			Severity:    models.SeverityMedium,
			Departments: []string{"MEP"},
		},
	}
}

func signalByID(t *testing.T, id string) models.Signal {
	t.Helper()
	for _, s := range representativeSignals() {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("no fixture signal %q", id)
	return models.Signal{}
}

// clusterInputs runs signals through the pipeline and adapts them for clustering.
func clusterInputs(t *testing.T, signals []models.Signal) []models.ClusterInput {
	t.Helper()
	integrator := NewIntegrator(nil, nil, nil)
	inputs := make([]models.ClusterInput, 0, len(signals))
	for _, s := range signals {
		res, err := integrator.ProcessSignal(context.Background(), s)
		if err != nil {
			t.Fatalf("process %s: %v", s.ID, err)
		}
		inputs = append(inputs, ClusterInputFrom(s, res))
	}
	return inputs
}
