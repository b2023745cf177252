package models

import "time"

// ClusterInput is one analysed signal handed to the hotspot generator.
type ClusterInput struct {
	SignalID       string                     `json:"signalId"`
	ContentHash    string                     `json:"contentHash"`
	Title          string                     `json:"title"`
	Text           string                     `json:"text"`
	Severity       Severity                   `json:"severity"`
	Departments    []string                   `json:"departments,omitempty"`
	Metadata       map[string]string          `json:"metadata,omitempty"`
	Classification DomainClassificationResult `json:"classification"`
	Features       ClusteringFeatures         `json:"features"`
	Vector         OptimizedFeatureVector     `json:"vector"`
	Quality        FeatureQualityMetrics      `json:"quality"`
}

// ClusteringOptions configure a hotspot generation run.
type ClusteringOptions struct {
	MinClusterSize     int     `json:"minClusterSize"`
	MinSamples         int     `json:"minSamples"`
	ForceReclustering  bool    `json:"forceReclustering"`
	GenerateSolutions  bool    `json:"generateSolutions"`
	TargetClusterCount int     `json:"targetClusterCount,omitempty"`
	DomainWeight       float64 `json:"domainWeight,omitempty"`
	SemanticWeight     float64 `json:"semanticWeight,omitempty"`
	Similarity         float64 `json:"similarity,omitempty"`
	// RunID names the produced snapshot; the generator assigns one when empty.
	RunID string `json:"-"`
}

// ClusteringMetrics summarise one run.
type ClusteringMetrics struct {
	InputSignalCount       int           `json:"inputSignalCount"`
	OutputClusterCount     int           `json:"outputClusterCount"`
	AssignedSignalCount    int           `json:"assignedSignalCount"`
	OutlierSignalCount     int           `json:"outlierSignalCount"`
	ClusteringEfficiency   float64       `json:"clusteringEfficiency"`
	BusinessRelevanceScore float64       `json:"businessRelevanceScore"`
	ExecutiveActionability float64       `json:"executiveActionability"`
	SimilarityRadius       float64       `json:"similarityRadius"`
	Reused                 bool          `json:"reused"`
	ProcessingTime         time.Duration `json:"processingTime"`
	GeneratedAt            time.Time     `json:"generatedAt"`
}

// Snapshot is the committed result of a clustering run; it is replaced atomically.
type Snapshot struct {
	RunID        string            `json:"runId"`
	Hotspots     []Hotspot         `json:"hotspots"`
	Outliers     []string          `json:"outliers"`
	Fingerprints map[string]string `json:"fingerprints"`
	Metrics      ClusteringMetrics `json:"metrics"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Assignment returns signal ID -> hotspot ID for every member.
func (s Snapshot) Assignment() map[string]string {
	out := make(map[string]string)
	for _, h := range s.Hotspots {
		for _, m := range h.Members {
			out[m.SignalID] = h.ID
		}
	}
	return out
}

// RunStatus is the lifecycle state of a clustering run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Done reports whether the run reached a terminal state.
func (s RunStatus) Done() bool {
	return s == RunSucceeded || s == RunFailed || s == RunCancelled
}

// ClusteringRun tracks one initiated run for polling.
type ClusteringRun struct {
	ID         string            `json:"id"`
	Status     RunStatus         `json:"status"`
	Options    ClusteringOptions `json:"options"`
	Metrics    ClusteringMetrics `json:"metrics"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt,omitempty"`
}

// HotspotPattern is a recurring (root cause, department) pattern mined across runs.
type HotspotPattern struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	RootCause   RootCause `json:"rootCause"`
	Department  string    `json:"department"`
	Prevalence  float64   `json:"prevalence"`
	SignalCount int       `json:"signalCount"`
	RunCount    int       `json:"runCount"`
	HotspotIDs  []string  `json:"hotspotIds,omitempty"`
	KeyTerms    []string  `json:"keyTerms,omitempty"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}
