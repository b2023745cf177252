package models

import "time"

// RecommendedAction is the ternary clustering-readiness verdict.
type RecommendedAction string

const (
	ActionClusterReady RecommendedAction = "CLUSTER_READY"
	ActionAIEnhance    RecommendedAction = "AI_ENHANCE"
	ActionManualReview RecommendedAction = "MANUAL_REVIEW"
)

// QualityAssessment explains the readiness verdict.
type QualityAssessment struct {
	RecommendedAction RecommendedAction `json:"recommendedAction"`
	ReadinessScore    float64           `json:"readinessScore"`
	Reasons           []string          `json:"reasons,omitempty"`
}

// StageTimings records per-stage durations for one signal.
type StageTimings struct {
	Domain   time.Duration `json:"domainTime"`
	Features time.Duration `json:"featureTime"`
	Total    time.Duration `json:"totalTime"`
}

// PipelineResult wraps one signal's classification, features and readiness.
type PipelineResult struct {
	SignalID           string                     `json:"signalId"`
	ContentHash        string                     `json:"contentHash"`
	Classification     DomainClassificationResult `json:"domainClassification"`
	Features           FeatureResult              `json:"features"`
	ReadyForClustering bool                       `json:"readyForClustering"`
	QualityAssessment  QualityAssessment          `json:"qualityAssessment"`
	Timings            StageTimings               `json:"timings"`
	Tags               []string                   `json:"tags,omitempty"`
	ProcessedAt        time.Time                  `json:"processedAt"`
}

// BatchOptions tunes batch processing.
type BatchOptions struct {
	Parallel  bool `json:"parallel"`
	BatchSize int  `json:"batchSize"`
}

// BatchFailure records one signal that could not be processed.
type BatchFailure struct {
	SignalID string `json:"signalId"`
	Error    string `json:"error"`
}

// BatchSummary aggregates a batch run.
type BatchSummary struct {
	Total              int                       `json:"total"`
	Successful         int                       `json:"successful"`
	Failed             int                       `json:"failed"`
	ReadyForClustering int                       `json:"readyForClustering"`
	ReadinessRate      float64                   `json:"readinessRate"`
	Actions            map[RecommendedAction]int `json:"actions"`
	AverageQuality     FeatureQualityMetrics     `json:"averageQuality"`
	Failures           []BatchFailure            `json:"failures,omitempty"`
	TotalTime          time.Duration             `json:"totalTime"`
}

// BatchResult is returned by ProcessBatch; Results are sorted by SignalID.
type BatchResult struct {
	Results []PipelineResult `json:"results"`
	Summary BatchSummary     `json:"summary"`
}
