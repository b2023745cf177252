package models

import "time"

// HotspotSchemaVersion versions the canonical hotspot shape served to clients.
const HotspotSchemaVersion = "hotspot.v1"

// HotspotStatus is a hotspot lifecycle state.
type HotspotStatus string

const (
	HotspotActive     HotspotStatus = "active"
	HotspotMonitoring HotspotStatus = "monitoring"
	HotspotResolved   HotspotStatus = "resolved"
	HotspotArchived   HotspotStatus = "archived"
)

// Terminal reports whether the status ends the lifecycle.
func (s HotspotStatus) Terminal() bool {
	return s == HotspotResolved || s == HotspotArchived
}

// Priority is the executive display bucket derived from the rank score.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// HotspotMember is one signal's membership in a hotspot.
type HotspotMember struct {
	SignalID           string    `json:"signalId"`
	MembershipStrength float64   `json:"membershipStrength"`
	IsCore             bool      `json:"isCore"`
	IsOutlier          bool      `json:"isOutlier"`
	RootCause          RootCause `json:"rootCause"`
}

// RootCauseShare is one row of a hotspot's root-cause breakdown.
type RootCauseShare struct {
	RootCause  RootCause `json:"rootCause"`
	Percentage float64   `json:"percentage"`
	Confidence float64   `json:"confidence"`
	Count      int       `json:"count"`
}

// LinkedEntities are vendors, projects and clients inferred from member signals.
type LinkedEntities struct {
	Vendors  []string `json:"vendors,omitempty"`
	Projects []string `json:"projects,omitempty"`
	Clients  []string `json:"clients,omitempty"`
}

// RecommendedStep is an action suggested for a hotspot.
type RecommendedStep struct {
	Action          string `json:"action"`
	OwnerDepartment string `json:"ownerDepartment,omitempty"`
	Effort          string `json:"effort,omitempty"`
}

// HotspotMetrics summarise cluster shape.
type HotspotMetrics struct {
	SignalCount           int     `json:"signalCount"`
	CoreCount             int     `json:"coreCount"`
	OutlierCount          int     `json:"outlierCount"`
	OutlierRatio          float64 `json:"outlierRatio"`
	AvgMembershipStrength float64 `json:"avgMembershipStrength"`
	Cohesion              float64 `json:"cohesion"`
}

// Hotspot is a cluster of related signals. It is a rebuildable view over signals.
type Hotspot struct {
	ID                  string            `json:"id"`
	SchemaVersion       string            `json:"schemaVersion"`
	RunID               string            `json:"runId"`
	Title               string            `json:"title"`
	Summary             string            `json:"summary"`
	Status              HotspotStatus     `json:"status"`
	Confidence          float64           `json:"confidence"`
	RankScore           float64           `json:"rankScore"`
	Priority            Priority          `json:"priority"`
	BusinessImpact      float64           `json:"businessImpact"`
	Members             []HotspotMember   `json:"members"`
	Metrics             HotspotMetrics    `json:"metrics"`
	RootCauseBreakdown  []RootCauseShare  `json:"rootCauseBreakdown"`
	AffectedDepartments []string          `json:"affectedDepartments"`
	LinkedEntities      LinkedEntities    `json:"linkedEntities"`
	KeyTerms            []string          `json:"keyTerms,omitempty"`
	RecommendedActions  []RecommendedStep `json:"recommendedActions"`
	Solutions           []RecommendedStep `json:"solutions,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	UpdatedAt           time.Time         `json:"updatedAt"`
}

// SignalIDs lists member IDs in membership order.
func (h Hotspot) SignalIDs() []string {
	ids := make([]string, 0, len(h.Members))
	for _, m := range h.Members {
		ids = append(ids, m.SignalID)
	}
	return ids
}

// HotspotViewState distinguishes the executive view's loading, empty, failed and ready states.
type HotspotViewState string

const (
	ViewEmpty      HotspotViewState = "empty"
	ViewProcessing HotspotViewState = "processing"
	ViewReady      HotspotViewState = "ready"
	ViewFailed     HotspotViewState = "failed"
)

// HotspotView is what readers of the current hotspot set receive.
type HotspotView struct {
	SchemaVersion string             `json:"schemaVersion"`
	State         HotspotViewState   `json:"state"`
	RunID         string             `json:"runId,omitempty"`
	ActiveRunID   string             `json:"activeRunId,omitempty"`
	Error         string             `json:"error,omitempty"`
	Hotspots      []Hotspot          `json:"hotspots"`
	Outliers      []string           `json:"outliers,omitempty"`
	Metrics       *ClusteringMetrics `json:"metrics,omitempty"`
}
