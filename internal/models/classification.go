package models

import "strings"

// RootCause is the categorical reason an issue occurred.
type RootCause string

const (
	RootCauseProcess       RootCause = "PROCESS"
	RootCauseResource      RootCause = "RESOURCE"
	RootCauseTechnology    RootCause = "TECHNOLOGY"
	RootCauseQuality       RootCause = "QUALITY"
	RootCauseCommunication RootCause = "COMMUNICATION"
	RootCauseTraining      RootCause = "TRAINING"
)

// RootCauses lists the fixed category set in vector slot order.
var RootCauses = []RootCause{
	RootCauseProcess,
	RootCauseResource,
	RootCauseTechnology,
	RootCauseQuality,
	RootCauseCommunication,
	RootCauseTraining,
}

// Index returns the vector slot for the root cause, or -1 when unknown.
func (r RootCause) Index() int {
	for i, rc := range RootCauses {
		if rc == r {
			return i
		}
	}
	return -1
}

// ParseRootCause normalises a string into the fixed enum.
func ParseRootCause(value string) (RootCause, bool) {
	candidate := RootCause(strings.ToUpper(strings.TrimSpace(value)))
	if candidate.Index() < 0 {
		return "", false
	}
	return candidate, true
}

// DomainClassificationResult is the immutable output of domain classification.
type DomainClassificationResult struct {
	InputID         string                `json:"inputId"`
	RootCause       RootCause             `json:"rootCause"`
	Confidence      float64               `json:"confidence"`
	DomainRelevance float64               `json:"domainRelevance"`
	Scores          map[RootCause]float64 `json:"scores"`
	MatchedTerms    []string              `json:"matchedTerms,omitempty"`
	Department      string                `json:"department,omitempty"`
	ProjectPhase    string                `json:"projectPhase,omitempty"`
}
