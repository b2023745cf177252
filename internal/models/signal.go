package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Severity captures impact levels attached to a signal.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ParseSeverity normalises a severity string. Unknown values report ok=false.
func ParseSeverity(value string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "LOW":
		return SeverityLow, true
	case "", "MEDIUM":
		return SeverityMedium, true
	case "HIGH":
		return SeverityHigh, true
	case "CRITICAL":
		return SeverityCritical, true
	default:
		return SeverityMedium, false
	}
}

// Weight maps severity onto (0,1] for scoring.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 0.25
	case SeverityHigh:
		return 0.75
	case SeverityCritical:
		return 1.0
	default:
		return 0.5
	}
}

// Index returns the urgency slot (0..3) for the severity.
func (s Severity) Index() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 1
	}
}

// Signal is one raw strategic input submitted by staff.
type Signal struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Severity    Severity          `json:"severity"`
	Departments []string          `json:"departments,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"createdBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Text joins title and description for text analysis.
func (s Signal) Text() string {
	return strings.TrimSpace(s.Title + "\n" + s.Description)
}

// ContentHash fingerprints the fields that influence analysis. Re-tagging metadata
// other than department/phase does not change the hash.
func (s Signal) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(s.Title)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(s.Description)))
	h.Write([]byte{0})
	h.Write([]byte(s.Severity))
	h.Write([]byte{0})
	depts := append([]string(nil), s.Departments...)
	sort.Strings(depts)
	h.Write([]byte(strings.Join(depts, ",")))
	for _, key := range []string{"department", "projectPhase", "project", "client", "vendor"} {
		h.Write([]byte{0})
		h.Write([]byte(s.Metadata[key]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SimilarSignal is a nearest-neighbour hit for a signal's feature vector.
type SimilarSignal struct {
	SignalID   string    `json:"signalId"`
	Title      string    `json:"title,omitempty"`
	RootCause  RootCause `json:"rootCause,omitempty"`
	Similarity float64   `json:"similarity"`
}
