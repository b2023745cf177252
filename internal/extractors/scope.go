package extractors

import (
	"math"
	"sort"
	"strings"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// NormalizeDepartment maps a free-form label onto a department slot.
func NormalizeDepartment(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "", false
	}
	upper := strings.ToUpper(strings.ReplaceAll(key, " ", "_"))
	for _, d := range models.Departments {
		if d == upper {
			return d, true
		}
	}
	d, ok := DepartmentAliases[key]
	return d, ok
}

// DepartmentScores weighs department slots. Declared departments and metadata
// count for more than text mentions.
func DepartmentScores(doc Document, declared []string, metadata map[string]string) map[string]float64 {
	scores := make(map[string]float64, len(models.Departments))
	for _, label := range declared {
		if d, ok := NormalizeDepartment(label); ok {
			scores[d] += 3
		}
	}
	if d, ok := NormalizeDepartment(metadata["department"]); ok {
		scores[d] += 3
	}
	for dept, terms := range DepartmentTerms {
		if s := terms.Score(doc.Tokens); s > 0 {
			scores[dept] += s
		}
	}
	return scores
}

// PrimaryDepartment picks the highest scoring slot; ties resolve in slot order.
func PrimaryDepartment(scores map[string]float64) string {
	best, bestScore := "", 0.0
	for _, d := range models.Departments {
		if scores[d] > bestScore {
			best, bestScore = d, scores[d]
		}
	}
	return best
}

// DetectPhase scores project phases from text and metadata["projectPhase"].
func DetectPhase(doc Document, metadata map[string]string) (string, map[string]float64) {
	scores := make(map[string]float64, len(models.ProjectPhases))
	if raw := strings.ToUpper(strings.TrimSpace(metadata["projectPhase"])); raw != "" {
		for _, p := range models.ProjectPhases {
			if strings.HasPrefix(raw, p) {
				scores[p] += 3
			}
		}
	}
	for phase, terms := range PhaseTerms {
		if s := terms.Score(doc.Tokens); s > 0 {
			scores[phase] += s
		}
	}
	best, bestScore := "", 0.0
	for _, p := range models.ProjectPhases {
		if scores[p] > bestScore {
			best, bestScore = p, scores[p]
		}
	}
	return best, scores
}

// Scope summarises how broad a remedy for a signal would need to be.
type Scope struct {
	DepartmentSpread int      `json:"departmentSpread"`
	Departments      []string `json:"departments,omitempty"`
	ComplexityCues   float64  `json:"complexityCues"`
	ResourceCues     float64  `json:"resourceCues"`
	Complexity       float64  `json:"complexity"`
}

// MeasureScope combines department spread, breadth cues and text length into a [0,1] score.
func MeasureScope(doc Document, deptScores map[string]float64) Scope {
	var depts []string
	for d, s := range deptScores {
		if s >= 1 {
			depts = append(depts, d)
		}
	}
	sort.Strings(depts)

	spread := 0.0
	if len(depts) > 1 {
		spread = math.Min(1, float64(len(depts)-1)/3)
	}
	complexity := Saturate(ComplexityCues.Score(doc.Tokens), 2)
	resources := Saturate(ResourceCues.Score(doc.Tokens), 2)
	length := math.Min(1, float64(len(doc.ContentTokens))/120)

	return Scope{
		DepartmentSpread: len(depts),
		Departments:      depts,
		ComplexityCues:   complexity,
		ResourceCues:     resources,
		Complexity:       Clamp01(0.3*spread + 0.25*complexity + 0.25*resources + 0.2*length),
	}
}

// Saturate maps a non-negative count onto [0,1) with the given half-life scale.
func Saturate(x, scale float64) float64 {
	if x <= 0 {
		return 0
	}
	return 1 - math.Exp(-x/scale)
}

// Clamp01 bounds v to [0,1] and maps NaN to zero.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
