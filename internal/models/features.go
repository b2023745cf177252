package models

import "time"

// Sub-vector widths of the optimized feature vector.
const (
	RootCauseDims          = 6
	DepartmentDims         = 8
	ProjectPhaseDims       = 3
	UrgencyDims            = 4
	BusinessContextDims    = 39
	TextEmbeddingDims      = 20
	TerminologyDensityDims = 3
	SemanticPatternDims    = 2
	ExecutiveDims          = 4

	// FeatureDims is the total width; the arrays below make any other width unrepresentable.
	FeatureDims = RootCauseDims + DepartmentDims + ProjectPhaseDims + UrgencyDims +
		BusinessContextDims + TextEmbeddingDims + TerminologyDensityDims +
		SemanticPatternDims + ExecutiveDims
)

// Departments lists the department slots in vector order.
var Departments = []string{
	"ARCHITECTURE",
	"STRUCTURAL",
	"MEP",
	"CIVIL",
	"INTERIOR_DESIGN",
	"PROJECT_MANAGEMENT",
	"IT",
	"OPERATIONS",
}

// ProjectPhases lists the project phase slots in vector order.
var ProjectPhases = []string{"DESIGN", "DOCUMENTATION", "CONSTRUCTION"}

// ExecutiveFeatures are the four business-facing scalars.
type ExecutiveFeatures struct {
	BusinessImpact     float64 `json:"businessImpact"`
	StrategicPriority  float64 `json:"strategicPriority"`
	Actionability      float64 `json:"actionability"`
	ExecutiveAttention float64 `json:"executiveAttention"`
}

// OptimizedFeatureVector is the fixed-width numeric representation used for clustering.
type OptimizedFeatureVector struct {
	RootCause          [RootCauseDims]float64          `json:"rootCause"`
	Department         [DepartmentDims]float64         `json:"department"`
	ProjectPhase       [ProjectPhaseDims]float64       `json:"projectPhase"`
	UrgencyLevel       [UrgencyDims]float64            `json:"urgencyLevel"`
	BusinessContext    [BusinessContextDims]float64    `json:"businessContext"`
	TextEmbedding      [TextEmbeddingDims]float64      `json:"textEmbedding"`
	TerminologyDensity [TerminologyDensityDims]float64 `json:"terminologyDensity"`
	SemanticPatterns   [SemanticPatternDims]float64    `json:"semanticPatterns"`
	Executive          ExecutiveFeatures               `json:"executive"`
}

// Groups returns every sub-vector in canonical order. Group names match FeatureGroup constants.
func (v OptimizedFeatureVector) Groups() [][]float64 {
	return [][]float64{
		v.RootCause[:],
		v.Department[:],
		v.ProjectPhase[:],
		v.UrgencyLevel[:],
		v.BusinessContext[:],
		v.TextEmbedding[:],
		v.TerminologyDensity[:],
		v.SemanticPatterns[:],
		{v.Executive.BusinessImpact, v.Executive.StrategicPriority, v.Executive.Actionability, v.Executive.ExecutiveAttention},
	}
}

// Flatten concatenates the sub-vectors into a FeatureDims-long slice.
func (v OptimizedFeatureVector) Flatten() []float64 {
	out := make([]float64, 0, FeatureDims)
	for _, g := range v.Groups() {
		out = append(out, g...)
	}
	return out
}

// Dimensions reports the total number of dimensions carried.
func (v OptimizedFeatureVector) Dimensions() int {
	total := 0
	for _, g := range v.Groups() {
		total += len(g)
	}
	return total
}

// FeatureGroup names a sub-vector for weighting.
type FeatureGroup int

const (
	GroupRootCause FeatureGroup = iota
	GroupDepartment
	GroupProjectPhase
	GroupUrgency
	GroupBusinessContext
	GroupTextEmbedding
	GroupTerminology
	GroupSemanticPatterns
	GroupExecutive
	groupCount
)

// GroupCount is the number of sub-vectors.
const GroupCount = int(groupCount)

// ClusteringFeatures are the named scalar features derived alongside the vector.
type ClusteringFeatures struct {
	RootCause                RootCause `json:"rootCause"`
	PrimaryDepartment        string    `json:"primaryDepartment"`
	ProjectPhase             string    `json:"projectPhase"`
	Severity                 Severity  `json:"severity"`
	DomainTerminologyDensity float64   `json:"domainTerminologyDensity"`
	SemanticComplexity       float64   `json:"semanticComplexity"`
	TechnicalDepth           float64   `json:"technicalDepth"`
	ProblemClarity           float64   `json:"problemClarity"`
	SolutionOrientation      float64   `json:"solutionOrientation"`
	ScopeComplexity          float64   `json:"scopeComplexity"`
	DepartmentSpread         int       `json:"departmentSpread"`
	TokenCount               int       `json:"tokenCount"`
	BusinessImpact           float64   `json:"businessImpact"`
	StrategicPriority        float64   `json:"strategicPriority"`
	Actionability            float64   `json:"actionability"`
	ExecutiveAttention       float64   `json:"executiveAttention"`
}

// FeatureQualityMetrics accompany every feature vector; each is in (0,1].
type FeatureQualityMetrics struct {
	DomainRelevance    float64 `json:"domainRelevance"`
	SemanticQuality    float64 `json:"semanticQuality"`
	ExecutiveAlignment float64 `json:"executiveAlignment"`
	OverallConfidence  float64 `json:"overallConfidence"`
}

// FeatureRequest is the input to feature generation.
type FeatureRequest struct {
	SignalID       string                     `json:"signalId"`
	Classification DomainClassificationResult `json:"domainClassification"`
	InputText      string                     `json:"inputText"`
	Title          string                     `json:"title,omitempty"`
	Severity       Severity                   `json:"severity"`
	Departments    []string                   `json:"departments,omitempty"`
	Metadata       map[string]string          `json:"metadata,omitempty"`
}

// FeatureResult is the output of feature generation.
type FeatureResult struct {
	SignalID        string                 `json:"signalId"`
	Features        ClusteringFeatures     `json:"features"`
	OptimizedVector OptimizedFeatureVector `json:"optimizedVector"`
	QualityMetrics  FeatureQualityMetrics  `json:"qualityMetrics"`
	ProcessingTime  time.Duration          `json:"processingTime"`
}
