package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// RuleEngine applies rule-based recommendations to hotspots.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string       `yaml:"id"`
	Match           RuleMatch    `yaml:"match"`
	Recommendations []RuleAction `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields match anything.
type RuleMatch struct {
	RootCause    string   `yaml:"root_cause"`
	Department   string   `yaml:"department"`
	MinPriority  string   `yaml:"min_priority"`
	TermsContain []string `yaml:"terms_contain"`
}

// RuleAction is one recommendation emitted by a rule.
type RuleAction struct {
	Action string `yaml:"action"`
	Owner  string `yaml:"owner"`
	Effort string `yaml:"effort"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or missing, returns nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend returns the actions of every rule matching the hotspot, deduplicated by action text.
func (e *RuleEngine) Recommend(h models.Hotspot) []models.RecommendedStep {
	if e == nil {
		return nil
	}

	var matched []models.RecommendedStep
	for _, rule := range e.rules {
		if rule.Match.RootCause != "" && !rootCauseMatches(rule.Match.RootCause, h) {
			continue
		}
		if rule.Match.Department != "" && !departmentMatches(rule.Match.Department, h.AffectedDepartments) {
			continue
		}
		if rule.Match.MinPriority != "" && priorityRank(h.Priority) < priorityRank(models.Priority(strings.ToUpper(rule.Match.MinPriority))) {
			continue
		}
		if len(rule.Match.TermsContain) > 0 && !termsContain(rule.Match.TermsContain, h) {
			continue
		}
		e.logger.Debug("recommendation rule matched", slog.String("rule", rule.ID), slog.String("hotspot", h.ID))
		for _, a := range rule.Recommendations {
			matched = appendStep(matched, models.RecommendedStep{Action: a.Action, OwnerDepartment: a.Owner, Effort: a.Effort})
		}
	}
	return matched
}

func rootCauseMatches(rootCause string, h models.Hotspot) bool {
	if len(h.RootCauseBreakdown) == 0 {
		return false
	}
	return strings.EqualFold(rootCause, string(h.RootCauseBreakdown[0].RootCause))
}

func departmentMatches(department string, departments []string) bool {
	for _, d := range departments {
		if strings.EqualFold(department, d) {
			return true
		}
	}
	return false
}

func termsContain(keywords []string, h models.Hotspot) bool {
	haystack := strings.ToLower(h.Title + " " + strings.Join(h.KeyTerms, " "))
	for _, kw := range keywords {
		if kw != "" && strings.Contains(haystack, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func priorityRank(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return 3
	case models.PriorityHigh:
		return 2
	case models.PriorityMedium:
		return 1
	default:
		return 0
	}
}

func appendStep(existing []models.RecommendedStep, additions ...models.RecommendedStep) []models.RecommendedStep {
	seen := make(map[string]struct{}, len(existing))
	for _, step := range existing {
		seen[strings.ToLower(step.Action)] = struct{}{}
	}
	for _, step := range additions {
		key := strings.ToLower(step.Action)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		existing = append(existing, step)
		seen[key] = struct{}{}
	}
	return existing
}

// defaultActions are the fallback playbook per root cause.
var defaultActions = map[models.RootCause][]models.RecommendedStep{
	models.RootCauseProcess: {
		{Action: "Map the approval path and remove redundant sign-off steps", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "medium"},
		{Action: "Set turnaround targets for reviews and track them weekly", OwnerDepartment: "OPERATIONS", Effort: "low"},
	},
	models.RootCauseResource: {
		{Action: "Rebalance workload across studios using current utilisation", OwnerDepartment: "OPERATIONS", Effort: "medium"},
		{Action: "Prioritise open roles on the most overloaded teams", OwnerDepartment: "OPERATIONS", Effort: "high"},
	},
	models.RootCauseTechnology: {
		{Action: "Audit model health and worksharing setup on affected projects", OwnerDepartment: "IT", Effort: "medium"},
		{Action: "Standardise software versions and plugins across teams", OwnerDepartment: "IT", Effort: "medium"},
	},
	models.RootCauseQuality: {
		{Action: "Add a discipline QA/QC checkpoint before issue", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "medium"},
		{Action: "Run coordination clash reviews on a fixed cadence", OwnerDepartment: "ARCHITECTURE", Effort: "low"},
	},
	models.RootCauseCommunication: {
		{Action: "Introduce a weekly cross-discipline coordination meeting", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "low"},
		{Action: "Publish decisions in a shared project log", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "low"},
	},
	models.RootCauseTraining: {
		{Action: "Create targeted training for the tools and standards involved", OwnerDepartment: "OPERATIONS", Effort: "medium"},
		{Action: "Pair new staff with mentors for their first projects", OwnerDepartment: "OPERATIONS", Effort: "low"},
	},
}

// solutionSeeds are fuller remedies attached when solutions are requested.
var solutionSeeds = map[models.RootCause]models.RecommendedStep{
	models.RootCauseProcess:       {Action: "Pilot a streamlined approval workflow with delegated sign-off limits", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "high"},
	models.RootCauseResource:      {Action: "Stand up a resourcing forecast tied to the project pipeline", OwnerDepartment: "OPERATIONS", Effort: "high"},
	models.RootCauseTechnology:    {Action: "Fund a model management role and a central hosting upgrade", OwnerDepartment: "IT", Effort: "high"},
	models.RootCauseQuality:       {Action: "Adopt a firm-wide QA/QC standard with automated model checks", OwnerDepartment: "ARCHITECTURE", Effort: "high"},
	models.RootCauseCommunication: {Action: "Roll out a single project collaboration platform with clear ownership", OwnerDepartment: "PROJECT_MANAGEMENT", Effort: "medium"},
	models.RootCauseTraining:      {Action: "Launch a structured onboarding and certification track", OwnerDepartment: "OPERATIONS", Effort: "medium"},
}
