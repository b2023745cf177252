package patterns

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	ReplacePatterns(ctx context.Context, patterns []models.HotspotPattern) error
}

// Miner folds committed hotspot snapshots into recurring (root cause,
// department) patterns. History is carried through the previous pattern set,
// so a pattern's RunCount grows each run it reappears in.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

// Mine aggregates the snapshot and merges it with previous patterns. Patterns
// absent from the current snapshot are kept with their old LastSeen.
func (m *Miner) Mine(ctx context.Context, snap models.Snapshot, previous []models.HotspotPattern) ([]models.HotspotPattern, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seenAt := snap.CreatedAt
	if seenAt.IsZero() {
		seenAt = time.Now().UTC()
	}

	total := 0
	groups := make(map[string]*patternAggregate)
	for _, h := range snap.Hotspots {
		if len(h.RootCauseBreakdown) == 0 {
			continue
		}
		rc := h.RootCauseBreakdown[0].RootCause
		depts := h.AffectedDepartments
		if len(depts) == 0 {
			depts = []string{""}
		}
		total += h.Metrics.SignalCount
		for _, dept := range depts {
			agg := ensureAggregate(groups, rc, dept)
			agg.signals += h.Metrics.SignalCount
			agg.hotspots = append(agg.hotspots, h.ID)
			for i, term := range h.KeyTerms {
				agg.terms[term] += len(h.KeyTerms) - i
			}
		}
	}

	merged := make(map[string]models.HotspotPattern, len(previous)+len(groups))
	for _, p := range previous {
		merged[p.ID] = p
	}
	for id, agg := range groups {
		p, existed := merged[id]
		if !existed {
			p = models.HotspotPattern{
				ID:         id,
				RootCause:  agg.rootCause,
				Department: agg.department,
				FirstSeen:  seenAt,
			}
		}
		p.Name = patternName(agg.rootCause, agg.department)
		p.SignalCount = agg.signals
		if total > 0 {
			p.Prevalence = float64(agg.signals) / float64(total)
		}
		p.RunCount++
		p.HotspotIDs = agg.hotspots
		p.KeyTerms = agg.topTerms(5)
		p.LastSeen = seenAt
		p.Description = fmt.Sprintf("%s issues recurring in %s across %d run(s); %d signal(s) in the latest run",
			strings.ToLower(string(agg.rootCause)), departmentLabel(agg.department), p.RunCount, agg.signals)
		merged[id] = p
	}

	patterns := make([]models.HotspotPattern, 0, len(merged))
	for _, p := range merged {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if !patterns[i].LastSeen.Equal(patterns[j].LastSeen) {
			return patterns[i].LastSeen.After(patterns[j].LastSeen)
		}
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].ID < patterns[j].ID
	})

	if m.store != nil {
		if err := m.store.ReplacePatterns(ctx, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}
	return patterns, nil
}

// PatternID is stable for a (root cause, department) pair.
func PatternID(rc models.RootCause, department string) string {
	dept := strings.ToLower(strings.Join(strings.Fields(department), "-"))
	if dept == "" {
		dept = "unassigned"
	}
	return "pattern-" + strings.ToLower(string(rc)) + "-" + dept
}

type patternAggregate struct {
	rootCause  models.RootCause
	department string
	signals    int
	hotspots   []string
	terms      map[string]int
}

func ensureAggregate(m map[string]*patternAggregate, rc models.RootCause, dept string) *patternAggregate {
	id := PatternID(rc, dept)
	agg, ok := m[id]
	if !ok {
		agg = &patternAggregate{rootCause: rc, department: dept, terms: make(map[string]int)}
		m[id] = agg
	}
	return agg
}

func (agg *patternAggregate) topTerms(limit int) []string {
	terms := make([]string, 0, len(agg.terms))
	for term := range agg.terms {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if agg.terms[terms[i]] != agg.terms[terms[j]] {
			return agg.terms[terms[i]] > agg.terms[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

func patternName(rc models.RootCause, dept string) string {
	name := "Unclassified"
	if rc != "" {
		name = strings.ToUpper(string(rc)[:1]) + strings.ToLower(string(rc)[1:])
	}
	return name + " pattern in " + departmentLabel(dept)
}

func departmentLabel(dept string) string {
	if dept == "" {
		return "unassigned departments"
	}
	return dept
}
