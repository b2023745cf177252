package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-hotspot/internal/extractors"
	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// PriorityThresholds bucket a rank score; a score strictly above a bound earns that bucket.
type PriorityThresholds struct {
	Critical float64 `yaml:"critical"`
	High     float64 `yaml:"high"`
	Medium   float64 `yaml:"medium"`
}

// DefaultPriorityThresholds returns 0.8/0.6/0.4.
func DefaultPriorityThresholds() PriorityThresholds {
	return PriorityThresholds{Critical: 0.8, High: 0.6, Medium: 0.4}
}

// Validate requires 1 >= critical > high > medium >= 0.
func (t PriorityThresholds) Validate() error {
	if !(t.Critical <= 1 && t.Critical > t.High && t.High > t.Medium && t.Medium >= 0) {
		return fmt.Errorf("priority thresholds must satisfy 1 >= critical > high > medium >= 0, got %.2f/%.2f/%.2f", t.Critical, t.High, t.Medium)
	}
	return nil
}

// Bucket maps a rank score onto a priority.
func (t PriorityThresholds) Bucket(score float64) models.Priority {
	switch {
	case score > t.Critical:
		return models.PriorityCritical
	case score > t.High:
		return models.PriorityHigh
	case score > t.Medium:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// GeneratorConfig holds defaults applied when a request leaves options unset.
type GeneratorConfig struct {
	MinClusterSize int
	MinSamples     int
	Similarity     float64
	DomainWeight   float64
	SemanticWeight float64
	Priority       PriorityThresholds
}

// DefaultGeneratorConfig returns the standard clustering defaults.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MinClusterSize: 2,
		MinSamples:     1,
		Similarity:     0.75,
		DomainWeight:   0.6,
		SemanticWeight: 0.3,
		Priority:       DefaultPriorityThresholds(),
	}
}

// radiusLadder is searched from tight to loose when a target cluster count is requested.
var radiusLadder = []float64{0.9, 0.85, 0.8, 0.75, 0.7, 0.65, 0.6, 0.55, 0.5}

// Generator groups analysed signals into hotspots and summarises them for executives.
type Generator struct {
	logger   *slog.Logger
	rules    *RuleEngine
	entities *extractors.EntityExtractor
	cfg      GeneratorConfig
	newID    func() string
	now      func() time.Time
}

// NewGenerator constructs a hotspot generator. rules may be nil.
func NewGenerator(logger *slog.Logger, rules *RuleEngine, cfg GeneratorConfig) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGeneratorConfig()
	if cfg.MinClusterSize <= 0 {
		cfg.MinClusterSize = def.MinClusterSize
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Similarity <= 0 {
		cfg.Similarity = def.Similarity
	}
	if cfg.DomainWeight <= 0 && cfg.SemanticWeight <= 0 {
		cfg.DomainWeight, cfg.SemanticWeight = def.DomainWeight, def.SemanticWeight
	}
	if cfg.Priority.Validate() != nil {
		cfg.Priority = def.Priority
	}
	return &Generator{
		logger:   logger,
		rules:    rules,
		entities: extractors.NewEntityExtractor(),
		cfg:      cfg,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

type runParams struct {
	minClusterSize int
	minSamples     int
	eps            float64
	weights        GroupWeights
}

func (g *Generator) params(opts models.ClusteringOptions, prev *models.Snapshot) (runParams, error) {
	p := runParams{
		minClusterSize: g.cfg.MinClusterSize,
		minSamples:     g.cfg.MinSamples,
		eps:            g.cfg.Similarity,
	}
	if opts.MinClusterSize > 0 {
		p.minClusterSize = opts.MinClusterSize
	}
	if p.minClusterSize < 2 {
		p.minClusterSize = 2
	}
	if opts.MinSamples > 0 {
		p.minSamples = opts.MinSamples
	}
	switch {
	case opts.Similarity > 0:
		p.eps = opts.Similarity
	case !opts.ForceReclustering && prev != nil && prev.Metrics.SimilarityRadius > 0:
		p.eps = prev.Metrics.SimilarityRadius
	}
	if p.eps > 1 {
		return p, fmt.Errorf("similarity radius %.2f must be in (0,1]", p.eps)
	}

	domain, semantic := g.cfg.DomainWeight, g.cfg.SemanticWeight
	if opts.DomainWeight > 0 || opts.SemanticWeight > 0 {
		domain, semantic = opts.DomainWeight, opts.SemanticWeight
	}
	w, err := NewGroupWeights(domain, semantic)
	if err != nil {
		return p, err
	}
	p.weights = w
	return p, nil
}

// GenerateHotspots clusters inputs into a new snapshot. With ForceReclustering false and a
// previous snapshot, unchanged signals keep their hotspot and an unchanged corpus returns
// the previous snapshot as is. Too few signals yield an empty snapshot, not an error.
func (g *Generator) GenerateHotspots(ctx context.Context, inputs []models.ClusterInput, opts models.ClusteringOptions, prev *models.Snapshot) (models.Snapshot, error) {
	start := time.Now()
	p, err := g.params(opts, prev)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("clustering options: %w", err)
	}

	inputs = canonicalInputs(inputs)
	fingerprints := make(map[string]string, len(inputs))
	for _, in := range inputs {
		fingerprints[in.SignalID] = in.ContentHash
	}

	incremental := !opts.ForceReclustering && prev != nil && len(prev.Fingerprints) > 0
	if incremental && sameFingerprints(prev.Fingerprints, fingerprints) {
		reused := *prev
		reused.Metrics.Reused = true
		reused.Metrics.ProcessingTime = time.Since(start)
		g.logger.Info("corpus unchanged, keeping previous hotspots", slog.String("run_id", prev.RunID), slog.Int("hotspots", len(prev.Hotspots)))
		return reused, nil
	}

	vectors := make([]models.OptimizedFeatureVector, len(inputs))
	for i, in := range inputs {
		vectors[i] = in.Vector
	}
	sim, err := SimilarityMatrix(ctx, vectors, p.weights)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("similarity matrix: %w", err)
	}

	now := g.now().UTC()
	runID := opts.RunID
	if runID == "" {
		runID = g.newID()
	}
	snapshot := models.Snapshot{
		RunID:        runID,
		Fingerprints: fingerprints,
		CreatedAt:    now,
	}

	var groups []plannedHotspot
	var noise []int
	switch {
	case len(inputs) < p.minClusterSize:
		noise = allIndices(len(inputs))
	case incremental:
		groups, noise = g.incremental(sim, inputs, prev, p)
	case opts.TargetClusterCount > 0:
		var res densityResult
		res, p.eps = searchRadius(sim, len(inputs), p, opts.TargetClusterCount)
		groups, noise = freshGroups(res), res.noise
	default:
		res := dbscan(sim, allIndices(len(inputs)), p.eps, p.minSamples, p.minClusterSize)
		groups, noise = freshGroups(res), res.noise
	}
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}

	for _, grp := range groups {
		snapshot.Hotspots = append(snapshot.Hotspots, g.buildHotspot(sim, inputs, grp, snapshot.RunID, now, opts.GenerateSolutions))
	}
	sort.SliceStable(snapshot.Hotspots, func(i, j int) bool {
		if snapshot.Hotspots[i].RankScore != snapshot.Hotspots[j].RankScore {
			return snapshot.Hotspots[i].RankScore > snapshot.Hotspots[j].RankScore
		}
		return snapshot.Hotspots[i].ID < snapshot.Hotspots[j].ID
	})
	for _, i := range noise {
		snapshot.Outliers = append(snapshot.Outliers, inputs[i].SignalID)
	}
	sort.Strings(snapshot.Outliers)

	snapshot.Metrics = runMetrics(inputs, snapshot, p.eps)
	snapshot.Metrics.GeneratedAt = now
	snapshot.Metrics.ProcessingTime = time.Since(start)

	g.logger.Info("hotspots generated",
		slog.String("run_id", snapshot.RunID),
		slog.Int("signals", len(inputs)),
		slog.Int("hotspots", len(snapshot.Hotspots)),
		slog.Int("outliers", len(snapshot.Outliers)),
		slog.Bool("incremental", incremental),
		slog.Float64("radius", p.eps))
	return snapshot, nil
}

// plannedHotspot is a cluster awaiting summarisation. Retained hotspots carry their
// previous identity.
type plannedHotspot struct {
	cluster   densityCluster
	id        string
	createdAt time.Time
	status    models.HotspotStatus
}

func freshGroups(res densityResult) []plannedHotspot {
	out := make([]plannedHotspot, 0, len(res.clusters))
	for _, c := range res.clusters {
		out = append(out, plannedHotspot{cluster: c})
	}
	return out
}

func searchRadius(sim [][]float64, n int, p runParams, target int) (densityResult, float64) {
	var best densityResult
	bestEps, bestGap := p.eps, math.MaxInt
	for _, eps := range radiusLadder {
		res := dbscan(sim, allIndices(n), eps, p.minSamples, p.minClusterSize)
		gap := len(res.clusters) - target
		if gap < 0 {
			gap = -gap
		}
		if gap < bestGap {
			best, bestEps, bestGap = res, eps, gap
		}
	}
	return best, bestEps
}

// incremental keeps unchanged memberships of the previous snapshot, dissolves hotspots that
// fell below the minimum size, attaches the changed pool to surviving cores and clusters
// whatever is left.
func (g *Generator) incremental(sim [][]float64, inputs []models.ClusterInput, prev *models.Snapshot, p runParams) ([]plannedHotspot, []int) {
	index := make(map[string]int, len(inputs))
	for i, in := range inputs {
		index[in.SignalID] = i
	}
	isCore := make([]bool, len(inputs))
	for i := range inputs {
		neighbours := 0
		for j := range inputs {
			if i != j && sim[i][j] >= p.eps {
				neighbours++
			}
		}
		isCore[i] = neighbours >= p.minSamples
	}

	placed := make(map[int]bool, len(inputs))
	var kept []plannedHotspot
	for _, h := range prev.Hotspots {
		c := densityCluster{core: map[int]bool{}}
		for _, m := range h.Members {
			i, ok := index[m.SignalID]
			if !ok || prev.Fingerprints[m.SignalID] != inputs[i].ContentHash {
				continue
			}
			c.members = append(c.members, i)
			if isCore[i] {
				c.core[i] = true
			}
		}
		if len(c.members) < p.minClusterSize || len(c.core) == 0 {
			continue
		}
		for _, i := range c.members {
			placed[i] = true
		}
		kept = append(kept, plannedHotspot{cluster: c, id: h.ID, createdAt: h.CreatedAt, status: h.Status})
	}

	clusters := make([]densityCluster, len(kept))
	for i := range kept {
		clusters[i] = kept[i].cluster
	}
	var pool []int
	for i := range inputs {
		if placed[i] {
			continue
		}
		if best := nearestCore(sim, i, clusters, p.eps); best >= 0 {
			clusters[best].members = append(clusters[best].members, i)
			continue
		}
		pool = append(pool, i)
	}
	for i := range kept {
		kept[i].cluster = clusters[i]
	}

	res := dbscan(sim, pool, p.eps, p.minSamples, p.minClusterSize)
	return append(kept, freshGroups(res)...), res.noise
}

func (g *Generator) buildHotspot(sim [][]float64, inputs []models.ClusterInput, plan plannedHotspot, runID string, now time.Time, solutions bool) models.Hotspot {
	c := plan.cluster
	h := models.Hotspot{
		ID:            plan.id,
		SchemaVersion: models.HotspotSchemaVersion,
		RunID:         runID,
		CreatedAt:     plan.createdAt,
		UpdatedAt:     now,
	}
	if h.ID == "" {
		h.ID = g.newID()
	}
	if h.CreatedAt.IsZero() {
		h.CreatedAt = now
	}

	var strengthSum, impactSum, attentionSum, confSum, maxSev float64
	var entities []models.LinkedEntities
	rcCount := map[models.RootCause]int{}
	rcConf := map[models.RootCause]float64{}
	deptCount := map[string]int{}
	termCount := map[string]int{}
	for _, i := range c.members {
		in := inputs[i]
		strength := membershipStrength(sim, i, c)
		rc := in.Classification.RootCause
		h.Members = append(h.Members, models.HotspotMember{
			SignalID:           in.SignalID,
			MembershipStrength: strength,
			IsCore:             c.core[i],
			IsOutlier:          !c.core[i],
			RootCause:          rc,
		})
		strengthSum += strength
		impactSum += in.Features.BusinessImpact
		attentionSum += in.Features.ExecutiveAttention
		confSum += in.Classification.Confidence
		maxSev = math.Max(maxSev, in.Severity.Weight())
		rcCount[rc]++
		rcConf[rc] += in.Classification.Confidence
		for _, d := range memberDepartments(in) {
			deptCount[d]++
		}
		for _, t := range in.Classification.MatchedTerms {
			termCount[t]++
		}
		entities = append(entities, g.entities.Extract(in.Title, in.Text, in.Metadata))
	}
	sort.SliceStable(h.Members, func(a, b int) bool {
		if h.Members[a].MembershipStrength != h.Members[b].MembershipStrength {
			return h.Members[a].MembershipStrength > h.Members[b].MembershipStrength
		}
		return h.Members[a].SignalID < h.Members[b].SignalID
	})

	n := float64(len(c.members))
	outliers := 0
	for _, m := range h.Members {
		if m.IsOutlier {
			outliers++
		}
	}
	h.Metrics = models.HotspotMetrics{
		SignalCount:           len(c.members),
		CoreCount:             len(c.members) - outliers,
		OutlierCount:          outliers,
		OutlierRatio:          float64(outliers) / n,
		AvgMembershipStrength: strengthSum / n,
		Cohesion:              cohesion(sim, c.members),
	}

	for _, rc := range models.RootCauses {
		if rcCount[rc] == 0 {
			continue
		}
		h.RootCauseBreakdown = append(h.RootCauseBreakdown, models.RootCauseShare{
			RootCause:  rc,
			Percentage: 100 * float64(rcCount[rc]) / n,
			Confidence: rcConf[rc] / float64(rcCount[rc]),
			Count:      rcCount[rc],
		})
	}
	sort.SliceStable(h.RootCauseBreakdown, func(a, b int) bool {
		return h.RootCauseBreakdown[a].Count > h.RootCauseBreakdown[b].Count
	})

	h.AffectedDepartments = rankedKeys(deptCount, 0)
	h.KeyTerms = rankedKeys(termCount, 5)
	h.LinkedEntities = extractors.MergeEntities(entities...)
	h.BusinessImpact = impactSum / n
	h.Confidence = 0.5*h.Metrics.AvgMembershipStrength + 0.3*confSum/n + 0.2*(1-h.Metrics.OutlierRatio)
	h.RankScore = 0.35*h.BusinessImpact + 0.25*attentionSum/n + 0.2*math.Min(1, n/10) + 0.2*maxSev
	h.Priority = g.cfg.Priority.Bucket(h.RankScore)

	switch {
	case plan.status.Terminal():
		h.Status = plan.status
	case h.Priority == models.PriorityCritical || h.Priority == models.PriorityHigh:
		h.Status = models.HotspotActive
	default:
		h.Status = models.HotspotMonitoring
	}

	dominant := h.RootCauseBreakdown[0]
	h.Title = hotspotTitle(dominant.RootCause, h.KeyTerms, h.AffectedDepartments)
	h.Summary = fmt.Sprintf("%d signals, %.0f%% %s across %s. Highest severity %s; average business impact %.2f.",
		len(c.members), dominant.Percentage, strings.ToLower(string(dominant.RootCause)),
		departmentPhrase(h.AffectedDepartments), severityName(maxSev), h.BusinessImpact)

	h.RecommendedActions = g.rules.Recommend(h)
	h.RecommendedActions = appendStep(h.RecommendedActions, defaultActions[dominant.RootCause]...)
	for _, share := range h.RootCauseBreakdown[1:] {
		if share.Percentage >= 25 {
			h.RecommendedActions = appendStep(h.RecommendedActions, defaultActions[share.RootCause][0])
		}
	}
	if solutions {
		for _, share := range h.RootCauseBreakdown {
			if share.RootCause == dominant.RootCause || share.Percentage >= 25 {
				h.Solutions = appendStep(h.Solutions, solutionSeeds[share.RootCause])
			}
		}
	}
	return h
}

func runMetrics(inputs []models.ClusterInput, snapshot models.Snapshot, eps float64) models.ClusteringMetrics {
	m := models.ClusteringMetrics{
		InputSignalCount:   len(inputs),
		OutputClusterCount: len(snapshot.Hotspots),
		OutlierSignalCount: len(snapshot.Outliers),
		SimilarityRadius:   eps,
	}
	byID := make(map[string]models.ClusterInput, len(inputs))
	for _, in := range inputs {
		byID[in.SignalID] = in
	}
	var impact, actionability float64
	for _, h := range snapshot.Hotspots {
		for _, member := range h.Members {
			in := byID[member.SignalID]
			impact += in.Features.BusinessImpact
			actionability += in.Features.Actionability
			m.AssignedSignalCount++
		}
	}
	if len(inputs) > 0 {
		m.ClusteringEfficiency = float64(m.AssignedSignalCount) / float64(len(inputs))
	}
	if m.AssignedSignalCount > 0 {
		m.BusinessRelevanceScore = impact / float64(m.AssignedSignalCount)
		m.ExecutiveActionability = actionability / float64(m.AssignedSignalCount)
	}
	return m
}

// canonicalInputs sorts by signal ID and keeps the first copy of duplicated IDs.
func canonicalInputs(inputs []models.ClusterInput) []models.ClusterInput {
	out := make([]models.ClusterInput, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.SignalID]; dup || in.SignalID == "" {
			continue
		}
		seen[in.SignalID] = struct{}{}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignalID < out[j].SignalID })
	return out
}

func sameFingerprints(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for id, hash := range b {
		if a[id] != hash {
			return false
		}
	}
	return true
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func memberDepartments(in models.ClusterInput) []string {
	var out []string
	if in.Features.PrimaryDepartment != "" {
		out = append(out, in.Features.PrimaryDepartment)
	}
	for _, d := range in.Departments {
		if norm, ok := extractors.NormalizeDepartment(d); ok && norm != in.Features.PrimaryDepartment {
			out = append(out, norm)
		}
	}
	return out
}

// rankedKeys orders keys by count then name; limit <= 0 keeps all.
func rankedKeys(counts map[string]int, limit int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

func hotspotTitle(rc models.RootCause, terms, departments []string) string {
	name := titleWord(string(rc))
	if len(terms) > 3 {
		terms = terms[:3]
	}
	if len(terms) > 0 {
		return fmt.Sprintf("%s hotspot: %s", name, strings.Join(terms, ", "))
	}
	if len(departments) > 0 {
		return fmt.Sprintf("%s hotspot in %s", name, titleWord(departments[0]))
	}
	return name + " hotspot"
}

func departmentPhrase(departments []string) string {
	switch len(departments) {
	case 0:
		return "no specific department"
	case 1:
		return titleWord(departments[0])
	default:
		return fmt.Sprintf("%d departments led by %s", len(departments), titleWord(departments[0]))
	}
}

func titleWord(s string) string {
	words := strings.Fields(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
	for i, w := range words {
		if w == "it" || w == "mep" {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func severityName(weight float64) string {
	switch {
	case weight >= models.SeverityCritical.Weight():
		return string(models.SeverityCritical)
	case weight >= models.SeverityHigh.Weight():
		return string(models.SeverityHigh)
	case weight >= models.SeverityMedium.Weight():
		return string(models.SeverityMedium)
	default:
		return string(models.SeverityLow)
	}
}
