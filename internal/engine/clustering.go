package engine

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// GroupWeights are the per-sub-vector similarity weights. They sum to 1.
type GroupWeights [models.GroupCount]float64

// Shares of the domain and semantic budgets taken by each sub-vector.
var (
	domainShares = map[models.FeatureGroup]float64{
		models.GroupRootCause:       0.25 / 0.6,
		models.GroupDepartment:      0.10 / 0.6,
		models.GroupProjectPhase:    0.05 / 0.6,
		models.GroupUrgency:         0.05 / 0.6,
		models.GroupBusinessContext: 0.15 / 0.6,
	}
	semanticShares = map[models.FeatureGroup]float64{
		models.GroupTextEmbedding:    0.22 / 0.3,
		models.GroupTerminology:      0.04 / 0.3,
		models.GroupSemanticPatterns: 0.04 / 0.3,
	}
)

// NewGroupWeights splits the domain and semantic budgets across sub-vectors; the
// executive group takes whatever remains.
func NewGroupWeights(domain, semantic float64) (GroupWeights, error) {
	if domain < 0 || semantic < 0 || domain+semantic > 1+1e-9 {
		return GroupWeights{}, fmt.Errorf("domain %.2f + semantic %.2f weights must be non-negative and at most 1", domain, semantic)
	}
	var w GroupWeights
	for g, share := range domainShares {
		w[g] = share * domain
	}
	for g, share := range semanticShares {
		w[g] = share * semantic
	}
	w[models.GroupExecutive] = math.Max(0, 1-domain-semantic)
	return w, nil
}

// DefaultGroupWeights is the 60/30/10 domain/semantic/executive split.
func DefaultGroupWeights() GroupWeights {
	w, _ := NewGroupWeights(0.6, 0.3)
	return w
}

// Similarity is the weighted sum of per-group cosine similarities, in [0,1] for the
// non-negative vectors the feature engine emits.
func Similarity(a, b models.OptimizedFeatureVector, w GroupWeights) float64 {
	ga, gb := a.Groups(), b.Groups()
	total := 0.0
	for g := range ga {
		if w[g] == 0 {
			continue
		}
		total += w[g] * groupCosine(ga[g], gb[g])
	}
	return total
}

// groupCosine treats two empty groups as neutral and one empty group as dissimilar.
func groupCosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	switch {
	case na == 0 && nb == 0:
		return 0.5
	case na == 0 || nb == 0:
		return 0
	}
	return math.Max(0, math.Min(1, dot/(math.Sqrt(na)*math.Sqrt(nb))))
}

// Cosine is the plain cosine similarity of two equal-length vectors.
func Cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// SimilarityMatrix computes pairwise similarity with rows fanned out over a bounded
// worker pool. It stops early when ctx is cancelled.
func SimilarityMatrix(ctx context.Context, vectors []models.OptimizedFeatureVector, w GroupWeights) ([][]float64, error) {
	n := len(vectors)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
		matrix[i][i] = 1
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			for j := i + 1; j < n; j++ {
				matrix[i][j] = Similarity(vectors[i], vectors[j], w)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// Mirror after the fan-out so no two workers write the same row.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			matrix[j][i] = matrix[i][j]
		}
	}
	return matrix, nil
}

// densityCluster is one group found by density clustering; indices refer to the input order.
type densityCluster struct {
	members []int
	core    map[int]bool
}

// densityResult is the output of DBSCAN over a similarity matrix.
type densityResult struct {
	clusters []densityCluster
	noise    []int
}

// dbscan groups the points in subset using similarity >= eps as the neighbourhood.
// A core point has at least minSamples neighbours. Clusters smaller than minClusterSize
// are dissolved; their points may reattach to a kept cluster as border members.
func dbscan(sim [][]float64, subset []int, eps float64, minSamples, minClusterSize int) densityResult {
	neighbours := make(map[int][]int, len(subset))
	isCore := make(map[int]bool, len(subset))
	for _, i := range subset {
		for _, j := range subset {
			if i != j && sim[i][j] >= eps {
				neighbours[i] = append(neighbours[i], j)
			}
		}
		isCore[i] = len(neighbours[i]) >= minSamples
	}

	label := make(map[int]int, len(subset))
	var raw []densityCluster
	for _, i := range subset {
		if _, done := label[i]; done || !isCore[i] {
			continue
		}
		id := len(raw)
		c := densityCluster{core: map[int]bool{}}
		queue := []int{i}
		label[i] = id
		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			c.members = append(c.members, p)
			if !isCore[p] {
				continue
			}
			c.core[p] = true
			for _, q := range neighbours[p] {
				if _, done := label[q]; done {
					continue
				}
				label[q] = id
				queue = append(queue, q)
			}
		}
		raw = append(raw, c)
	}

	var out densityResult
	for _, c := range raw {
		if len(c.members) >= minClusterSize && len(c.core) > 0 {
			out.clusters = append(out.clusters, c)
		}
	}

	assigned := make(map[int]bool, len(subset))
	for _, c := range out.clusters {
		for _, m := range c.members {
			assigned[m] = true
		}
	}
	for _, i := range subset {
		if assigned[i] {
			continue
		}
		if best := nearestCore(sim, i, out.clusters, eps); best >= 0 {
			out.clusters[best].members = append(out.clusters[best].members, i)
			continue
		}
		out.noise = append(out.noise, i)
	}
	return out
}

// nearestCore returns the cluster holding the most similar core point within eps, or -1.
func nearestCore(sim [][]float64, i int, clusters []densityCluster, eps float64) int {
	best, bestSim := -1, eps
	for ci, c := range clusters {
		for _, m := range c.members {
			if !c.core[m] {
				continue
			}
			if s := sim[i][m]; s >= bestSim && (best < 0 || s > bestSim) {
				best, bestSim = ci, s
			}
		}
	}
	return best
}

// membershipStrength is the mean similarity of i to the cluster's core points,
// excluding itself.
func membershipStrength(sim [][]float64, i int, c densityCluster) float64 {
	total, n := 0.0, 0
	for _, m := range c.members {
		if m == i || !c.core[m] {
			continue
		}
		total += sim[i][m]
		n++
	}
	if n == 0 {
		return 1
	}
	return math.Max(0, math.Min(1, total/float64(n)))
}

// cohesion is the mean pairwise similarity among members.
func cohesion(sim [][]float64, members []int) float64 {
	if len(members) < 2 {
		return 1
	}
	total, n := 0.0, 0
	for a := 0; a < len(members); a++ {
		for b := a + 1; b < len(members); b++ {
			total += sim[members[a]][members[b]]
			n++
		}
	}
	return total / float64(n)
}
