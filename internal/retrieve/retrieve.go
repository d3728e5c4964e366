// Package retrieve implements CandidateRetriever (§4.6): two parallel
// sub-retrievers, ClusterSearch and HybridVectorSearch, merged by
// union-by-id max-score fusion.
package retrieve

import (
	"context"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"homerag/internal/embedder"
	"homerag/internal/ragtypes"
	"homerag/internal/store"
)

// Thresholds holds the §4.6.2 adaptive similarity thresholds.
type Thresholds struct {
	Excellent, Good, Acceptable, Minimum float64
}

// DefaultThresholds mirrors a typical cosine-similarity embedding model.
func DefaultThresholds() Thresholds {
	return Thresholds{Excellent: 0.85, Good: 0.70, Acceptable: 0.55, Minimum: 0.35}
}

// Options configures a retrieval pass.
type Options struct {
	TopM         int // cluster fan-out, §4.6.1 default 5
	VectorWeight float64
	Thresholds   Thresholds
	VariantFanIn int // bounded per-variant embedding parallelism, default 4
}

// DefaultOptions returns the §6.3/§5 defaults.
func DefaultOptions() Options {
	return Options{TopM: 5, VectorWeight: 0.7, Thresholds: DefaultThresholds(), VariantFanIn: 4}
}

// Retriever runs ClusterSearch and HybridVectorSearch in parallel and
// merges their output.
type Retriever struct {
	store    store.DocumentStore
	embedder embedder.Embedder
	opts     Options
}

// New builds a Retriever.
func New(s store.DocumentStore, e embedder.Embedder, opts Options) *Retriever {
	if opts.TopM <= 0 {
		opts.TopM = 5
	}
	if opts.VectorWeight <= 0 {
		opts.VectorWeight = 0.7
	}
	if opts.VariantFanIn <= 0 {
		opts.VariantFanIn = 4
	}
	return &Retriever{store: s, embedder: e, opts: opts}
}

// Thresholds exposes the configured similarity thresholds; the Orchestrator
// reads Acceptable to decide the §4.9 low-top-score retry rule.
func (r *Retriever) Thresholds() Thresholds { return r.opts.Thresholds }

// Retrieve produces an unranked candidate set per §4.6. The hybrid leg asks
// the store for up to 3K hits (6K on a retry); the merged set is not padded
// or trimmed to a size range.
func (r *Retriever) Retrieve(ctx context.Context, variants []string, query string, scopeResult ragtypes.ScopeResult) ([]ragtypes.CandidateEntity, []string) {
	var fallbacks []string
	k := scopeResult.OptimalK
	if k <= 0 {
		k = 10
	}

	var clusterHits map[string]ragtypes.CandidateEntity
	var hybridHits map[string]ragtypes.CandidateEntity
	var clusterErr, hybridErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clusterHits, clusterErr = r.clusterSearch(gctx, variants, scopeResult.Scope, k)
		return nil
	})
	g.Go(func() error {
		hybridHits, hybridErr = r.hybridSearch(gctx, query, k, r.opts.Thresholds.Minimum, 3*k)
		return nil
	})
	_ = g.Wait()

	if clusterErr != nil {
		fallbacks = append(fallbacks, "cluster_search_failed")
		clusterHits = nil
	}
	hybridRetried := false
	if hybridErr != nil {
		hybridRetried = true
		fallbacks = append(fallbacks, "hybrid_search_retry")
		hybridHits, hybridErr = r.hybridSearch(ctx, query, 2*k, r.opts.Thresholds.Minimum, 6*k)
		if hybridErr != nil {
			fallbacks = append(fallbacks, "hybrid_search_failed")
			hybridHits = nil
		}
	}

	if len(clusterHits) < k/2 {
		fallbacks = append(fallbacks, "cluster_deficit_filled_by_hybrid")
	}

	merged := mergeMaxScore(clusterHits, hybridHits)
	if len(merged) == 0 && !hybridRetried {
		fallbacks = append(fallbacks, "empty_result_retry")
		retryHits, err := r.hybridSearch(ctx, query, 2*k, r.opts.Thresholds.Minimum, 6*k)
		if err == nil {
			merged = mergeMaxScore(nil, retryHits)
		}
	}
	return merged, fallbacks
}

func (r *Retriever) clusterSearch(ctx context.Context, variants []string, scope ragtypes.Scope, k int) (map[string]ragtypes.CandidateEntity, error) {
	clusters, err := r.store.GetClusterEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	compatible := compatibleClusterTypes(scope)
	out := make(map[string]ragtypes.CandidateEntity)

	fanIn := r.opts.VariantFanIn
	if fanIn > len(variants) {
		fanIn = len(variants)
	}
	if fanIn <= 0 {
		fanIn = 1
	}
	sem := make(chan struct{}, fanIn)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, variant := range variants {
		variant := variant
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			vec, err := r.embedder.EmbedBatch(gctx, []string{variant}, embedder.KindQuery)
			if err != nil || len(vec) == 0 {
				return nil
			}
			top := topClusters(clusters, vec[0], compatible, r.opts.TopM)
			for _, tc := range top {
				members, err := r.store.GetClusterMembers(gctx, tc.cluster.ID)
				if err != nil {
					continue
				}
				mu.Lock()
				for _, m := range members {
					score := tc.similarity * m.Weight
					existing, ok := out[m.EntityID]
					if !ok || score > existing.ClusterScore {
						existing.ClusterHit = true
						existing.ClusterScore = score
						existing.Entity.ID = m.EntityID
						out[m.EntityID] = existing
					}
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

type topCluster struct {
	cluster    ragtypes.Cluster
	similarity float64
}

func topClusters(clusters []store.ClusterEmbedding, query ragtypes.EmbeddingVector, compatible map[ragtypes.ClusterType]bool, topM int) []topCluster {
	scored := make([]topCluster, 0, len(clusters))
	for _, c := range clusters {
		if !compatible[c.Cluster.Type] {
			continue
		}
		scored = append(scored, topCluster{cluster: c.Cluster, similarity: cosineSimilarity(query, c.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		return scored[i].cluster.ID < scored[j].cluster.ID
	})
	if len(scored) > topM {
		scored = scored[:topM]
	}
	return scored
}

// compatibleClusterTypes implements §4.6.1's scope-to-type gating.
func compatibleClusterTypes(scope ragtypes.Scope) map[ragtypes.ClusterType]bool {
	switch scope {
	case ragtypes.ScopeMicro:
		return map[ragtypes.ClusterType]bool{ragtypes.ClusterMicro: true}
	case ragtypes.ScopeMacro:
		return map[ragtypes.ClusterType]bool{ragtypes.ClusterMicro: true, ragtypes.ClusterMacro: true}
	default:
		return map[ragtypes.ClusterType]bool{ragtypes.ClusterMicro: true, ragtypes.ClusterMacro: true, ragtypes.ClusterOverview: true}
	}
}

func (r *Retriever) hybridSearch(ctx context.Context, query string, k int, minThreshold float64, maxCandidates int) (map[string]ragtypes.CandidateEntity, error) {
	vec, err := r.embedder.EmbedBatch(ctx, []string{query}, embedder.KindQuery)
	if err != nil || len(vec) == 0 {
		return nil, err
	}
	hits, err := r.store.HybridSearch(ctx, vec[0], query, maxCandidates, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ragtypes.CandidateEntity, len(hits))
	for _, h := range hits {
		combined := r.opts.VectorWeight*h.VectorScore + (1-r.opts.VectorWeight)*h.TextScore
		if combined < minThreshold {
			continue
		}
		out[h.EntityID] = ragtypes.CandidateEntity{
			Entity:     ragtypes.Entity{ID: h.EntityID},
			VectorScore: h.VectorScore,
			TextScore:   h.TextScore,
		}
	}
	return out, nil
}

// mergeMaxScore implements §4.6's union-by-id max-score fusion: both
// per-source scores are retained, not just the winning one.
func mergeMaxScore(cluster, hybrid map[string]ragtypes.CandidateEntity) []ragtypes.CandidateEntity {
	byID := make(map[string]ragtypes.CandidateEntity, len(cluster)+len(hybrid))
	for id, c := range cluster {
		byID[id] = c
	}
	for id, h := range hybrid {
		existing, ok := byID[id]
		if !ok {
			byID[id] = h
			continue
		}
		existing.VectorScore = h.VectorScore
		existing.TextScore = h.TextScore
		byID[id] = existing
	}
	out := make([]ragtypes.CandidateEntity, 0, len(byID))
	for _, c := range byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].LexicalScore(), out[j].LexicalScore()
		if si != sj {
			return si > sj
		}
		return out[i].Entity.ID < out[j].Entity.ID
	})
	return out
}

func cosineSimilarity(a, b ragtypes.EmbeddingVector) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, an, bn float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	for _, x := range a {
		an += float64(x) * float64(x)
	}
	for _, x := range b {
		bn += float64(x) * float64(x)
	}
	if an == 0 || bn == 0 {
		return 0
	}
	return dot / (math.Sqrt(an) * math.Sqrt(bn))
}
