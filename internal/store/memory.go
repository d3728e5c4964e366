package store

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"homerag/internal/ragtypes"
)

// Memory is an in-memory DocumentStore backed by plain maps, used in tests
// and for air-gapped evaluation. Its vector math mirrors the cosine
// similarity used by the Postgres/Qdrant backends so ranking is comparable
// across implementations.
type Memory struct {
	mu       sync.RWMutex
	entities map[string]ragtypes.Entity
	clusters map[string]ragtypes.Cluster
	members  map[string][]ClusterMember // clusterID -> members
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		entities: make(map[string]ragtypes.Entity),
		clusters: make(map[string]ragtypes.Cluster),
		members:  make(map[string][]ClusterMember),
	}
}

// PutEntity upserts an entity; a test/ingestion helper, not part of the
// query-time DocumentStore interface.
func (m *Memory) PutEntity(e ragtypes.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entities[e.ID] = e
}

// PutCluster upserts a cluster and its membership edges.
func (m *Memory) PutCluster(c ragtypes.Cluster, members []ClusterMember) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clusters[c.ID] = c
	m.members[c.ID] = members
}

func (m *Memory) VectorSearch(_ context.Context, vector ragtypes.EmbeddingVector, k int, filter Filter) ([]VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qn := norm(vector)
	hits := make([]VectorHit, 0, len(m.entities))
	for id, e := range m.entities {
		if !matchesEntityFilter(e, filter) {
			continue
		}
		hits = append(hits, VectorHit{EntityID: id, Score: cosine(vector, e.Embedding, qn)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) HybridSearch(_ context.Context, vector ragtypes.EmbeddingVector, text string, k int, filter Filter) ([]HybridHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 {
		k = 10
	}
	qn := norm(vector)
	terms := strings.Fields(strings.ToLower(text))
	hits := make([]HybridHit, 0, len(m.entities))
	for id, e := range m.entities {
		if !matchesEntityFilter(e, filter) {
			continue
		}
		vs := cosine(vector, e.Embedding, qn)
		ts := textScore(e.DisplayText, terms)
		if vs == 0 && ts == 0 {
			continue
		}
		hits = append(hits, HybridHit{EntityID: id, VectorScore: vs, TextScore: ts})
	}
	sort.Slice(hits, func(i, j int) bool {
		si := 0.7*hits[i].VectorScore + 0.3*hits[i].TextScore
		sj := 0.7*hits[j].VectorScore + 0.3*hits[j].TextScore
		if si != sj {
			return si > sj
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) GetEntities(_ context.Context, ids []string) ([]ragtypes.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ragtypes.Entity, 0, len(ids))
	for _, id := range ids {
		if e, ok := m.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) GetClusterEmbeddings(_ context.Context) ([]ClusterEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClusterEmbedding, 0, len(m.clusters))
	for _, c := range m.clusters {
		out = append(out, ClusterEmbedding{Cluster: c, Embedding: c.Embedding})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cluster.ID < out[j].Cluster.ID })
	return out, nil
}

func (m *Memory) GetClusterMembers(_ context.Context, clusterID string) ([]ClusterMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	members := m.members[clusterID]
	out := make([]ClusterMember, len(members))
	copy(out, members)
	return out, nil
}

func matchesEntityFilter(e ragtypes.Entity, f Filter) bool {
	if len(f) == 0 {
		return true
	}
	for k, v := range f {
		switch k {
		case "area":
			if e.AreaID != v {
				return false
			}
		case "domain":
			if e.Domain != v {
				return false
			}
		default:
			if e.Attributes[k] != v {
				return false
			}
		}
	}
	return true
}

func textScore(displayText string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lt := strings.ToLower(displayText)
	hits := 0
	for _, t := range terms {
		if t == "" {
			continue
		}
		if strings.Contains(lt, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func norm(a ragtypes.EmbeddingVector) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b ragtypes.EmbeddingVector) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// cosine mirrors internal/store's Postgres/Qdrant scoring convention:
// higher is closer, 0 when either vector is zero.
func cosine(a, b ragtypes.EmbeddingVector, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
