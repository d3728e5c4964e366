package retrieve

import (
	"context"
	"testing"

	"homerag/internal/embedder"
	"homerag/internal/ragtypes"
	"homerag/internal/store"
)

func seedStore() *store.Memory {
	m := store.NewMemory()
	m.PutEntity(ragtypes.Entity{ID: "sensor.outdoor_temp", Domain: "sensor", DisplayText: "outdoor temperature", Embedding: []float32{1, 0, 0}})
	m.PutEntity(ragtypes.Entity{ID: "light.kitchen", Domain: "light", DisplayText: "kitchen light", Embedding: []float32{0, 1, 0}})
	m.PutCluster(ragtypes.Cluster{ID: "cluster.outdoor", Type: ragtypes.ClusterMicro, Embedding: []float32{1, 0, 0}},
		[]store.ClusterMember{{EntityID: "sensor.outdoor_temp", Weight: 1.0}})
	return m
}

func TestRetriever_MergesClusterAndHybridHits(t *testing.T) {
	s := seedStore()
	emb := embedder.NewDeterministic(3, false, 1)
	r := New(s, emb, DefaultOptions())

	candidates, fallbacks := r.Retrieve(context.Background(), []string{"outdoor temperature"}, "outdoor temperature", ragtypes.ScopeResult{Scope: ragtypes.ScopeMicro, OptimalK: 5})
	if len(candidates) == 0 {
		t.Fatalf("expected at least one candidate, fallbacks=%v", fallbacks)
	}
}

func TestRetriever_ClusterSearchRestrictedByScope(t *testing.T) {
	s := store.NewMemory()
	s.PutCluster(ragtypes.Cluster{ID: "cluster.overview", Type: ragtypes.ClusterOverview, Embedding: []float32{1, 0}},
		[]store.ClusterMember{{EntityID: "sensor.a", Weight: 1.0}})
	emb := embedder.NewDeterministic(2, false, 1)
	r := New(s, emb, DefaultOptions())

	hits, err := r.clusterSearch(context.Background(), []string{"query"}, ragtypes.ScopeMicro, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected overview cluster to be excluded for micro scope, got %+v", hits)
	}
}

func TestMergeMaxScore_UnionByID(t *testing.T) {
	cluster := map[string]ragtypes.CandidateEntity{
		"a": {Entity: ragtypes.Entity{ID: "a"}, ClusterScore: 0.9},
	}
	hybrid := map[string]ragtypes.CandidateEntity{
		"a": {Entity: ragtypes.Entity{ID: "a"}, VectorScore: 0.5},
		"b": {Entity: ragtypes.Entity{ID: "b"}, VectorScore: 0.3},
	}
	merged := mergeMaxScore(cluster, hybrid)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d", len(merged))
	}
	var a ragtypes.CandidateEntity
	for _, c := range merged {
		if c.Entity.ID == "a" {
			a = c
		}
	}
	if a.ClusterScore != 0.9 || a.VectorScore != 0.5 {
		t.Fatalf("expected both scores retained for entity a, got %+v", a)
	}
}

func TestCompatibleClusterTypes_MicroOnlyAllowsMicro(t *testing.T) {
	types := compatibleClusterTypes(ragtypes.ScopeMicro)
	if !types[ragtypes.ClusterMicro] || types[ragtypes.ClusterMacro] || types[ragtypes.ClusterOverview] {
		t.Fatalf("expected only micro to be compatible, got %+v", types)
	}
}
