// Package store implements the Document Store collaborator (§6.2): the
// persisted home of Entity/Cluster/ClusterMembership rows (§3, §6.4). The
// query path only reads from it; ingestion and schema bootstrap are out of
// scope (§1) beyond the minimal CREATE IF NOT EXISTS needed for tests and
// small deployments to run without an external migration tool.
package store

import (
	"context"
	"errors"

	"homerag/internal/ragtypes"
)

// ErrUnavailable classifies a transient backend failure (§7 BackendUnavailable).
var ErrUnavailable = errors.New("store: backend unavailable")

// VectorHit is one nearest-neighbor result from VectorSearch.
type VectorHit struct {
	EntityID string
	Score    float64 // higher is closer; the range depends on the backend's metric
}

// HybridHit is one result from HybridSearch, carrying both legs' raw scores
// so the caller (CandidateRetriever) can record them per §4.6.2/§4.7 f2.
type HybridHit struct {
	EntityID    string
	VectorScore float64
	TextScore   float64
}

// ClusterEmbedding pairs a cluster id with its stored embedding, as
// returned by get_cluster_embeddings (§6.2).
type ClusterEmbedding struct {
	Cluster   ragtypes.Cluster
	Embedding ragtypes.EmbeddingVector
}

// ClusterMember pairs an entity id with its membership weight, as returned
// by get_cluster_members (§6.2).
type ClusterMember struct {
	EntityID string
	Weight   float64
}

// Filter narrows store queries, e.g. by area or domain; nil/empty means
// unfiltered.
type Filter map[string]string

// DocumentStore is the collaborator interface the retrieval pipeline
// depends on (§6.2). Implementations: Postgres+pgvector+pg_trgm, Qdrant
// (vector leg only, paired with a relational metadata source), and an
// in-memory store for tests.
type DocumentStore interface {
	VectorSearch(ctx context.Context, vector ragtypes.EmbeddingVector, k int, filter Filter) ([]VectorHit, error)
	HybridSearch(ctx context.Context, vector ragtypes.EmbeddingVector, text string, k int, filter Filter) ([]HybridHit, error)
	GetEntities(ctx context.Context, ids []string) ([]ragtypes.Entity, error)
	GetClusterEmbeddings(ctx context.Context) ([]ClusterEmbedding, error)
	GetClusterMembers(ctx context.Context, clusterID string) ([]ClusterMember, error)
}
