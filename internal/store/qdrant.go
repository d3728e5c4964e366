package store

import (
	"context"
	"crypto/sha1"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"homerag/internal/ragtypes"
)

// QdrantIndex is an alternative vector backend for entity embeddings,
// selectable by config in place of pgvector. It stores the caller's
// original string entity id in the point payload under "_entity_id" since
// Qdrant point ids must be numeric or UUID.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

// OpenQdrantIndex connects to Qdrant and ensures the entity collection
// exists with the given dimension/metric.
func OpenQdrantIndex(ctx context.Context, host string, port int, apiKey, collection string, dimension int, metric string) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant connect: %w", err)
	}
	dist := qdrant.Distance_Cosine
	switch metric {
	case "l2", "euclidean":
		dist = qdrant.Distance_Euclid
	case "ip", "dot":
		dist = qdrant.Distance_Dot
	}
	exists, err := client.CollectionExists(ctx, collection)
	if err == nil && !exists {
		_ = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: dist,
			}),
		})
	}
	return &QdrantIndex{client: client, collection: collection}, nil
}

func entityPointID(entityID string) *qdrant.PointId {
	h := sha1.Sum([]byte(entityID))
	id := uuid.NewSHA1(uuid.NameSpaceOID, h[:]).String()
	return qdrant.NewID(id)
}

// Upsert stores an entity's embedding, keeping the original string id in
// the payload so Search can recover it.
func (q *QdrantIndex) Upsert(ctx context.Context, entityID string, vector ragtypes.EmbeddingVector) error {
	payload := qdrant.NewValueMap(map[string]any{"_entity_id": entityID})
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{{
			Id:      entityPointID(entityID),
			Vectors: qdrant.NewVectors(vector...),
			Payload: payload,
		}},
	})
	return err
}

// Delete removes an entity's embedding.
func (q *QdrantIndex) Delete(ctx context.Context, entityID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{entityPointID(entityID)}),
	})
	return err
}

// Search returns the k nearest entities by embedding similarity.
func (q *QdrantIndex) Search(ctx context.Context, vector ragtypes.EmbeddingVector, k int) ([]VectorHit, error) {
	if k <= 0 {
		k = 10
	}
	limit := uint64(k)
	resp, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	out := make([]VectorHit, 0, len(resp))
	for _, point := range resp {
		entityID := ""
		if v, ok := point.Payload["_entity_id"]; ok {
			entityID = v.GetStringValue()
		}
		if entityID == "" {
			continue
		}
		out = append(out, VectorHit{EntityID: entityID, Score: float64(point.Score)})
	}
	return out, nil
}
