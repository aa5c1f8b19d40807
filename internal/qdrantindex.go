package internal

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	payloadKeyIncidentID = "incident_id"
	payloadKeyStack      = "stack"
	payloadKeyRootCause  = "root_cause"
)

var _ VectorIndex = (*QdrantIndex)(nil)

// QdrantIndex is the remote vector index backend. Incident ids are not
// UUIDs, so each point gets a deterministic numeric id derived from the
// incident id while the id itself travels in the payload; upserting the same
// incident therefore always lands on the same point.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

func NewQdrantIndex(client *qdrant.Client, collection string, dimension int) *QdrantIndex {
	return &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
}

// EnsureCollection creates the backing collection if it does not exist yet.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return indexErr("check collection", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return indexErr("create collection", err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, id string, emb Embedding, payload VectorPayload) error {
	if len(emb.Vector) != q.dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", q.dimension, len(emb.Vector))
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points: []*qdrant.PointStruct{
			{
				Id:      pointID(id),
				Vectors: qdrant.NewVectors(emb.Vector...),
				Payload: map[string]*qdrant.Value{
					payloadKeyIncidentID: qdrant.NewValueString(id),
					payloadKeyStack:      qdrant.NewValueString(string(payload.Stack)),
					payloadKeyRootCause:  qdrant.NewValueString(payload.RootCause),
				},
			},
		},
		Wait: qdrant.PtrOf(true),
	})
	if err != nil {
		return indexErr("upsert point", err)
	}
	return nil
}

func (q *QdrantIndex) Remove(ctx context.Context, id string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(pointID(id)),
	})
	if err != nil {
		return indexErr("delete point", err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, query Embedding, k int, stacks []Stack) ([]VectorHit, error) {
	if len(query.Vector) != q.dimension {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", q.dimension, len(query.Vector))
	}
	if k <= 0 {
		return nil, nil
	}

	count, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrIndexEmpty
	}

	req := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query.Vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(stacks) > 0 {
		keywords := make([]string, len(stacks))
		for i, s := range stacks {
			keywords[i] = string(s)
		}
		req.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatchKeywords(payloadKeyStack, keywords...)},
		}
	}

	resp, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, indexErr("query points", err)
	}

	hits := make([]VectorHit, 0, len(resp))
	for _, scored := range resp {
		id := scored.Payload[payloadKeyIncidentID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, VectorHit{
			IncidentID: id,
			Similarity: clampSimilarity(float64(scored.Score)),
			Stack:      Stack(scored.Payload[payloadKeyStack].GetStringValue()),
		})
	}

	return hits, nil
}

func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
	})
	if err != nil {
		return 0, indexErr("count points", err)
	}
	return int(count), nil
}

func pointID(id string) *qdrant.PointId {
	h := fnv.New64a()
	h.Write([]byte(id))
	return qdrant.NewIDNum(h.Sum64())
}

// indexErr folds transient transport failures into ErrIndexUnavailable so
// the pipeline can degrade instead of crashing.
func indexErr(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("%s: %w", op, errors.Join(ErrIndexUnavailable, err))
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, errors.Join(ErrIndexUnavailable, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
