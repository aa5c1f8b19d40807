package internal

import "context"

type Embedding struct {
	Vector    []float32
	Dimension int
	Model     string
}

func NewEmbedding(vec []float32, model string) Embedding {
	return Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Model:     model,
	}
}

// VectorPayload is the sidecar metadata stored next to each vector so the
// index can post-filter hits by stack without a store round trip.
type VectorPayload struct {
	Stack     Stack  `json:"stack"`
	RootCause string `json:"root_cause"`
}

// VectorHit is a raw nearest-neighbor result. Similarity is cosine-based and
// normalized to [0,1], 1 meaning identical direction.
type VectorHit struct {
	IncidentID string
	Similarity float64
	Stack      Stack
}

// VectorIndex performs approximate nearest-neighbor search over incident
// embeddings. Upserting an id that already exists overwrites its vector,
// never duplicates it. Search returns at most k hits, strictly sorted by
// similarity descending; stacks, when non-empty, restricts hits to those
// stacks. An index with no vectors reports ErrIndexEmpty, which callers
// treat as a valid empty state rather than a failure.
type VectorIndex interface {
	Upsert(ctx context.Context, id string, emb Embedding, payload VectorPayload) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query Embedding, k int, stacks []Stack) ([]VectorHit, error)
	Count(ctx context.Context) (int, error)
}

// IndexBuilder is implemented by indexes that need an explicit build and
// persistence step after bulk loading (the embedded annoy backend).
type IndexBuilder interface {
	Build(ctx context.Context, numTrees int) error
	Save(ctx context.Context) error
}

func matchesStacks(s Stack, stacks []Stack) bool {
	if len(stacks) == 0 {
		return true
	}
	for _, candidate := range stacks {
		if candidate == s {
			return true
		}
	}
	return false
}
