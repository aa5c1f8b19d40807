package internal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

var _ VectorIndex = (*MemoryIndex)(nil)

// MemoryIndex is an exact-cosine in-memory index. It backs the "memory"
// backend and the test fakes; results are deterministic, ties broken by
// insertion order.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]memoryEntry
	order     map[string]int
	nextSeq   int
}

type memoryEntry struct {
	vector  []float32
	payload VectorPayload
}

func NewMemoryIndex(dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension: dimension,
		entries:   make(map[string]memoryEntry),
		order:     make(map[string]int),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, id string, emb Embedding, payload VectorPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(emb.Vector) != m.dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", m.dimension, len(emb.Vector))
	}

	vec := make([]float32, len(emb.Vector))
	copy(vec, emb.Vector)

	if _, exists := m.entries[id]; !exists {
		m.order[id] = m.nextSeq
		m.nextSeq++
	}
	m.entries[id] = memoryEntry{vector: vec, payload: payload}

	return nil
}

func (m *MemoryIndex) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, id)
	delete(m.order, id)
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, query Embedding, k int, stacks []Stack) ([]VectorHit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil, ErrIndexEmpty
	}
	if len(query.Vector) != m.dimension {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", m.dimension, len(query.Vector))
	}
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		hit VectorHit
		seq int
	}

	candidates := make([]scored, 0, len(m.entries))
	for id, entry := range m.entries {
		if !matchesStacks(entry.payload.Stack, stacks) {
			continue
		}
		candidates = append(candidates, scored{
			hit: VectorHit{
				IncidentID: id,
				Similarity: cosineSimilarity(query.Vector, entry.vector),
				Stack:      entry.payload.Stack,
			},
			seq: m.order[id],
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].hit.Similarity != candidates[j].hit.Similarity {
			return candidates[i].hit.Similarity > candidates[j].hit.Similarity
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	hits := make([]VectorHit, len(candidates))
	for i, c := range candidates {
		hits[i] = c.hit
	}
	return hits, nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries), nil
}

// cosineSimilarity returns the cosine of the angle between a and b mapped
// onto [0,1], matching the normalization used by the production backends.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clampSimilarity(cos)
}

// clampSimilarity maps raw cosine onto [0,1]: orthogonal or opposing vectors
// score 0, identical direction scores 1.
func clampSimilarity(cos float64) float64 {
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
