package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mariotoffia/goannoy/builder"
	"github.com/mariotoffia/goannoy/interfaces"
)

const (
	IndexFilename   = "incidents.ann"
	PayloadFilename = "payloads.json"

	DefaultNumTrees = 16
)

var _ VectorIndex = (*AnnoyIndex)(nil)
var _ IndexBuilder = (*AnnoyIndex)(nil)

// AnnoyIndex is the embedded production vector index. It keeps a payload
// sidecar (stack, root cause) per incident id so searches can post-filter by
// stack without touching the metadata store.
type AnnoyIndex struct {
	mu        sync.RWMutex
	idx       interfaces.AnnoyIndex[float32, uint32]
	dimension int
	idToNum   map[string]uint32
	numToID   map[uint32]string
	payloads  map[string]VectorPayload
	nextNum   uint32
	basePath  string
	built     bool
	dirty     bool
}

type annoySidecar struct {
	IDToNum  map[string]uint32        `json:"id_to_num"`
	NumToID  map[uint32]string        `json:"num_to_id"`
	Payloads map[string]VectorPayload `json:"payloads"`
	NextNum  uint32                   `json:"next_num"`
}

func NewAnnoyIndex(basePath string, dimension int) (*AnnoyIndex, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	idx := builder.Index[float32, uint32]().
		AngularDistance(dimension).
		UseMultiWorkerPolicy().
		MmapIndexAllocator().
		Build()

	return &AnnoyIndex{
		idx:       idx,
		dimension: dimension,
		idToNum:   make(map[string]uint32),
		numToID:   make(map[uint32]string),
		payloads:  make(map[string]VectorPayload),
		basePath:  basePath,
	}, nil
}

func (a *AnnoyIndex) Upsert(ctx context.Context, id string, emb Embedding, payload VectorPayload) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(emb.Vector) != a.dimension {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", a.dimension, len(emb.Vector))
	}

	num, exists := a.idToNum[id]
	if !exists {
		num = a.nextNum
		a.nextNum++
		a.idToNum[id] = num
		a.numToID[num] = id
	}

	// Re-adding the same internal number overwrites the stored vector.
	a.idx.AddItem(num, emb.Vector)
	a.payloads[id] = payload
	a.dirty = true
	a.built = false

	return nil
}

func (a *AnnoyIndex) Remove(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	num, exists := a.idToNum[id]
	if !exists {
		return nil
	}

	delete(a.idToNum, id)
	delete(a.numToID, num)
	delete(a.payloads, id)
	a.dirty = true
	a.built = false

	return nil
}

func (a *AnnoyIndex) Search(ctx context.Context, query Embedding, k int, stacks []Stack) ([]VectorHit, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(a.idToNum) == 0 {
		return nil, ErrIndexEmpty
	}
	if !a.built {
		return nil, fmt.Errorf("%w: index not built", ErrIndexUnavailable)
	}
	if len(query.Vector) != a.dimension {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", a.dimension, len(query.Vector))
	}
	if k <= 0 {
		return nil, nil
	}

	// Over-fetch when a stack filter is active so post-filtering can still
	// fill k results.
	fetch := k
	if len(stacks) > 0 {
		fetch = k * 4
	}
	if fetch > len(a.idToNum) {
		fetch = len(a.idToNum)
	}

	searchCtx := a.idx.CreateContext()
	nums, distances := a.idx.GetNnsByVector(query.Vector, fetch, -1, searchCtx)

	hits := make([]VectorHit, 0, k)
	for i, num := range nums {
		id, exists := a.numToID[num]
		if !exists {
			continue
		}

		payload := a.payloads[id]
		if !matchesStacks(payload.Stack, stacks) {
			continue
		}

		// Angular distance d = sqrt(2*(1-cos)); recover the cosine and map
		// it onto [0,1], same normalization as the other backends.
		var sim float64
		if i < len(distances) {
			d := float64(distances[i])
			sim = clampSimilarity(1.0 - (d*d)/2.0)
		}

		hits = append(hits, VectorHit{
			IncidentID: id,
			Similarity: sim,
			Stack:      payload.Stack,
		})
		if len(hits) == k {
			break
		}
	}

	return hits, nil
}

func (a *AnnoyIndex) Count(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	return len(a.idToNum), nil
}

func (a *AnnoyIndex) Build(ctx context.Context, numTrees int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if numTrees <= 0 {
		numTrees = DefaultNumTrees
	}

	a.idx.Build(numTrees, -1)
	a.built = true
	return nil
}

func (a *AnnoyIndex) Save(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	indexPath := filepath.Join(a.basePath, IndexFilename)
	if err := a.idx.Save(indexPath); err != nil {
		return fmt.Errorf("save index: %w", err)
	}

	sidecar := annoySidecar{
		IDToNum:  a.idToNum,
		NumToID:  a.numToID,
		Payloads: a.payloads,
		NextNum:  a.nextNum,
	}

	data, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	sidecarPath := filepath.Join(a.basePath, PayloadFilename)
	if err := os.WriteFile(sidecarPath, data, 0644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	a.dirty = false
	return nil
}

func (a *AnnoyIndex) Load(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sidecarPath := filepath.Join(a.basePath, PayloadFilename)
	data, err := os.ReadFile(sidecarPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read sidecar: %w", err)
	}

	var sidecar annoySidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return fmt.Errorf("unmarshal sidecar: %w", err)
	}

	a.idToNum = sidecar.IDToNum
	a.numToID = sidecar.NumToID
	a.payloads = sidecar.Payloads
	a.nextNum = sidecar.NextNum
	if a.payloads == nil {
		a.payloads = make(map[string]VectorPayload)
	}

	indexPath := filepath.Join(a.basePath, IndexFilename)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return nil
	}

	if err := a.idx.Load(indexPath); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	a.built = true
	a.dirty = false
	return nil
}

func (a *AnnoyIndex) Contains(ctx context.Context, id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, exists := a.idToNum[id]
	return exists
}
