package internal

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestMemoryIndexSearchOrdersBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(3)

	vectors := map[string][]float32{
		"far":   {0, 1, 0},
		"close": {0.9, 0.436, 0},
		"exact": {1, 0, 0},
	}
	for id, vec := range vectors {
		err := idx.Upsert(ctx, id, NewEmbedding(vec, "test"), VectorPayload{Stack: StackJava})
		if err != nil {
			t.Fatalf("Upsert(%s): %v", id, err)
		}
	}

	hits, err := idx.Search(ctx, NewEmbedding([]float32{1, 0, 0}, "test"), 3, nil)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}

	want := []string{"exact", "close", "far"}
	for i, id := range want {
		if hits[i].IncidentID != id {
			t.Errorf("hit %d = %s, want %s", i, hits[i].IncidentID, id)
		}
	}
	if math.Abs(hits[0].Similarity-1) > 1e-6 {
		t.Errorf("identical vector similarity = %f, want 1", hits[0].Similarity)
	}
	if hits[2].Similarity != 0 {
		t.Errorf("orthogonal vector similarity = %f, want 0", hits[2].Similarity)
	}
}

func TestMemoryIndexOpposingVectorsScoreZero(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	if err := idx.Upsert(ctx, "anti", NewEmbedding([]float32{-1, 0}, "test"), VectorPayload{Stack: StackJava}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}

	hits, err := idx.Search(ctx, NewEmbedding([]float32{1, 0}, "test"), 1, nil)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if hits[0].Similarity != 0 {
		t.Errorf("opposing vector similarity = %f, want 0", hits[0].Similarity)
	}
}

func TestMemoryIndexStackFilter(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	entries := []struct {
		id    string
		stack Stack
	}{
		{"j1", StackJava},
		{"p1", StackPython},
		{"n1", StackNode},
	}
	for _, e := range entries {
		err := idx.Upsert(ctx, e.id, NewEmbedding([]float32{1, 0}, "test"), VectorPayload{Stack: e.stack})
		if err != nil {
			t.Fatalf("Upsert(%s): %v", e.id, err)
		}
	}

	hits, err := idx.Search(ctx, NewEmbedding([]float32{1, 0}, "test"), 10, []Stack{StackPython})
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if len(hits) != 1 || hits[0].IncidentID != "p1" {
		t.Fatalf("stack filter returned %v, want only p1", hits)
	}
}

func TestMemoryIndexEmptyIsSentinel(t *testing.T) {
	idx := NewMemoryIndex(2)

	_, err := idx.Search(context.Background(), NewEmbedding([]float32{1, 0}, "test"), 5, nil)
	if !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("empty index error = %v, want ErrIndexEmpty", err)
	}
}

func TestMemoryIndexDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(3)

	if err := idx.Upsert(ctx, "bad", NewEmbedding([]float32{1, 0}, "test"), VectorPayload{}); err == nil {
		t.Error("expected dimension mismatch on upsert")
	}

	if err := idx.Upsert(ctx, "ok", NewEmbedding([]float32{1, 0, 0}, "test"), VectorPayload{}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}
	if _, err := idx.Search(ctx, NewEmbedding([]float32{1, 0}, "test"), 5, nil); err == nil {
		t.Error("expected dimension mismatch on search")
	}
}

func TestMemoryIndexUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	if err := idx.Upsert(ctx, "a", NewEmbedding([]float32{0, 1}, "test"), VectorPayload{Stack: StackJava}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}
	if err := idx.Upsert(ctx, "a", NewEmbedding([]float32{1, 0}, "test"), VectorPayload{Stack: StackJava}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}

	n, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count(): %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d after overwrite, want 1", n)
	}

	hits, err := idx.Search(ctx, NewEmbedding([]float32{1, 0}, "test"), 1, nil)
	if err != nil {
		t.Fatalf("Search(): %v", err)
	}
	if math.Abs(hits[0].Similarity-1) > 1e-6 {
		t.Errorf("overwritten vector not used, similarity = %f", hits[0].Similarity)
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	ctx := context.Background()
	idx := NewMemoryIndex(2)

	if err := idx.Upsert(ctx, "a", NewEmbedding([]float32{1, 0}, "test"), VectorPayload{}); err != nil {
		t.Fatalf("Upsert(): %v", err)
	}
	if err := idx.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove(): %v", err)
	}

	_, err := idx.Search(ctx, NewEmbedding([]float32{1, 0}, "test"), 1, nil)
	if !errors.Is(err, ErrIndexEmpty) {
		t.Errorf("error after removing last entry = %v, want ErrIndexEmpty", err)
	}
}
