package main

import (
	"context"
	"testing"
	"time"

	"github.com/stacklens/stacklens/internal"
	"go.uber.org/zap"
)

type fixedEmbedder struct {
	vec []float32
}

func (f *fixedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int { return len(f.vec) }
func (f *fixedEmbedder) Model() string  { return "fixed" }
func (f *fixedEmbedder) Close() error   { return nil }

// newTestApp wires an app entirely against in-memory components, seeded
// with a small corpus where the java and python incidents share a root
// cause.
func newTestApp(t *testing.T) *app {
	t.Helper()

	cfg := internal.DefaultConfig()
	cfg.Search.Timeout = time.Second
	cfg.Search.RetryBackoff = time.Millisecond
	cfg.Embeddings.Dimension = 3
	cfg.Index.Backend = "memory"
	cfg.Store.Driver = "memory"

	index := internal.NewMemoryIndex(3)
	store := internal.NewMemoryStore()

	incidents := []internal.Incident{
		{
			ID:          "INC-JAVA",
			Stack:       internal.StackJava,
			Title:       "Payment API timeouts",
			Description: "Payment API timing out talking to Postgres",
			RootCause:   "Connection pool exhausted",
		},
		{
			ID:          "INC-PY",
			Stack:       internal.StackPython,
			Title:       "Billing worker stalls",
			Description: "Billing worker hangs on database calls",
			RootCause:   "connection pool exhausted",
		},
	}
	vectors := map[string][]float32{
		"INC-JAVA": {0.92, 0.392, 0},
		"INC-PY":   {0.89, 0.456, 0},
	}

	ctx := context.Background()
	if err := store.UpsertIncidents(ctx, incidents); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	for _, inc := range incidents {
		emb := internal.NewEmbedding(vectors[inc.ID], "fixed")
		payload := internal.VectorPayload{Stack: inc.Stack, RootCause: inc.RootCause}
		if err := index.Upsert(ctx, inc.ID, emb, payload); err != nil {
			t.Fatalf("seed index: %v", err)
		}
	}

	return &app{
		cfgPath:  defaultConfigPath,
		log:      zap.NewNop(),
		cfg:      cfg,
		embedder: &fixedEmbedder{vec: []float32{1, 0, 0}},
		index:    index,
		store:    store,
	}
}
