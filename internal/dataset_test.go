package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "incidents.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDataset(t *testing.T) {
	path := writeDataset(t, `[
		{
			"id": "INC-1",
			"stack": "java",
			"title": "Payment API timeouts",
			"description": "Payment API timing out after 30s",
			"root_cause": "Connection pool exhausted",
			"solution_steps": ["Increase pool size", "Add pool metrics"]
		},
		{
			"stack": "python",
			"description": "Celery workers stuck",
			"root_cause": "Broker connection leak"
		}
	]`)

	incidents, err := LoadDataset(path, DefaultStacks())
	if err != nil {
		t.Fatalf("LoadDataset(): %v", err)
	}
	if len(incidents) != 2 {
		t.Fatalf("expected 2 incidents, got %d", len(incidents))
	}
	if incidents[0].ID != "INC-1" || incidents[0].Stack != StackJava {
		t.Errorf("first incident = %+v", incidents[0])
	}
	if len(incidents[0].SolutionSteps) != 2 {
		t.Errorf("solution steps lost: %v", incidents[0].SolutionSteps)
	}
	if incidents[1].ID == "" {
		t.Error("missing id not generated")
	}
}

func TestLoadDatasetRejectsBadRecords(t *testing.T) {
	cases := []struct {
		name     string
		content  string
		sentinel error
	}{
		{
			name:     "unknown stack",
			content:  `[{"id": "x", "stack": "perl", "description": "d", "root_cause": "r"}]`,
			sentinel: ErrInvalidStack,
		},
		{
			name:     "blank description",
			content:  `[{"id": "x", "stack": "java", "description": "  ", "root_cause": "r"}]`,
			sentinel: ErrEmptyText,
		},
		{
			name:     "missing root cause",
			content:  `[{"id": "x", "stack": "java", "description": "d"}]`,
			sentinel: ErrEmptyText,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDataset(t, tc.content)
			_, err := LoadDataset(path, DefaultStacks())
			if !errors.Is(err, tc.sentinel) {
				t.Errorf("error = %v, want %v", err, tc.sentinel)
			}
		})
	}
}

func TestLoadDatasetMissingFile(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "nope.json"), DefaultStacks())
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEmbedText(t *testing.T) {
	inc := Incident{
		Title:       "Payment API timeouts",
		Description: "Payment API timing out",
		RootCause:   "Connection pool exhausted",
	}
	want := "Payment API timeouts Payment API timing out Connection pool exhausted"
	if got := EmbedText(inc); got != want {
		t.Errorf("EmbedText() = %q, want %q", got, want)
	}

	bare := Incident{Description: "only description"}
	if got := EmbedText(bare); got != "only description" {
		t.Errorf("EmbedText() = %q", got)
	}
}

func TestImporterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	index := NewMemoryIndex(3)
	imp := NewImporter(store, index, &stubEmbedder{vec: []float32{1, 0, 0}}, DefaultNumTrees, nil)

	incidents := []Incident{
		{ID: "INC-1", Stack: StackJava, Description: "d1", RootCause: "r1"},
		{ID: "INC-2", Stack: StackPython, Description: "d2", RootCause: "r2"},
	}
	if err := imp.Import(ctx, incidents); err != nil {
		t.Fatalf("Import(): %v", err)
	}

	counts, err := store.CountByStack(ctx)
	if err != nil {
		t.Fatalf("CountByStack(): %v", err)
	}
	if counts[StackJava] != 1 || counts[StackPython] != 1 {
		t.Errorf("store counts = %v", counts)
	}

	n, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count(): %v", err)
	}
	if n != 2 {
		t.Errorf("index count = %d, want 2", n)
	}
}

type batchCountingEmbedder struct {
	stubEmbedder
	batches int
}

func (b *batchCountingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.batches++
	return b.stubEmbedder.EmbedBatch(ctx, texts)
}

func TestImporterEmbedsInOneBatch(t *testing.T) {
	ctx := context.Background()
	emb := &batchCountingEmbedder{stubEmbedder: stubEmbedder{vec: []float32{1, 0, 0}}}
	imp := NewImporter(NewMemoryStore(), NewMemoryIndex(3), emb, DefaultNumTrees, nil)

	incidents := []Incident{
		{ID: "INC-1", Stack: StackJava, Description: "d1", RootCause: "r1"},
		{ID: "INC-2", Stack: StackPython, Description: "d2", RootCause: "r2"},
		{ID: "INC-3", Stack: StackNode, Description: "d3", RootCause: "r3"},
	}
	if err := imp.Import(ctx, incidents); err != nil {
		t.Fatalf("Import(): %v", err)
	}
	if emb.batches != 1 {
		t.Errorf("embed batches = %d, want 1", emb.batches)
	}
}

func TestImporterReimportDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	index := NewMemoryIndex(3)
	imp := NewImporter(store, index, &stubEmbedder{vec: []float32{1, 0, 0}}, DefaultNumTrees, nil)

	incidents := []Incident{{ID: "INC-1", Stack: StackJava, Description: "d", RootCause: "r"}}
	if err := imp.Import(ctx, incidents); err != nil {
		t.Fatalf("Import(): %v", err)
	}
	if err := imp.Import(ctx, incidents); err != nil {
		t.Fatalf("re-Import(): %v", err)
	}

	n, err := index.Count(ctx)
	if err != nil {
		t.Fatalf("Count(): %v", err)
	}
	if n != 1 {
		t.Errorf("index count after re-import = %d, want 1", n)
	}
}
