package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoadDataset reads an incident corpus from a JSON file. Stacks must belong
// to the allowed enumeration; incidents without an id get a generated one.
func LoadDataset(path string, allowed []Stack) ([]Incident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var incidents []Incident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	for i := range incidents {
		inc := &incidents[i]
		if inc.ID == "" {
			inc.ID = uuid.NewString()
		}
		stack, err := ParseStack(string(inc.Stack), allowed)
		if err != nil {
			return nil, fmt.Errorf("incident %s: %w", inc.ID, err)
		}
		inc.Stack = stack

		if strings.TrimSpace(inc.Description) == "" {
			return nil, fmt.Errorf("incident %s: description: %w", inc.ID, ErrEmptyText)
		}
		if strings.TrimSpace(inc.RootCause) == "" {
			return nil, fmt.Errorf("incident %s: root cause: %w", inc.ID, ErrEmptyText)
		}
	}

	return incidents, nil
}

// EmbedText is the canonical text embedded per incident: title, description
// and root cause. Changing it invalidates stored vectors.
func EmbedText(inc Incident) string {
	parts := make([]string, 0, 3)
	if inc.Title != "" {
		parts = append(parts, inc.Title)
	}
	parts = append(parts, inc.Description)
	if inc.RootCause != "" {
		parts = append(parts, inc.RootCause)
	}
	return strings.Join(parts, " ")
}

// Importer loads incidents into the metadata store and the vector index.
// Re-importing the same ids overwrites both sides, never duplicates.
type Importer struct {
	store    IncidentStore
	index    VectorIndex
	embedder Embedder
	numTrees int
	log      *zap.Logger
}

func NewImporter(store IncidentStore, index VectorIndex, embedder Embedder, numTrees int, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		store:    store,
		index:    index,
		embedder: embedder,
		numTrees: numTrees,
		log:      log,
	}
}

func (imp *Importer) Import(ctx context.Context, incidents []Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	if err := imp.store.UpsertIncidents(ctx, incidents); err != nil {
		return fmt.Errorf("store incidents: %w", err)
	}

	texts := make([]string, len(incidents))
	for i, inc := range incidents {
		texts[i] = EmbedText(inc)
	}
	vecs, err := imp.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed incidents: %w", err)
	}

	for i, inc := range incidents {
		emb := NewEmbedding(vecs[i], imp.embedder.Model())
		payload := VectorPayload{Stack: inc.Stack, RootCause: inc.RootCause}
		if err := imp.index.Upsert(ctx, inc.ID, emb, payload); err != nil {
			return fmt.Errorf("index incident %s: %w", inc.ID, err)
		}
	}

	if builder, ok := imp.index.(IndexBuilder); ok {
		if err := builder.Build(ctx, imp.numTrees); err != nil {
			return fmt.Errorf("build index: %w", err)
		}
		if err := builder.Save(ctx); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}

	imp.log.Info("dataset imported", zap.Int("incidents", len(incidents)))
	return nil
}
