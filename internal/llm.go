package internal

import "context"

// Embedder maps text to a fixed-dimension vector. Implementations are
// deterministic for a fixed model and input, and safe for concurrent use.
// Embedding empty or blank text fails with ErrEmptyText.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
	Close() error
}

// Provider is the narrow interface to the external generative model. The
// retrieval core only ever hands it an assembled prompt.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GenerateObject(ctx context.Context, prompt string, target any) error
	Stream(ctx context.Context, prompt string) (<-chan string, error)
}

// Runbook is the structured analysis produced by the generator from the
// assembled incident context.
type Runbook struct {
	RootCause string   `json:"root_cause"`
	Solution  []string `json:"solution"`
	Reasoning string   `json:"reasoning"`
}
