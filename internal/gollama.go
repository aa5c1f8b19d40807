package internal

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"

	gollama "github.com/dianlight/gollama.cpp"
)

var _ Embedder = (*LocalEmbedder)(nil)

// LocalEmbedder runs a GGUF sentence-embedding model in process. The model
// is loaded once at construction and reused for the process lifetime; Embed
// serializes access to the llama context, which is not reentrant.
type LocalEmbedder struct {
	mu        sync.Mutex
	model     gollama.LlamaModel
	ctx       gollama.LlamaContext
	dimension int
	modelName string
}

type embedderConfig struct {
	debug bool
}

type EmbedderOption func(*embedderConfig)

func WithDebugLogging() EmbedderOption {
	return func(cfg *embedderConfig) {
		cfg.debug = true
	}
}

func NewLocalEmbedder(modelPath string, dimension int, opts ...EmbedderOption) (*LocalEmbedder, error) {
	var cfg embedderConfig
	for _, o := range opts {
		o(&cfg)
	}

	if err := gollama.Backend_init(); err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}
	if !cfg.debug {
		// Upstream gollama.cpp exposes no log-control API (Log_disable
		// exists only in an unpublished fork), so llama.cpp log output
		// cannot be silenced here.
	}

	model, lctx, err := loadEmbeddingModel(modelPath)
	if err != nil {
		gollama.Backend_free()
		return nil, err
	}

	actualDim := int(gollama.Model_n_embd(model))
	if dimension > 0 && dimension != actualDim {
		gollama.Free(lctx)
		gollama.Model_free(model)
		gollama.Backend_free()
		return nil, fmt.Errorf("dimension mismatch: model has %d, requested %d", actualDim, dimension)
	}
	if dimension == 0 {
		dimension = actualDim
	}

	return &LocalEmbedder{
		model:     model,
		ctx:       lctx,
		dimension: dimension,
		modelName: filepath.Base(modelPath),
	}, nil
}

func loadEmbeddingModel(path string) (gollama.LlamaModel, gollama.LlamaContext, error) {
	modelParams := gollama.Model_default_params()
	if gpuAvailable() {
		modelParams.NGpuLayers = 99
	}

	model, err := gollama.Model_load_from_file(path, modelParams)
	if err != nil {
		return 0, 0, fmt.Errorf("load model: %w", err)
	}

	ctxParams := gollama.Context_default_params()
	ctxParams.Embeddings = 1
	ctxParams.NCtx = 512

	lctx, err := gollama.Init_from_model(model, ctxParams)
	if err != nil {
		gollama.Model_free(model)
		return 0, 0, fmt.Errorf("init context: %w", err)
	}
	gollama.Set_embeddings(lctx, true)

	return model, lctx, nil
}

// gpuAvailable reports whether model layers can be offloaded: Apple
// silicon (Metal) or a visible NVIDIA device.
func gpuAvailable() bool {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	_, err := exec.LookPath("nvidia-smi")
	return err == nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tokens, err := gollama.Tokenize(e.model, text, true, false)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("tokenize %q: %w", text, ErrEmptyText)
	}

	gollama.Memory_clear(e.ctx, false)

	batch := gollama.Batch_init(int32(len(tokens)), 0, 1)
	defer gollama.Batch_free(batch)
	stageTokens(&batch, tokens)

	if err := gollama.Decode(e.ctx, batch); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	return e.sequenceEmbedding()
}

// stageTokens writes the token ids into the batch as a single sequence,
// with every position requesting output so pooling sees the full text.
func stageTokens(batch *gollama.LlamaBatch, tokens []gollama.LlamaToken) {
	n := int32(len(tokens))
	ids := unsafe.Slice(batch.Token, n)
	positions := unsafe.Slice(batch.Pos, n)
	seqCounts := unsafe.Slice(batch.NSeqId, n)
	seqIds := unsafe.Slice(batch.SeqId, n)
	outputs := unsafe.Slice(batch.Logits, n)

	for i, tok := range tokens {
		ids[i] = tok
		positions[i] = gollama.LlamaPos(i)
		seqCounts[i] = 1
		*seqIds[i] = 0
		outputs[i] = 1
	}
	batch.NTokens = n
}

// sequenceEmbedding reads the pooled sequence embedding. BERT-style models
// with mean pooling expose it through Get_embeddings_ith (the binding's
// per-sequence accessor).
func (e *LocalEmbedder) sequenceEmbedding() ([]float32, error) {
	raw := gollama.Get_embeddings_ith(e.ctx, 0)
	if raw == nil {
		return nil, fmt.Errorf("no embeddings returned (model may not support pooling)")
	}

	vec := make([]float32, e.dimension)
	copy(vec, unsafe.Slice(raw, e.dimension))
	return l2Normalize(vec), nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

func (e *LocalEmbedder) Model() string {
	return e.modelName
}

func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	gollama.Free(e.ctx)
	gollama.Model_free(e.model)
	gollama.Backend_free()

	return nil
}

func l2Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
