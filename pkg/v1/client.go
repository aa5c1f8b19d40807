// Package v1 provides programmatic access to the incident retrieval
// engine: importing a corpus and searching it for similar incidents.
package v1

import (
	"context"
	"fmt"
	"os"

	"github.com/stacklens/stacklens/internal"
)

// Client runs the retrieval pipeline in process.
type Client struct {
	cfg      *internal.Config
	embedder internal.Embedder
	index    internal.VectorIndex
	store    internal.IncidentStore
	pipeline *internal.SearchPipeline
	closers  []func() error
}

// New creates a Client. By default it uses the embedded index and SQLite
// store from the config file (or the built-in defaults) and the local
// embedding model, downloading it on first use.
func New(opts ...Option) (*Client, error) {
	cc := &clientConfig{}
	for _, opt := range opts {
		opt(cc)
	}

	cfg, err := internal.LoadConfig(cc.configPath)
	if err != nil {
		return nil, err
	}
	if cc.dimension > 0 {
		cfg.Embeddings.Dimension = cc.dimension
	}
	if cc.indexPath != "" {
		cfg.Index.Path = cc.indexPath
	}
	if cc.sqlitePath != "" {
		cfg.Store.DSN = cc.sqlitePath
	}

	c := &Client{cfg: cfg}

	if err := c.initEmbedder(cc); err != nil {
		return nil, err
	}
	if err := c.initBackends(cc); err != nil {
		c.Close()
		return nil, err
	}

	c.pipeline = internal.NewSearchPipeline(c.embedder, c.index, c.store, cfg.Search,
		internal.WithStacks(cfg.Stacks))
	return c, nil
}

func (c *Client) initEmbedder(cc *clientConfig) error {
	if cc.embedFn != nil {
		c.embedder = &funcEmbedder{fn: cc.embedFn, dim: cc.dimension}
		return nil
	}

	cacheDir := cc.cacheDir
	if cacheDir == "" {
		dir, err := internal.DefaultCacheDir()
		if err != nil {
			return err
		}
		cacheDir = dir
	}

	downloader := internal.NewDownloader(cacheDir, os.Getenv("HF_TOKEN"))
	modelPath, err := downloader.EnsureModel(context.Background(), internal.DefaultModelURL, c.cfg.Embeddings.Model, nil)
	if err != nil {
		return fmt.Errorf("ensure model: %w", err)
	}

	embedder, err := internal.NewLocalEmbedder(modelPath, c.cfg.Embeddings.Dimension)
	if err != nil {
		return fmt.Errorf("load embedder: %w", err)
	}
	c.embedder = embedder
	c.closers = append(c.closers, embedder.Close)
	return nil
}

func (c *Client) initBackends(cc *clientConfig) error {
	if cc.inMemory {
		c.index = internal.NewMemoryIndex(c.cfg.Embeddings.Dimension)
		c.store = internal.NewMemoryStore()
		return nil
	}

	index, err := internal.NewAnnoyIndex(c.cfg.Index.Path, c.cfg.Embeddings.Dimension)
	if err != nil {
		return err
	}
	if err := index.Load(context.Background()); err != nil {
		return err
	}
	c.index = index

	store, err := internal.NewSQLiteStore(c.cfg.Store.DSN)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		store.Close()
		return err
	}
	c.store = store
	c.closers = append(c.closers, store.Close)
	return nil
}

// Import loads incidents into the store and the index, overwriting
// existing ids.
func (c *Client) Import(ctx context.Context, incidents []Incident) error {
	converted := make([]internal.Incident, 0, len(incidents))
	for _, inc := range incidents {
		stack, err := internal.ParseStack(inc.Stack, c.cfg.Stacks)
		if err != nil {
			return fmt.Errorf("incident %s: %w", inc.ID, err)
		}
		converted = append(converted, internal.Incident{
			ID:            inc.ID,
			Stack:         stack,
			Title:         inc.Title,
			Description:   inc.Description,
			ErrorMessage:  inc.ErrorMessage,
			RootCause:     inc.RootCause,
			SolutionSteps: inc.SolutionSteps,
			InfraContext:  inc.InfraContext,
			Service:       inc.Service,
		})
	}

	importer := internal.NewImporter(c.store, c.index, c.embedder, c.cfg.Index.NumTrees, nil)
	if err := importer.Import(ctx, converted); err != nil {
		return fmt.Errorf("import: %w", err)
	}
	return nil
}

// Search finds incidents similar to the query, split into same-stack
// matches and cross-stack insights.
func (c *Client) Search(ctx context.Context, q Query) (*Result, error) {
	stack, err := internal.ParseStack(q.Stack, c.cfg.Stacks)
	if err != nil {
		return nil, err
	}

	result, err := c.pipeline.Search(ctx, internal.Query{
		Description:  q.Description,
		Stack:        stack,
		ErrorMessage: q.ErrorMessage,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	return convertResult(q, result), nil
}

// Status reports corpus sizes.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	counts, err := c.store.CountByStack(ctx)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}
	vectors, err := c.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}

	byStack := make(map[string]int, len(counts))
	for stack, n := range counts {
		byStack[stack.String()] = n
	}
	return &Status{IncidentsByStack: byStack, IndexedVectors: vectors}, nil
}

// Close releases the embedder and any open backends.
func (c *Client) Close() error {
	var firstErr error
	for _, closeFn := range c.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}

func convertResult(q Query, ctx *internal.IncidentContext) *Result {
	result := &Result{
		Query:          q,
		Degraded:       ctx.Degraded,
		DegradedReason: ctx.DegradedReason,
	}

	for _, m := range ctx.SameStack {
		result.SameStackMatches = append(result.SameStackMatches, convertMatch(m))
	}
	for _, insight := range ctx.CrossStack {
		converted := Insight{
			RootCause:     insight.RootCause,
			TopSimilarity: insight.TopSimilarity,
		}
		for _, s := range insight.Stacks {
			converted.Stacks = append(converted.Stacks, s.String())
		}
		for _, m := range insight.Incidents {
			converted.Incidents = append(converted.Incidents, convertMatch(m))
		}
		result.CrossStackInsights = append(result.CrossStackInsights, converted)
	}
	return result
}

func convertMatch(m internal.Match) Match {
	return Match{
		Incident: Incident{
			ID:            m.Incident.ID,
			Stack:         m.Incident.Stack.String(),
			Title:         m.Incident.Title,
			Description:   m.Incident.Description,
			ErrorMessage:  m.Incident.ErrorMessage,
			RootCause:     m.Incident.RootCause,
			SolutionSteps: m.Incident.SolutionSteps,
			InfraContext:  m.Incident.InfraContext,
			Service:       m.Incident.Service,
		},
		Similarity: m.Similarity,
	}
}

type funcEmbedder struct {
	fn  func(ctx context.Context, text string) ([]float32, error)
	dim int
}

func (f *funcEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.fn(ctx, text)
}

func (f *funcEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.fn(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *funcEmbedder) Dimension() int { return f.dim }
func (f *funcEmbedder) Model() string  { return "custom" }
func (f *funcEmbedder) Close() error   { return nil }
