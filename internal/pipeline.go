package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SearchPipeline runs one query through the retrieval stages:
// encode -> vector search -> hydrate -> merge/rank -> group -> assemble.
// A pipeline is safe for concurrent use; all mutable state lives in the
// injected collaborators, which must be concurrency-safe themselves.
type SearchPipeline struct {
	embedder Embedder
	index    VectorIndex
	store    IncidentStore
	cfg      SearchConfig
	stacks   []Stack
	log      *zap.Logger
}

type PipelineOption func(*SearchPipeline)

func WithLogger(log *zap.Logger) PipelineOption {
	return func(p *SearchPipeline) {
		if log != nil {
			p.log = log
		}
	}
}

func WithStacks(stacks []Stack) PipelineOption {
	return func(p *SearchPipeline) {
		if len(stacks) > 0 {
			p.stacks = stacks
		}
	}
}

func NewSearchPipeline(embedder Embedder, index VectorIndex, store IncidentStore, cfg SearchConfig, opts ...PipelineOption) *SearchPipeline {
	p := &SearchPipeline{
		embedder: embedder,
		index:    index,
		store:    store,
		cfg:      cfg,
		stacks:   DefaultStacks(),
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Search resolves a query into an assembled incident context. Invalid input
// surfaces as an error; unreachable backends degrade into an explicit
// empty context after bounded retries; an empty corpus is a valid empty
// result, never an error.
func (p *SearchPipeline) Search(ctx context.Context, q Query) (*IncidentContext, error) {
	if err := q.Validate(p.stacks); err != nil {
		return nil, err
	}

	emb, err := p.embedder.Embed(ctx, q.SearchText())
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	limit := p.cfg.MaxSameStack + p.cfg.MaxCrossStack
	overfetch := p.cfg.Overfetch
	if overfetch < 1 {
		overfetch = 1
	}
	k := limit * overfetch

	hits, err := p.searchIndex(ctx, NewEmbedding(emb, p.embedder.Model()), k)
	if errors.Is(err, ErrIndexEmpty) {
		result := AssembleContext(q, nil, nil, p.cfg.Caps())
		return &result, nil
	}
	if err != nil {
		if errors.Is(err, ErrIndexUnavailable) {
			p.log.Warn("vector index unavailable, degrading",
				zap.String("stack", q.Stack.String()),
				zap.Error(err))
			result := DegradedContext(q, "vector search unavailable")
			return &result, nil
		}
		return nil, err
	}
	if len(hits) == 0 {
		result := AssembleContext(q, nil, nil, p.cfg.Caps())
		return &result, nil
	}

	incidents, err := p.hydrate(ctx, hits)
	if err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			p.log.Warn("incident store unavailable, degrading",
				zap.String("stack", q.Stack.String()),
				zap.Error(err))
			result := DegradedContext(q, "incident metadata unavailable")
			return &result, nil
		}
		return nil, err
	}

	matches := MergeRank(hits, incidents, q.Stack, RankConfig{
		Limit:          limit,
		SameStackBoost: p.cfg.SameStackBoost,
	})

	same, insights := SplitMatches(matches, GroupConfig{
		FuzzyThreshold: p.cfg.FuzzyThreshold,
	})

	p.log.Debug("query resolved",
		zap.String("stack", q.Stack.String()),
		zap.Int("hits", len(hits)),
		zap.Int("same_stack", len(same)),
		zap.Int("insights", len(insights)))

	result := AssembleContext(q, same, insights, p.cfg.Caps())
	return &result, nil
}

func (p *SearchPipeline) searchIndex(ctx context.Context, emb Embedding, k int) ([]VectorHit, error) {
	var hits []VectorHit
	err := p.withRetry(ctx, ErrIndexUnavailable, func(callCtx context.Context) error {
		var err error
		hits, err = p.index.Search(callCtx, emb, k, nil)
		return err
	})
	return hits, err
}

func (p *SearchPipeline) hydrate(ctx context.Context, hits []VectorHit) (map[string]Incident, error) {
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.IncidentID
	}

	var incidents map[string]Incident
	err := p.withRetry(ctx, ErrStoreUnavailable, func(callCtx context.Context) error {
		var err error
		incidents, err = p.store.FetchByIDs(callCtx, ids)
		return err
	})
	return incidents, err
}

// withRetry runs call with a per-attempt timeout, retrying transient
// failures with backoff until the attempts are spent. Deadline expiration
// counts as the transient sentinel.
func (p *SearchPipeline) withRetry(ctx context.Context, transient error, call func(context.Context) error) error {
	attempts := p.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && p.cfg.RetryBackoff > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry aborted: %w", errors.Join(transient, ctx.Err()))
			case <-time.After(p.cfg.RetryBackoff):
			}
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if p.cfg.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		}

		err := call(callCtx)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, transient) {
			err = fmt.Errorf("call timed out: %w", errors.Join(transient, err))
		}
		if !errors.Is(err, transient) {
			return err
		}
		lastErr = err
	}

	return lastErr
}
