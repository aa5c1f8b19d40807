package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/fang"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stacklens/stacklens/internal"
	"go.uber.org/zap"
)

// version is set via ldflags at build time
var version = "dev"

const defaultConfigPath = "stacklens.yaml"

func main() {
	ctx := context.Background()

	app := newApp()
	defer app.close()

	rootCmd := NewRootCmd(version, app)
	if err := fang.Execute(ctx, rootCmd); err != nil {
		os.Exit(1)
	}
}

// app holds lazily-built components shared by the subcommands. Tests
// pre-populate the fields to run commands against in-memory fakes.
type app struct {
	cfgPath string
	log     *zap.Logger

	mu       sync.Mutex
	cfg      *internal.Config
	embedder internal.Embedder
	index    internal.VectorIndex
	store    internal.IncidentStore
	provider internal.Provider
	closers  []func() error
}

func newApp() *app {
	return &app{
		cfgPath: defaultConfigPath,
		log:     zap.NewNop(),
	}
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, closeFn := range a.closers {
		_ = closeFn()
	}
	a.closers = nil
}

func (a *app) config() (*internal.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg != nil {
		return a.cfg, nil
	}

	cfg, err := internal.LoadConfig(a.cfgPath)
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

func (a *app) openStore(ctx context.Context) (internal.IncidentStore, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.store != nil {
		return a.store, nil
	}

	switch cfg.Store.Driver {
	case "postgres":
		store, err := internal.NewPostgresStore(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	case "sqlite":
		if dir := filepath.Dir(cfg.Store.DSN); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
		store, err := internal.NewSQLiteStore(cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, store.Close)

	case "memory":
		a.store = internal.NewMemoryStore()

	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}

	return a.store, nil
}

func (a *app) openIndex(ctx context.Context) (internal.VectorIndex, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.index != nil {
		return a.index, nil
	}

	switch cfg.Index.Backend {
	case "annoy":
		idx, err := internal.NewAnnoyIndex(cfg.Index.Path, cfg.Embeddings.Dimension)
		if err != nil {
			return nil, err
		}
		if err := idx.Load(ctx); err != nil {
			return nil, err
		}
		a.index = idx

	case "qdrant":
		client, err := newQdrantClient(cfg.Index)
		if err != nil {
			return nil, err
		}
		idx := internal.NewQdrantIndex(client, cfg.Index.Collection, cfg.Embeddings.Dimension)
		if err := idx.EnsureCollection(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		a.index = idx
		a.closers = append(a.closers, client.Close)

	case "memory":
		a.index = internal.NewMemoryIndex(cfg.Embeddings.Dimension)

	default:
		return nil, fmt.Errorf("unknown index backend: %s", cfg.Index.Backend)
	}

	return a.index, nil
}

func (a *app) openEmbedder(ctx context.Context, onProgress func(written, total int64)) (internal.Embedder, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.embedder != nil {
		return a.embedder, nil
	}

	if backend := cfg.Embeddings.Backend; backend != "gollama" {
		return nil, fmt.Errorf("unsupported embeddings backend %q (only gollama)", backend)
	}

	cacheDir, err := internal.DefaultCacheDir()
	if err != nil {
		return nil, err
	}

	downloader := internal.NewDownloader(cacheDir, os.Getenv("HF_TOKEN"))
	modelPath, err := downloader.EnsureModel(ctx, internal.DefaultModelURL, cfg.Embeddings.Model, onProgress)
	if err != nil {
		return nil, fmt.Errorf("ensure model: %w", err)
	}

	embedder, err := internal.NewLocalEmbedder(modelPath, cfg.Embeddings.Dimension)
	if err != nil {
		return nil, fmt.Errorf("load embedder: %w", err)
	}
	a.embedder = embedder
	a.closers = append(a.closers, embedder.Close)

	return embedder, nil
}

func (a *app) openProvider(ctx context.Context, name string) (internal.Provider, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.provider != nil {
		return a.provider, nil
	}

	if name == "" {
		name = cfg.DefaultProvider
	}
	if name == "" {
		return nil, fmt.Errorf("no provider configured; set default_provider or pass --provider")
	}

	pcfg, ok := cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}

	apiKey := pcfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv(apiKeyEnvVar(name))
	}

	provider, err := internal.NewFantasyProvider(ctx, internal.FantasyConfig{
		Provider: name,
		APIKey:   apiKey,
		BaseURL:  pcfg.BaseURL,
		Model:    pcfg.Model,
	})
	if err != nil {
		return nil, err
	}
	a.provider = provider
	return provider, nil
}

func (a *app) buildPipeline(ctx context.Context) (*internal.SearchPipeline, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}

	embedder, err := a.openEmbedder(ctx, nil)
	if err != nil {
		return nil, err
	}
	index, err := a.openIndex(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	return internal.NewSearchPipeline(embedder, index, store, cfg.Search,
		internal.WithLogger(a.log),
		internal.WithStacks(cfg.Stacks),
	), nil
}

func apiKeyEnvVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

func newQdrantClient(cfg internal.IndexConfig) (*qdrant.Client, error) {
	host := cfg.Addr
	port := 6334
	if h, p, err := net.SplitHostPort(cfg.Addr); err == nil {
		host = h
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}

	return qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.APIKey != "",
	})
}
