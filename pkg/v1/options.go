package v1

import "context"

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	configPath string
	cacheDir   string
	dimension  int
	indexPath  string
	sqlitePath string
	inMemory   bool
	embedFn    func(ctx context.Context, text string) ([]float32, error)
}

// WithConfigFile loads search, index and store settings from the given
// config file.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) {
		c.configPath = path
	}
}

// WithCacheDir sets the embedding model cache directory.
func WithCacheDir(dir string) Option {
	return func(c *clientConfig) {
		c.cacheDir = dir
	}
}

// WithDimension sets the embedding dimension.
func WithDimension(dim int) Option {
	return func(c *clientConfig) {
		c.dimension = dim
	}
}

// WithIndexPath sets the directory for the embedded vector index.
func WithIndexPath(dir string) Option {
	return func(c *clientConfig) {
		c.indexPath = dir
	}
}

// WithSQLitePath sets the path of the embedded SQLite store.
func WithSQLitePath(path string) Option {
	return func(c *clientConfig) {
		c.sqlitePath = path
	}
}

// WithInMemoryBackends runs the client entirely against in-process
// index and store backends. Nothing is persisted.
func WithInMemoryBackends() Option {
	return func(c *clientConfig) {
		c.inMemory = true
	}
}

// WithEmbedderFunc overrides the embedding function. The local model is
// neither downloaded nor loaded when this option is set.
func WithEmbedderFunc(dim int, fn func(ctx context.Context, text string) ([]float32, error)) Option {
	return func(c *clientConfig) {
		c.dimension = dim
		c.embedFn = fn
	}
}
