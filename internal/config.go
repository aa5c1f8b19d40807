package internal

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type SearchConfig struct {
	MaxSameStack   int           `yaml:"max_same_stack"`
	MaxCrossStack  int           `yaml:"max_cross_stack"`
	MaxPerInsight  int           `yaml:"max_per_insight"`
	Overfetch      int           `yaml:"overfetch"`
	SameStackBoost float64       `yaml:"same_stack_boost,omitempty"`
	FuzzyThreshold float64       `yaml:"fuzzy_threshold"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
}

type EmbeddingsConfig struct {
	Backend   string `yaml:"backend"` // gollama
	Model     string `yaml:"model"`
	Dimension int    `yaml:"dimension"`
}

type IndexConfig struct {
	Backend    string `yaml:"backend"` // annoy | qdrant | memory
	Path       string `yaml:"path,omitempty"`
	Addr       string `yaml:"addr,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	NumTrees   int    `yaml:"num_trees,omitempty"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // postgres | sqlite | memory
	DSN    string `yaml:"dsn,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
}

type Config struct {
	Stacks          []Stack                   `yaml:"stacks"`
	Search          SearchConfig              `yaml:"search"`
	Embeddings      EmbeddingsConfig          `yaml:"embeddings"`
	Index           IndexConfig               `yaml:"index"`
	Store           StoreConfig               `yaml:"store"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Stacks: DefaultStacks(),
		Search: SearchConfig{
			MaxSameStack:   5,
			MaxCrossStack:  5,
			MaxPerInsight:  3,
			Overfetch:      3,
			FuzzyThreshold: 0.9,
			Timeout:        5 * time.Second,
			RetryAttempts:  2,
			RetryBackoff:   200 * time.Millisecond,
		},
		Embeddings: EmbeddingsConfig{
			Backend:   "gollama",
			Model:     DefaultModelFilename,
			Dimension: 384,
		},
		Index: IndexConfig{
			Backend:    "annoy",
			Path:       "data/index",
			Collection: "incidents",
			NumTrees:   DefaultNumTrees,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "data/incidents.db",
		},
		Providers: make(map[string]ProviderConfig),
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Stacks) == 0 {
		cfg.Stacks = DefaultStacks()
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Caps translates the search section into assembler caps.
func (c SearchConfig) Caps() ContextCaps {
	return ContextCaps{
		MaxSameStack:  c.MaxSameStack,
		MaxCrossStack: c.MaxCrossStack,
		MaxPerInsight: c.MaxPerInsight,
	}
}
