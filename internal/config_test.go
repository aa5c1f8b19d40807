package internal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig(): %v", err)
	}

	if cfg.Search.MaxSameStack != 5 || cfg.Search.MaxCrossStack != 5 {
		t.Errorf("default caps = %d/%d, want 5/5", cfg.Search.MaxSameStack, cfg.Search.MaxCrossStack)
	}
	if cfg.Search.Timeout != 5*time.Second {
		t.Errorf("default timeout = %v, want 5s", cfg.Search.Timeout)
	}
	if len(cfg.Stacks) != 3 {
		t.Errorf("default stacks = %v", cfg.Stacks)
	}
	if cfg.Index.Backend != "annoy" || cfg.Store.Driver != "sqlite" {
		t.Errorf("default backends = %s/%s", cfg.Index.Backend, cfg.Store.Driver)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Search.MaxSameStack = 7
	cfg.Search.SameStackBoost = 1.1
	cfg.Index.Backend = "qdrant"
	cfg.Index.Addr = "localhost:6334"
	cfg.Store.Driver = "postgres"
	cfg.Store.DSN = "postgres://localhost/incidents?sslmode=disable"
	cfg.Providers["groq"] = ProviderConfig{Model: "llama-3.3-70b-versatile"}

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig(): %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(): %v", err)
	}
	if loaded.Search.MaxSameStack != 7 {
		t.Errorf("MaxSameStack = %d, want 7", loaded.Search.MaxSameStack)
	}
	if loaded.Search.SameStackBoost != 1.1 {
		t.Errorf("SameStackBoost = %f, want 1.1", loaded.Search.SameStackBoost)
	}
	if loaded.Index.Backend != "qdrant" || loaded.Index.Addr != "localhost:6334" {
		t.Errorf("index config lost: %+v", loaded.Index)
	}
	if loaded.Providers["groq"].Model != "llama-3.3-70b-versatile" {
		t.Errorf("provider config lost: %+v", loaded.Providers)
	}
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	partial := "search:\n  max_same_stack: 2\n"
	if err := os.WriteFile(path, []byte(partial), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(): %v", err)
	}
	if cfg.Search.MaxSameStack != 2 {
		t.Errorf("MaxSameStack = %d, want override 2", cfg.Search.MaxSameStack)
	}
	if cfg.Embeddings.Dimension != 384 {
		t.Errorf("Dimension = %d, want default 384", cfg.Embeddings.Dimension)
	}
	if len(cfg.Stacks) == 0 {
		t.Error("stacks default lost")
	}
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("search: [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfig(path); err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}
