package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureModelDownloadsAndCaches(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte("model-bytes"))
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	d := NewDownloader(cacheDir, "")

	path, err := d.EnsureModel(context.Background(), srv.URL, "model.gguf", nil)
	if err != nil {
		t.Fatalf("EnsureModel(): %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(data) != "model-bytes" {
		t.Errorf("model content = %q", data)
	}

	// Second call hits the cache.
	again, err := d.EnsureModel(context.Background(), srv.URL, "model.gguf", nil)
	if err != nil {
		t.Fatalf("EnsureModel() cached: %v", err)
	}
	if again != path {
		t.Errorf("cached path = %q, want %q", again, path)
	}
	if requests != 1 {
		t.Errorf("expected 1 download, server saw %d", requests)
	}
}

func TestEnsureModelFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	d := NewDownloader(t.TempDir(), "")

	_, err := d.EnsureModel(context.Background(), srv.URL, "model.gguf", nil)
	if err == nil {
		t.Fatal("expected error for failed download")
	}
}

func TestEnsureModelLeavesNoPartialFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cacheDir := t.TempDir()
	d := NewDownloader(cacheDir, "")

	if _, err := d.EnsureModel(context.Background(), srv.URL, "model.gguf", nil); err == nil {
		t.Fatal("expected error")
	}

	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("partial file left behind: %s", e.Name())
		}
	}
}
