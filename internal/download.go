package internal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

const (
	DefaultModelURL      = "https://huggingface.co/leliuga/all-MiniLM-L6-v2-GGUF/resolve/main/all-MiniLM-L6-v2.F16.gguf"
	DefaultModelFilename = "all-MiniLM-L6-v2.F16.gguf"
)

// Downloader fetches and caches the embedding model file.
type Downloader struct {
	cacheDir string
	token    string
	client   *http.Client
}

func NewDownloader(cacheDir, token string) *Downloader {
	return &Downloader{
		cacheDir: cacheDir,
		token:    token,
		client:   http.DefaultClient,
	}
}

// EnsureModel returns the cached model path, downloading it first when
// missing. Downloads go through a temp file so an interrupted fetch never
// leaves a corrupt model behind.
func (d *Downloader) EnsureModel(ctx context.Context, url, filename string, onProgress func(written, total int64)) (string, error) {
	modelPath := filepath.Join(d.cacheDir, filename)

	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	body, total, err := d.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	defer body.Close()

	reader := io.Reader(body)
	if onProgress != nil {
		reader = &progressReader{r: body, total: total, onProgress: onProgress}
	}

	if err := writeAtomic(modelPath, reader); err != nil {
		return "", err
	}
	return modelPath, nil
}

func (d *Downloader) fetch(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	return resp.Body, resp.ContentLength, nil
}

func writeAtomic(dest string, r io.Reader) error {
	tmp := dest + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()

	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if copyErr != nil {
			return fmt.Errorf("write file: %w", copyErr)
		}
		return fmt.Errorf("close file: %w", closeErr)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename file: %w", err)
	}
	return nil
}

type progressReader struct {
	r          io.Reader
	read       int64
	total      int64
	onProgress func(written, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.read += int64(n)
	if n > 0 {
		pr.onProgress(pr.read, pr.total)
	}
	return n, err
}

func DefaultCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "stacklens", "models"), nil
}
