// Package embed provides the knowledge base's embedding engine: artifact
// download/caching, tokenization, ONNX inference, and a hash-based fallback.
package embed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// ArtifactDownloadTimeout bounds a single artifact file download.
	ArtifactDownloadTimeout = 10 * time.Minute

	// huggingFaceResolveBase is the base URL artifacts are fetched from.
	huggingFaceResolveBase = "https://huggingface.co"
)

// ModelManager handles downloading and caching of the ONNX model and
// tokenizer artifacts for one repository id.
type ModelManager struct {
	cacheDir     string
	repositoryID string
	lock         *FileLock
	mu           sync.Mutex
}

// NewModelManager creates a manager rooted at cacheDir for repositoryID
// (e.g. DefaultONNXConfig().CacheDir and ONNXRepositoryID).
func NewModelManager(cacheDir, repositoryID string) *ModelManager {
	return &ModelManager{cacheDir: cacheDir, repositoryID: repositoryID}
}

func (m *ModelManager) repoDir() string {
	return filepath.Join(m.cacheDir, sanitizeRepoID(m.repositoryID))
}

// EnsureArtifacts ensures the preferred model file and tokenizer are
// present locally, downloading them (and any listed sidecar files) under a
// cross-process file lock if not. Returns the resolved model and tokenizer
// paths.
func (m *ModelManager) EnsureArtifacts(ctx context.Context, progressFn func(downloaded, total int64)) (modelPath, tokenizerPath string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg := ONNXConfig{CacheDir: m.cacheDir, RepositoryID: m.repositoryID}
	if modelPath, tokenizerPath, err = resolveArtifacts(ctx, cfg); err == nil {
		return modelPath, tokenizerPath, nil
	}

	if err := os.MkdirAll(m.repoDir(), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create artifact cache directory: %w", err)
	}

	m.lock = NewFileLock(m.repoDir())
	if err := m.lock.Lock(); err != nil {
		return "", "", fmt.Errorf("failed to acquire artifact download lock: %w", err)
	}
	defer func() { _ = m.lock.Unlock() }()

	if modelPath, tokenizerPath, err = resolveArtifacts(ctx, cfg); err == nil {
		return modelPath, tokenizerPath, nil
	}

	modelRelPath, err := m.downloadFirstExisting(ctx, preferredModelFiles, progressFn)
	if err != nil {
		return "", "", fmt.Errorf("failed to download model artifact: %w", err)
	}
	tokenizerRelPath, err := m.downloadFirstExisting(ctx, preferredTokenizerFiles, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to download tokenizer artifact: %w", err)
	}

	m.downloadSidecarFiles(ctx, modelRelPath)

	return filepath.Join(m.repoDir(), modelRelPath), filepath.Join(m.repoDir(), tokenizerRelPath), nil
}

// downloadFirstExisting tries each candidate relative path in order,
// returning the first one that downloads successfully.
func (m *ModelManager) downloadFirstExisting(ctx context.Context, candidates []string, progressFn func(downloaded, total int64)) (string, error) {
	var lastErr error
	for _, rel := range candidates {
		if err := m.downloadFile(ctx, rel, progressFn); err != nil {
			lastErr = err
			continue
		}
		return rel, nil
	}
	return "", fmt.Errorf("no candidate artifact could be fetched, tried %v: %w", candidates, lastErr)
}

// downloadSidecarFiles best-effort fetches the "<name>.onnx_data" and
// "<name>_data" sidecar files of the chosen model; no other sidecar names
// are tried, and failures are ignored.
func (m *ModelManager) downloadSidecarFiles(ctx context.Context, modelRelPath string) {
	stem := modelRelPath[:len(modelRelPath)-len(filepath.Ext(modelRelPath))]
	for _, suffix := range []string{".onnx_data", "_data"} {
		_ = m.downloadFile(ctx, stem+suffix, nil)
	}
}

func (m *ModelManager) downloadFile(ctx context.Context, relPath string, progressFn func(downloaded, total int64)) error {
	destPath := filepath.Join(m.repoDir(), relPath)
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}

	url := fmt.Sprintf("%s/%s/resolve/main/%s", huggingFaceResolveBase, m.repositoryID, relPath)

	tmpPath := destPath + ".tmp"
	defer os.Remove(tmpPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "localkb/1.0")

	client := &http.Client{Timeout: ArtifactDownloadTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", relPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status: %s", relPath, resp.Status)
	}

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer file.Close()

	totalSize := resp.ContentLength

	var downloaded int64
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := file.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("failed to write: %w", writeErr)
			}
			downloaded += int64(n)
			if progressFn != nil {
				progressFn(downloaded, totalSize)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close: %w", err)
	}
	return os.Rename(tmpPath, destPath)
}
