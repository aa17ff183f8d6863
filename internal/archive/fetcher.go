// Package archive downloads book archives and unpacks them into scoped
// temporary directories owned by the caller.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/michaelprice232/book-harvester/internal/observability"
)

var (
	// ErrDownload classifies failures while fetching the archive bytes.
	ErrDownload = errors.New("archive download failed")
	// ErrUnpack classifies failures while unpacking the archive.
	ErrUnpack = errors.New("archive unpack failed")
)

// Fetcher downloads archives over HTTP and unpacks them under workDir.
type Fetcher struct {
	client    *http.Client
	workDir   string
	userAgent string
	maxSize   int64
	limiter   *rate.Limiter
	logger    observability.Logger
	metrics   *observability.Metrics
}

// NewFetcher creates a Fetcher. Downloads larger than maxSize fail rather
// than filling the disk.
func NewFetcher(workDir, userAgent string, timeout time.Duration, maxSize int64, limiter *rate.Limiter, logger observability.Logger, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		workDir:   workDir,
		userAgent: userAgent,
		maxSize:   maxSize,
		limiter:   limiter,
		logger:    logger,
		metrics:   metrics,
	}
}

// Fetch downloads the archive at rawURL and unpacks it into a freshly created
// directory, which it returns. The caller owns the directory and must call
// Release once the task reaches a terminal outcome.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDownload, err)
	}

	start := time.Now()
	data, err := f.download(ctx, rawURL)
	if err != nil {
		return "", err
	}

	f.logger.Info("archive downloaded",
		"url", rawURL, "bytes", len(data),
		"latency", time.Since(start).Round(time.Millisecond).String())
	f.metrics.ObserveDuration("fetch", time.Since(start).Seconds())
	f.metrics.ObserveArchiveSize(int64(len(data)))

	dir := filepath.Join(f.workDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create work dir: %v", ErrUnpack, err)
	}

	if err := unzip(data, dir); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("%w: %v", ErrUnpack, err)
	}

	return dir, nil
}

// Release deletes an unpacked archive directory. Safe to call with an empty path.
func (f *Fetcher) Release(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		f.logger.Error("failed to remove work dir", "dir", dir, "error", err)
	}
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrDownload, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrDownload, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrDownload, err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: archive exceeds %d bytes", ErrDownload, f.maxSize)
	}

	return data, nil
}

// unzip extracts a zip archive held in memory into dest, refusing entries
// that would escape it.
func unzip(data []byte, dest string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %v", err)
	}

	cleanDest := filepath.Clean(dest)
	for _, zf := range zr.File {
		path := filepath.Join(dest, zf.Name)
		if !strings.HasPrefix(path, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal entry path %q", zf.Name)
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0o755); err != nil {
				return fmt.Errorf("create dir %q: %v", zf.Name, err)
			}
			continue
		}

		if err := extractFile(zf, path); err != nil {
			return err
		}
	}

	return nil
}

func extractFile(zf *zip.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent dir for %q: %v", zf.Name, err)
	}

	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open entry %q: %v", zf.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file %q: %v", zf.Name, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("write file %q: %v", zf.Name, err)
	}

	return nil
}
