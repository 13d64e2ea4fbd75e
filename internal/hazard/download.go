// internal/hazard/download.go
package hazard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pricematch/pricematch/internal/models"
)

const (
	downloadReferer   = "https://www.foodsafetykorea.go.kr/"
	downloadUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
	maxImageBytes     = 20 << 20
)

var ErrEmptyImage = errors.New("image response was empty")

// Downloader fetches product images over HTTP.
type Downloader struct {
	httpClient *http.Client
}

func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Downloader{httpClient: &http.Client{Timeout: timeout}}
}

// Fetch downloads url into memory.
func (d *Downloader) Fetch(ctx context.Context, url string) (*models.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid image url %q: %w", url, err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)
	req.Header.Set("Referer", downloadReferer)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("image download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	mimeType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}

	return &models.Image{URL: url, Data: data, MIMEType: mimeType}, nil
}

// Save downloads url into dir under a random name and returns the path.
// The caller removes the file.
func (d *Downloader) Save(ctx context.Context, url, dir string) (string, error) {
	img, err := d.Fetch(ctx, url)
	if err != nil {
		return "", err
	}

	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	path := filepath.Join(dir, uuid.NewString()+extensionFor(img.MIMEType, url))
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return path, nil
}

func extensionFor(mimeType, url string) string {
	switch {
	case mimeType == "image/png" || strings.Contains(strings.ToLower(url), ".png"):
		return ".png"
	case mimeType == "image/webp":
		return ".webp"
	case mimeType == "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
