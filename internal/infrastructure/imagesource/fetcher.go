// Package imagesource downloads remote product and user photos.
package imagesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

const (
	defaultMaxBytes = 10 << 20
	defaultTimeout  = 20 * time.Second
)

// Config bounds remote image downloads
type Config struct {
	MaxBytes int64
	Timeout  time.Duration
}

// Fetcher implements domain.ImageFetcher over HTTP
type Fetcher struct {
	httpClient *http.Client
	maxBytes   int64
	logger     *zap.Logger
}

// NewFetcher creates a Fetcher
func NewFetcher(config Config, logger *zap.Logger) *Fetcher {
	if config.MaxBytes <= 0 {
		config.MaxBytes = defaultMaxBytes
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: config.Timeout},
		maxBytes:   config.MaxBytes,
		logger:     logger.Named("imagesource"),
	}
}

// Fetch downloads url and sniffs its content. Bodies over the size cap and non-image
// payloads are rejected regardless of the Content-Type the server claims.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*domain.ResolvedImage, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("%w: unsupported url %q", domain.ErrImageUnavailable, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageUnavailable, err)
	}
	req.Header.Set("User-Agent", "LeLook/1.0")
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("image fetch rejected", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", domain.ErrImageUnavailable, resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit", domain.ErrImageUnavailable, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImageUnavailable, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", domain.ErrImageUnavailable, f.maxBytes)
	}

	detected := mimetype.Detect(data).String()
	if !strings.HasPrefix(detected, "image/") {
		return nil, fmt.Errorf("%w: %s is not an image", domain.ErrImageUnavailable, detected)
	}

	return &domain.ResolvedImage{Data: data, MIMEType: detected, Origin: "remote"}, nil
}
