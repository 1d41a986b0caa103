package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lelook/backend/internal/domain"
)

const (
	maxAttempts      = 3
	maxResponseBytes = 4 << 20
	maxErrorBodySize = 512
	defaultEngine    = "google_shopping"
)

var errBuildRequest = errors.New("failed to create request")

// Config holds connection and locale settings for the SerpAPI client
type Config struct {
	APIKey            string
	BaseURL           string
	Engine            string
	GoogleDomain      string
	HL                string
	GL                string
	Location          string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client handles communication with the SerpAPI Google Shopping engine
type Client struct {
	httpClient  *http.Client
	config      Config
	rateLimiter *rate.Limiter
	logger      *zap.Logger
}

// searchResponse is the subset of a SerpAPI response the client reads
type searchResponse struct {
	ShoppingResults []map[string]any `json:"shopping_results"`
	Error           string           `json:"error"`
}

// NewClient creates a new SerpAPI client
func NewClient(config Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://serpapi.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Engine == "" {
		config.Engine = defaultEngine
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:      logger.Named("serpapi"),
	}
}

// exponentialBackoff returns the delay before retrying after the given attempt: 500ms, 1s, 2s...
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(500*(1<<(attempt-1))) * time.Millisecond
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// buildURL assembles the search request URL, structural filters included
func (c *Client) buildURL(params domain.SearchParams) string {
	values := url.Values{}
	values.Set("engine", c.config.Engine)
	values.Set("q", params.Query)
	values.Set("api_key", c.config.APIKey)
	values.Set("tbm", "shop")
	if params.Limit > 0 {
		values.Set("num", strconv.Itoa(params.Limit))
	}
	if c.config.GoogleDomain != "" {
		values.Set("google_domain", c.config.GoogleDomain)
	}
	if c.config.HL != "" {
		values.Set("hl", c.config.HL)
	}
	if c.config.GL != "" {
		values.Set("gl", c.config.GL)
	}
	if c.config.Location != "" {
		values.Set("location", c.config.Location)
	}

	f := params.Filters
	if f.MinPrice != nil {
		values.Set("min_price", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		values.Set("max_price", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}
	if f.FreeShipping != nil {
		values.Set("free_shipping", strconv.FormatBool(*f.FreeShipping))
	}
	if f.OnSale != nil {
		values.Set("on_sale", strconv.FormatBool(*f.OnSale))
	}

	return fmt.Sprintf("%s/search.json?%s", c.config.BaseURL, values.Encode())
}

// doRequest executes an HTTP GET request with proper headers and error handling
func (c *Client) doRequest(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBuildRequest, err)
	}
	req.Header.Set("User-Agent", "LeLook/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, err)
	}
	return resp, nil
}

// Search runs a Google Shopping query and returns the raw shopping results.
// Transient failures (network, 5xx, 429) are retried up to three times; other 4xx are not.
func (c *Client) Search(ctx context.Context, params domain.SearchParams) ([]domain.RawResult, error) {
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidRequest)
	}

	reqURL := c.buildURL(params)
	logger := c.logger.With(zap.String("query", params.Query), zap.Int("limit", params.Limit))

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter error: %w", err)
		}

		resp, err := c.doRequest(ctx, reqURL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, errBuildRequest) {
				return nil, err
			}
			logger.Warn("request failed", zap.Int("attempt", attempt), zap.Error(err))
			lastErr = err
			continue
		}

		body, readErr := readLimitedBody(resp.Body, maxResponseBytes)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("%w: reading body: %v", domain.ErrSearchUnavailable, readErr)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			snippet := body
			if len(snippet) > maxErrorBodySize {
				snippet = snippet[:maxErrorBodySize]
			}
			logger.Warn("api error",
				zap.Int("attempt", attempt),
				zap.Int("status", resp.StatusCode),
				zap.ByteString("body", snippet),
			)
			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				lastErr = fmt.Errorf("%w: %v", domain.ErrSearchUnavailable, domain.ErrRateLimited)
				continue
			case resp.StatusCode >= 500:
				lastErr = fmt.Errorf("%w: status %d", domain.ErrSearchUnavailable, resp.StatusCode)
				continue
			default:
				return nil, fmt.Errorf("%w: status %d", domain.ErrSearchUnavailable, resp.StatusCode)
			}
		}

		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		if parsed.Error != "" {
			if isNoResults(parsed.Error) {
				logger.Debug("no results")
				return []domain.RawResult{}, nil
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrSearchUnavailable, parsed.Error)
		}

		results := MapShoppingResults(parsed.ShoppingResults, params.Filters.Category)
		logger.Debug("search complete", zap.Int("results", len(results)), zap.Int("attempt", attempt))
		return results, nil
	}

	logger.Error("all retries failed", zap.Error(lastErr))
	return nil, lastErr
}

// isNoResults reports whether a SerpAPI error message only means the query matched nothing
func isNoResults(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "hasn't returned any results") || strings.Contains(m, "no results")
}
