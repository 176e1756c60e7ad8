// Package intake is the HTTP adapter to the external crawl, scoring,
// fingerprint, and extraction services.
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

// Client talks to the pipeline services under a single base endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	limiter  *rate.Limiter
}

var _ ports.CrawlService = (*Client)(nil)
var _ ports.ScoreService = (*Client)(nil)
var _ ports.FingerprintService = (*Client)(nil)
var _ ports.ExtractService = (*Client)(nil)

// NewClient creates a reusable HTTP client. requestsPerSecond throttles
// outbound calls; zero or negative disables throttling.
func NewClient(endpoint, apiKey string, requestsPerSecond float64) *Client {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(limit, 1),
	}
}

type discoverResponse struct {
	CrawlSessionID string        `json:"crawl_session_id"`
	Pages          []domain.Page `json:"pages"`
	SkippedURLs    []string      `json:"skipped_urls"`
	SitemapURLs    []string      `json:"sitemap_urls"`
}

// Discover asks the crawler to walk the site rooted at url.
func (c *Client) Discover(ctx context.Context, url string) (ports.DiscoverResult, error) {
	var resp discoverResponse
	err := c.post(ctx, "/discover", map[string]any{"url": url}, &resp)
	if err != nil {
		return ports.DiscoverResult{}, err
	}
	return ports.DiscoverResult{
		CrawlSessionID: resp.CrawlSessionID,
		Pages:          resp.Pages,
		SkippedURLs:    resp.SkippedURLs,
		SitemapURLs:    resp.SitemapURLs,
	}, nil
}

// Stop requests a best-effort cancellation of a running crawl.
func (c *Client) Stop(ctx context.Context, crawlSessionID string) error {
	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := c.post(ctx, "/stop", map[string]any{"crawl_session_id": crawlSessionID}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("stop rejected: %s", resp.Message)
	}
	return nil
}

// Score submits the discovered pages for AI/rules annotation.
func (c *Client) Score(ctx context.Context, pages []domain.Page, competitor string) ([]domain.Page, error) {
	var resp struct {
		Pages []domain.Page `json:"pages"`
	}
	payload := map[string]any{"pages": pages, "competitor": competitor}
	if err := c.post(ctx, "/score", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Pages, nil
}

type fingerprintResponse struct {
	FingerprintSessionID string               `json:"fingerprint_session_id"`
	TotalProcessed       int                  `json:"total_processed"`
	Fingerprints         []domain.Fingerprint `json:"fingerprints"`
}

// Fingerprint computes content signatures for a crawl session.
func (c *Client) Fingerprint(ctx context.Context, crawlSessionID, competitor string) (ports.FingerprintResult, error) {
	var resp fingerprintResponse
	payload := map[string]any{"crawl_session_id": crawlSessionID, "competitor": competitor}
	if err := c.post(ctx, "/fingerprint", payload, &resp); err != nil {
		return ports.FingerprintResult{}, err
	}
	return ports.FingerprintResult{
		FingerprintSessionID: resp.FingerprintSessionID,
		TotalProcessed:       resp.TotalProcessed,
		Fingerprints:         resp.Fingerprints,
	}, nil
}

type extractionResponse struct {
	ExtractionSessionID string `json:"extraction_session_id"`
	Status              string `json:"status"`
	Stats               struct {
		EntitiesFound map[string]int `json:"entities_found"`
	} `json:"stats"`
	Reason string `json:"reason"`
}

func (r extractionResponse) toStatus() ports.ExtractionStatus {
	return ports.ExtractionStatus{
		ExtractionSessionID: r.ExtractionSessionID,
		Status:              r.Status,
		EntitiesFound:       r.Stats.EntitiesFound,
		Reason:              r.Reason,
	}
}

// Extract starts structured-data extraction for a fingerprint session.
func (c *Client) Extract(ctx context.Context, fingerprintSessionID, competitor, schemaVersion string) (ports.ExtractionStatus, error) {
	var resp extractionResponse
	payload := map[string]any{
		"fingerprint_session_id": fingerprintSessionID,
		"competitor":             competitor,
		"schema_version":         schemaVersion,
	}
	if err := c.post(ctx, "/extract", payload, &resp); err != nil {
		return ports.ExtractionStatus{}, err
	}
	return resp.toStatus(), nil
}

// Status polls the pull-based extraction status endpoint.
func (c *Client) Status(ctx context.Context, extractionSessionID string) (ports.ExtractionStatus, error) {
	var resp extractionResponse
	if err := c.get(ctx, "/extractions/"+extractionSessionID, &resp); err != nil {
		return ports.ExtractionStatus{}, err
	}
	return resp.toStatus(), nil
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, v)
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	return c.do(req, v)
}

func (c *Client) do(req *http.Request, v any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		msg := strings.TrimSpace(string(snippet))
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, msg)
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
