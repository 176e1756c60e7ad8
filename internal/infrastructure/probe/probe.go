// Package probe performs the pre-flight reachability check on a
// normalized origin before any pipeline phase starts.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"CompetitorScanner/internal/ports"
)

// Checker fetches the origin's landing page. Besides confirming the
// site answers, it sniffs the page title as a display-name hint.
type Checker struct {
	client *http.Client
}

var _ ports.ReachabilityChecker = (*Checker)(nil)

// NewChecker wires an HTTP client; a nil client gets a 10s timeout default.
func NewChecker(client *http.Client) *Checker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Checker{client: client}
}

// Check fetches the origin and returns the trimmed page title, which
// may be empty. Any transport failure or non-2xx status is an error.
func (c *Checker) Check(ctx context.Context, origin string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "CompetitorScanner/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request origin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("origin returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		// Reachable but unparsable is still reachable.
		return "", nil
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	return title, nil
}
