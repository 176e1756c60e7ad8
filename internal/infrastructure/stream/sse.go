// Package stream consumes the extraction service's server-sent event
// feed and adapts it to the ProgressStream port.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

// Source opens one event-stream connection per extraction session.
type Source struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

var _ ports.ProgressStream = (*Source)(nil)

// responseHeaderTimeout guards the initial connect while leaving the
// stream body itself unbounded.
const responseHeaderTimeout = 15 * time.Second

// NewSource wires the stream endpoint. The HTTP client carries no
// overall timeout since the connection is long-lived; lifetime is
// bounded by the subscription context instead.
func NewSource(endpoint, apiKey string, logger *slog.Logger) *Source {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = responseHeaderTimeout
	return &Source{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Transport: transport},
		logger:   logger,
	}
}

// Subscribe opens the persistent connection and emits decoded events on
// the returned channel. The channel closes when the stream ends: after a
// terminal event, on transport error, or when ctx is cancelled. No
// reconnection is attempted; the polling fallback covers gaps.
func (s *Source) Subscribe(ctx context.Context, extractionSessionID string) (<-chan domain.ProgressEvent, error) {
	url := fmt.Sprintf("%s/extractions/%s/events", s.endpoint, extractionSessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned %s", resp.Status)
	}

	events := make(chan domain.ProgressEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var name string
		var data strings.Builder
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if name != "" || data.Len() > 0 {
					event := domain.ProgressEvent{
						Type:    domain.EventType(name),
						Payload: json.RawMessage(data.String()),
					}
					select {
					case events <- event:
					case <-ctx.Done():
						return
					}
					if isTerminal(event.Type) {
						return
					}
				}
				name = ""
				data.Reset()
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				if data.Len() > 0 {
					data.WriteByte('\n')
				}
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			case strings.HasPrefix(line, ":"):
				// Heartbeat comment, ignored.
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			s.debug("event stream closed", "extraction_session", extractionSessionID, "error", err)
		}
	}()

	return events, nil
}

func isTerminal(t domain.EventType) bool {
	switch t {
	case domain.EventSessionCompleted, domain.EventSessionFinished, domain.EventError:
		return true
	}
	return false
}

func (s *Source) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
