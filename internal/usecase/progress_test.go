package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

type scriptedStream struct {
	events []domain.ProgressEvent
	err    error
}

func (s *scriptedStream) Subscribe(ctx context.Context, extractionSessionID string) (<-chan domain.ProgressEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan domain.ProgressEvent, len(s.events))
	for _, event := range s.events {
		ch <- event
	}
	close(ch)
	return ch, nil
}

type pollingExtractor struct {
	status ports.ExtractionStatus
	err    error
}

func (p *pollingExtractor) Extract(ctx context.Context, fingerprintSessionID, competitor, schemaVersion string) (ports.ExtractionStatus, error) {
	return ports.ExtractionStatus{}, nil
}

func (p *pollingExtractor) Status(ctx context.Context, extractionSessionID string) (ports.ExtractionStatus, error) {
	return p.status, p.err
}

func extractingSession() *domain.Session {
	session := domain.NewSession()
	session.Update(func(st *domain.SessionState) {
		st.SetPhase(domain.PhaseExtracting)
		st.SetExtractionSession("ex-1")
	})
	return session
}

func event(t domain.EventType, payload any) domain.ProgressEvent {
	raw, _ := json.Marshal(payload)
	return domain.ProgressEvent{Type: t, Payload: raw}
}

func TestStreamDrivesSessionToCompletion(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{events: []domain.ProgressEvent{
		event(domain.EventSessionStarted, map[string]string{"session": "ex-1"}),
		event(domain.EventPageExtracted, map[string]string{"url": "https://acme.io/a"}),
		event(domain.EventPageExtracted, map[string]string{"url": "https://acme.io/b"}),
		event(domain.EventMetrics, domain.Metrics{PagesPerMinute: 12, Retries: 1}),
		event(domain.EventMetrics, domain.Metrics{PagesPerMinute: 20, Retries: 3}),
		event(domain.EventSessionCompleted, domain.CompletionPayload{EntitiesFound: map[string]int{"companies": 1}}),
	}}
	// Poller keeps reporting running; only the stream finishes this one.
	reconciler := NewReconciler(stream, &pollingExtractor{status: ports.ExtractionStatus{Status: "running"}}, time.Hour, time.Hour, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseCompleted)
	view := session.Snapshot()
	if view.Progress.PagesExtracted != 2 {
		t.Fatalf("expected 2 extracted pages, got %d", view.Progress.PagesExtracted)
	}
	if view.Metrics.PagesPerMinute != 20 || view.Metrics.Retries != 3 {
		t.Fatalf("metrics must be last-write-wins: %+v", view.Metrics)
	}
	if view.Progress.EntitiesFound["companies"] != 1 {
		t.Fatalf("entity counts not finalized: %+v", view.Progress.EntitiesFound)
	}
}

func TestLateStreamEventAfterPollCompletionIsNoOp(t *testing.T) {
	t.Parallel()

	session := extractingSession()

	// Poller wins first.
	extractor := &pollingExtractor{status: ports.ExtractionStatus{
		Status:        "completed",
		EntitiesFound: map[string]int{"products": 5},
	}}
	reconciler := NewReconciler(&scriptedStream{}, extractor, 5*time.Millisecond, time.Hour, nil)
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()
	waitForPhase(t, session, domain.PhaseCompleted)

	before := session.Snapshot()

	// A late terminal event must not reopen the session or change stats.
	late := event(domain.EventSessionCompleted, domain.CompletionPayload{EntitiesFound: map[string]int{"products": 99}})
	reconciler.apply(session, late)
	reconciler.apply(session, event(domain.EventPageExtracted, nil))
	reconciler.apply(session, event(domain.EventMetrics, domain.Metrics{PagesPerMinute: 999}))

	after := session.Snapshot()
	if after.Phase != domain.PhaseCompleted {
		t.Fatalf("session reopened: %s", after.Phase)
	}
	if after.Progress.EntitiesFound["products"] != before.Progress.EntitiesFound["products"] {
		t.Fatalf("final stats changed: %+v", after.Progress.EntitiesFound)
	}
	if after.Progress.PagesExtracted != before.Progress.PagesExtracted {
		t.Fatal("extracted counter moved after terminal state")
	}
	if after.Metrics != before.Metrics {
		t.Fatalf("metrics changed after terminal state: %+v", after.Metrics)
	}
}

func TestErrorEventFailsSession(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{events: []domain.ProgressEvent{
		event(domain.EventError, domain.ErrorPayload{Message: "extractor crashed"}),
	}}
	reconciler := NewReconciler(stream, &pollingExtractor{status: ports.ExtractionStatus{Status: "running"}}, time.Hour, time.Hour, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseError)
	if view := session.Snapshot(); view.Error != "extractor crashed" {
		t.Fatalf("unexpected reason: %q", view.Error)
	}
}

func TestPollingRecoversFromStreamFailure(t *testing.T) {
	t.Parallel()

	stream := &scriptedStream{err: errors.New("connection refused")}
	extractor := &pollingExtractor{status: ports.ExtractionStatus{
		Status:        "completed",
		EntitiesFound: map[string]int{"signals": 3},
	}}
	reconciler := NewReconciler(stream, extractor, 5*time.Millisecond, time.Hour, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseCompleted)
	if view := session.Snapshot(); view.Progress.EntitiesFound["signals"] != 3 {
		t.Fatalf("poll completion not applied: %+v", view.Progress.EntitiesFound)
	}
}

func TestDegradedStatusCompletesSession(t *testing.T) {
	t.Parallel()

	extractor := &pollingExtractor{status: ports.ExtractionStatus{Status: "degraded"}}
	reconciler := NewReconciler(&scriptedStream{}, extractor, 5*time.Millisecond, time.Hour, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseCompleted)
}

func TestFailedStatusFailsSession(t *testing.T) {
	t.Parallel()

	extractor := &pollingExtractor{status: ports.ExtractionStatus{Status: "failed", Reason: "schema mismatch"}}
	reconciler := NewReconciler(&scriptedStream{}, extractor, 5*time.Millisecond, time.Hour, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseError)
	if view := session.Snapshot(); view.Error != "schema mismatch" {
		t.Fatalf("unexpected reason: %q", view.Error)
	}
}

func TestStalenessWindowFailsStalledSession(t *testing.T) {
	t.Parallel()

	extractor := &pollingExtractor{status: ports.ExtractionStatus{Status: "running"}}
	reconciler := NewReconciler(&scriptedStream{}, extractor, 5*time.Millisecond, 30*time.Millisecond, nil)

	session := extractingSession()
	cancel := reconciler.Watch(context.Background(), session)
	defer cancel()

	waitForPhase(t, session, domain.PhaseError)
}
