package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

// Reconciler merges two independent notification channels for one
// extraction session: the push event stream and a pull status poll. Both
// feed the same guarded transition functions on the session, so whichever
// observes a terminal status first wins and the loser becomes a no-op.
type Reconciler struct {
	stream    ports.ProgressStream
	extractor ports.ExtractService
	interval  time.Duration
	staleness time.Duration
	logger    *slog.Logger
}

// NewReconciler wires the stream and the polling fallback. The interval
// bounds progress staleness when push delivery fails; the staleness
// window bounds how long a session may sit without any terminal signal
// before it is declared failed.
func NewReconciler(stream ports.ProgressStream, extractor ports.ExtractService, interval, staleness time.Duration, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if staleness <= 0 {
		staleness = defaultStalenessWindow
	}
	return &Reconciler{
		stream:    stream,
		extractor: extractor,
		interval:  interval,
		staleness: staleness,
		logger:    logger,
	}
}

// Watch subscribes to the session's event stream and starts the polling
// loop. It returns a cancel function that tears both down; cancellation
// is also automatic once the session reaches a terminal phase.
func (r *Reconciler) Watch(ctx context.Context, session *domain.Session) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	extractionID := session.Snapshot().ExtractionSessionID

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.consumeStream(ctx, session, extractionID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.poll(ctx, session, extractionID)
	}()

	go func() {
		wg.Wait()
		stop()
	}()

	return stop
}

// consumeStream drains push events until the channel closes or the
// session turns terminal. A transport error simply ends the stream; the
// polling loop is the recovery path, there is no reconnect.
func (r *Reconciler) consumeStream(ctx context.Context, session *domain.Session, extractionID string) {
	events, err := r.stream.Subscribe(ctx, extractionID)
	if err != nil {
		r.debug("stream subscribe failed, polling only", "extraction_session", extractionID, "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if terminal := r.apply(session, event); terminal {
				return
			}
		}
	}
}

// apply projects one event onto the session. Returns true once the
// session is terminal so the stream can close. A late event delivered
// after the poller already finished the session must not reopen it;
// every mutation below is guarded by the session's terminal check.
func (r *Reconciler) apply(session *domain.Session, event domain.ProgressEvent) bool {
	terminal := false
	session.Update(func(st *domain.SessionState) {
		switch event.Type {
		case domain.EventPageExtracted:
			st.IncrementExtracted()
		case domain.EventMetrics:
			var m domain.Metrics
			if err := json.Unmarshal(event.Payload, &m); err == nil {
				st.SetMetrics(m)
			}
		case domain.EventSessionCompleted, domain.EventSessionFinished:
			var payload domain.CompletionPayload
			_ = json.Unmarshal(event.Payload, &payload)
			st.Complete(payload.EntitiesFound)
			terminal = true
		case domain.EventError:
			var payload domain.ErrorPayload
			if err := json.Unmarshal(event.Payload, &payload); err != nil || payload.Message == "" {
				payload.Message = "extraction stream reported an error"
			}
			st.Fail(payload.Message)
			terminal = true
		case domain.EventSessionStarted, domain.EventPageQueued,
			domain.EventPageStarted, domain.EventPageMerged, domain.EventPageFailed:
			// Observed for liveness only; no counters in the projection.
		}
	})
	return terminal || session.Snapshot().Phase.Terminal()
}

// poll checks the pull status endpoint on a fixed interval, idempotently
// applying any terminal status it sees. A session that produces no
// terminal signal inside the staleness window is declared failed.
func (r *Reconciler) poll(ctx context.Context, session *domain.Session, extractionID string) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	deadline := time.Now().Add(r.staleness)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if session.Snapshot().Phase.Terminal() {
				return
			}

			status, err := r.extractor.Status(ctx, extractionID)
			if err != nil {
				r.debug("status poll failed", "extraction_session", extractionID, "error", err)
			} else if r.applyStatus(session, status) {
				return
			}

			if time.Now().After(deadline) {
				session.Update(func(st *domain.SessionState) {
					st.Fail("extraction stalled: no terminal status within staleness window")
				})
				return
			}
		}
	}
}

// applyStatus maps a polled status onto the same transition functions
// the stream uses. Returns true when the status is terminal.
func (r *Reconciler) applyStatus(session *domain.Session, status ports.ExtractionStatus) bool {
	switch status.Status {
	case "completed", "degraded":
		session.Update(func(st *domain.SessionState) {
			st.Complete(status.EntitiesFound)
		})
		return true
	case "failed":
		reason := status.Reason
		if reason == "" {
			reason = "extraction failed"
		}
		session.Update(func(st *domain.SessionState) {
			st.Fail(reason)
		})
		return true
	}
	return false
}

func (r *Reconciler) debug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
