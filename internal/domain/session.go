package domain

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Phase is one discrete stage of the competitor-onboarding pipeline.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseDiscovering       Phase = "discovering"
	PhaseDiscoveryComplete Phase = "discovery_complete"
	PhaseScoring           Phase = "scoring"
	PhaseFingerprinting    Phase = "fingerprinting"
	PhaseExtracting        Phase = "extracting"
	PhaseCompleted         Phase = "completed"
	PhaseError             Phase = "error"
)

// Terminal reports whether no further transitions are allowed from p.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseError
}

// Progress counts pipeline work observed so far. Counters only grow.
type Progress struct {
	PagesDiscovered int
	PagesProcessed  int
	PagesExtracted  int
	PagesSkipped    int
	EntitiesFound   map[string]int
}

// Metrics mirrors the throughput block the extraction service reports.
// Each metrics event overwrites the previous one wholesale.
type Metrics struct {
	PagesPerMinute float64 `json:"pages_per_minute"`
	ETASeconds     float64 `json:"eta_seconds"`
	CacheHits      int     `json:"cache_hits"`
	Retries        int     `json:"retries"`
}

// Steps tracks which pipeline stages have finished for a session.
type Steps struct {
	Discovery      bool
	Scoring        bool
	Fingerprinting bool
	Extraction     bool
}

// Session is the orchestrator-owned record of one pipeline run. All
// mutation goes through its methods; readers take Snapshot copies.
// External session ids are opaque strings issued by the collaborating
// services and held only for the lifetime of the run.
type Session struct {
	mu sync.Mutex

	id                  string
	phase               Phase
	competitorName      string
	crawlSessionID      string
	fingerprintSession  string
	extractionSessionID string
	steps               Steps
	progress            Progress
	metrics             Metrics
	pages               []Page
	skippedURLs         []string
	errReason           string
	watchers            []*watcher
}

// watcher is one live Subscribe registration.
type watcher struct {
	ch     chan SessionView
	closed bool
	done   chan struct{}
}

// NewSession creates a session in the idle phase with a locally issued id.
func NewSession() *Session {
	return &Session{
		id:       uuid.NewString(),
		phase:    PhaseIdle,
		progress: Progress{EntitiesFound: map[string]int{}},
	}
}

// SessionView is an immutable copy of session state for callers.
type SessionView struct {
	ID                  string
	Phase               Phase
	CompetitorName      string
	CrawlSessionID      string
	FingerprintSession  string
	ExtractionSessionID string
	Steps               Steps
	Progress            Progress
	Metrics             Metrics
	Pages               []Page
	SkippedURLs         []string
	Error               string
}

// Snapshot returns a copy of the current state. The returned slices and
// maps are detached from the session.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() SessionView {
	view := SessionView{
		ID:                  s.id,
		Phase:               s.phase,
		CompetitorName:      s.competitorName,
		CrawlSessionID:      s.crawlSessionID,
		FingerprintSession:  s.fingerprintSession,
		ExtractionSessionID: s.extractionSessionID,
		Steps:               s.steps,
		Progress:            s.progress,
		Metrics:             s.metrics,
		Error:               s.errReason,
	}
	view.Progress.EntitiesFound = make(map[string]int, len(s.progress.EntitiesFound))
	for k, v := range s.progress.EntitiesFound {
		view.Progress.EntitiesFound[k] = v
	}
	view.Pages = append([]Page(nil), s.pages...)
	view.SkippedURLs = append([]string(nil), s.skippedURLs...)
	return view
}

// Update runs fn with exclusive access to the session and returns the
// resulting view. fn must not retain references past its return.
// Subscribers are notified after every update; their channels close on
// the terminal transition.
func (s *Session) Update(fn func(*SessionState)) SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&SessionState{s: s})
	view := s.viewLocked()
	s.notifyLocked(view)
	return view
}

// Subscribe returns a channel of state views: the current view first,
// then one per update. The channel closes when the session reaches a
// terminal phase or ctx is cancelled, whichever comes first.
func (s *Session) Subscribe(ctx context.Context) <-chan SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := &watcher{ch: make(chan SessionView, 16), done: make(chan struct{})}
	w.ch <- s.viewLocked()
	if s.phase.Terminal() {
		close(w.ch)
		return w.ch
	}

	s.watchers = append(s.watchers, w)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.closeWatcherLocked(w)
			s.mu.Unlock()
		case <-w.done:
		}
	}()
	return w.ch
}

func (s *Session) notifyLocked(view SessionView) {
	for _, w := range s.watchers {
		if w.closed {
			continue
		}
		select {
		case w.ch <- view:
		default:
			// Slow subscriber; it will catch up on the next update.
		}
	}
	if view.Phase.Terminal() {
		ws := s.watchers
		s.watchers = nil
		for _, w := range ws {
			if !w.closed {
				w.closed = true
				close(w.ch)
				close(w.done)
			}
		}
	}
}

func (s *Session) closeWatcherLocked(w *watcher) {
	if w.closed {
		return
	}
	w.closed = true
	close(w.ch)
	close(w.done)
	for i, cur := range s.watchers {
		if cur == w {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			break
		}
	}
}

// SessionState is the mutable surface handed to Update callbacks. It
// enforces the terminal-state guard: once a session is completed or
// errored, every further transition is a no-op.
type SessionState struct {
	s *Session
}

// Phase returns the current phase.
func (st *SessionState) Phase() Phase { return st.s.phase }

// Steps returns the completed-step flags.
func (st *SessionState) Steps() Steps { return st.s.steps }

// CrawlSessionID returns the externally issued crawl session id, if any.
func (st *SessionState) CrawlSessionID() string { return st.s.crawlSessionID }

// FingerprintSessionID returns the externally issued fingerprint session id.
func (st *SessionState) FingerprintSessionID() string { return st.s.fingerprintSession }

// ExtractionSessionID returns the externally issued extraction session id.
func (st *SessionState) ExtractionSessionID() string { return st.s.extractionSessionID }

// CompetitorName returns the derived competitor display name.
func (st *SessionState) CompetitorName() string { return st.s.competitorName }

// Pages returns the discovered page set for in-place score merging.
func (st *SessionState) Pages() []Page { return st.s.pages }

// SetPhase moves the session to phase p unless it is already terminal.
// Reports whether the transition happened.
func (st *SessionState) SetPhase(p Phase) bool {
	if st.s.phase.Terminal() {
		return false
	}
	st.s.phase = p
	return true
}

// Fail moves the session to the error phase with the given reason.
// A no-op when the session is already terminal.
func (st *SessionState) Fail(reason string) bool {
	if st.s.phase.Terminal() {
		return false
	}
	st.s.phase = PhaseError
	st.s.errReason = reason
	return true
}

// Complete finalizes entity-found counts, marks the extraction step done,
// and moves the session to completed. A no-op when already terminal, so
// whichever of the event stream or the status poller gets here first wins.
func (st *SessionState) Complete(entitiesFound map[string]int) bool {
	if st.s.phase.Terminal() {
		return false
	}
	for k, v := range entitiesFound {
		st.s.progress.EntitiesFound[k] = v
	}
	st.s.steps.Extraction = true
	st.s.phase = PhaseCompleted
	return true
}

// SetCompetitorName records the derived display name.
func (st *SessionState) SetCompetitorName(name string) { st.s.competitorName = name }

// SetCrawlSession records the crawl session id issued by the discover call.
func (st *SessionState) SetCrawlSession(id string) { st.s.crawlSessionID = id }

// SetFingerprintSession records the fingerprint session id.
func (st *SessionState) SetFingerprintSession(id string) { st.s.fingerprintSession = id }

// SetExtractionSession records the extraction session id.
func (st *SessionState) SetExtractionSession(id string) { st.s.extractionSessionID = id }

// SetPages replaces the working page set.
func (st *SessionState) SetPages(pages []Page) {
	st.s.pages = pages
	st.s.progress.PagesDiscovered = len(pages)
}

// SetSkippedURLs records discovery diagnostics.
func (st *SessionState) SetSkippedURLs(urls []string) {
	st.s.skippedURLs = urls
	st.s.progress.PagesSkipped = len(urls)
}

// MarkStep flags a pipeline step as completed.
func (st *SessionState) MarkStep(step Phase) {
	switch step {
	case PhaseDiscovering:
		st.s.steps.Discovery = true
	case PhaseScoring:
		st.s.steps.Scoring = true
	case PhaseFingerprinting:
		st.s.steps.Fingerprinting = true
	case PhaseExtracting:
		st.s.steps.Extraction = true
	}
}

// SetPagesProcessed records the fingerprint service's processed count.
func (st *SessionState) SetPagesProcessed(n int) { st.s.progress.PagesProcessed = n }

// IncrementExtracted bumps the monotonic extracted-page counter.
func (st *SessionState) IncrementExtracted() {
	if st.s.phase.Terminal() {
		return
	}
	st.s.progress.PagesExtracted++
}

// SetMetrics overwrites the metrics projection, last write wins.
func (st *SessionState) SetMetrics(m Metrics) {
	if st.s.phase.Terminal() {
		return
	}
	st.s.metrics = m
}
