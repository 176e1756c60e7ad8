package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CompetitorScanner/internal/dedup"
	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
	"CompetitorScanner/internal/urlx"
)

// ValidationError reports the single rule a URL failed. Returned as a
// structured value so callers can render precise guidance.
type ValidationError struct {
	Reason urlx.Reason
	Input  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid url %q: %s", e.Input, e.Reason)
}

// DuplicateError is the terminal short-circuit when the URL resolves to
// a known company. Not a failure: it requires explicit user action.
type DuplicateError struct {
	CompanyID   string
	CompanyName string
	MatchType   dedup.MatchType
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("already tracked as %q (%s match)", e.CompanyName, e.MatchType)
}

// ReachabilityError reports a failed pre-flight probe; no phase starts.
type ReachabilityError struct {
	Origin string
	Err    error
}

func (e *ReachabilityError) Error() string {
	return fmt.Sprintf("origin %s unreachable: %v", e.Origin, e.Err)
}

func (e *ReachabilityError) Unwrap() error { return e.Err }

// OrchestratorDeps wires the external collaborators into the state machine.
type OrchestratorDeps struct {
	Crawler       ports.CrawlService
	Scorer        ports.ScoreService
	Fingerprinter ports.FingerprintService
	Extractor     ports.ExtractService
	Stream        ports.ProgressStream
	Repository    ports.EntityRepository
	Probe         ports.ReachabilityChecker
	Logger        *slog.Logger

	// SchemaVersion tags extraction requests; PollInterval and
	// StalenessWindow tune the polling fallback.
	SchemaVersion   string
	PollInterval    time.Duration
	StalenessWindow time.Duration

	// PreferRulesScores keeps the rules-based score even when the scorer
	// returned an AI score for a page. Product policy, off by default.
	PreferRulesScores bool
}

// Orchestrator sequences the four pipeline phases for independent
// sessions. It owns no durable state: all session ids are issued by the
// external services and held only in memory for one run.
type Orchestrator struct {
	crawler       ports.CrawlService
	scorer        ports.ScoreService
	fingerprinter ports.FingerprintService
	extractor     ports.ExtractService
	stream        ports.ProgressStream
	repository    ports.EntityRepository
	probe         ports.ReachabilityChecker
	logger        *slog.Logger

	schemaVersion     string
	pollInterval      time.Duration
	stalenessWindow   time.Duration
	preferRulesScores bool
}

const (
	defaultSchemaVersion   = "v1"
	defaultPollInterval    = 3 * time.Second
	defaultStalenessWindow = 10 * time.Minute
)

// NewOrchestrator constructs the pipeline state machine.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.SchemaVersion == "" {
		deps.SchemaVersion = defaultSchemaVersion
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = defaultPollInterval
	}
	if deps.StalenessWindow <= 0 {
		deps.StalenessWindow = defaultStalenessWindow
	}
	return &Orchestrator{
		crawler:           deps.Crawler,
		scorer:            deps.Scorer,
		fingerprinter:     deps.Fingerprinter,
		extractor:         deps.Extractor,
		stream:            deps.Stream,
		repository:        deps.Repository,
		probe:             deps.Probe,
		logger:            deps.Logger,
		schemaVersion:     deps.SchemaVersion,
		pollInterval:      deps.PollInterval,
		stalenessWindow:   deps.StalenessWindow,
		preferRulesScores: deps.PreferRulesScores,
	}
}

// Start validates and dedup-checks the raw URL, probes reachability,
// then runs the discovery phase. On success the returned session is in
// discovery_complete; on a phase failure it is in error with the
// upstream reason passed through verbatim.
func (o *Orchestrator) Start(ctx context.Context, rawURL string) (*domain.Session, error) {
	normalized := urlx.Normalize(rawURL)
	if !normalized.OK {
		return nil, &ValidationError{Reason: normalized.Reason, Input: rawURL}
	}

	if o.probe != nil {
		if _, err := o.probe.Check(ctx, normalized.NormalizedOrigin); err != nil {
			return nil, &ReachabilityError{Origin: normalized.NormalizedOrigin, Err: err}
		}
	}

	name := CompetitorNameFromETLD1(normalized.ETLD1)

	// Snapshot is refreshed per check, never cached across sessions.
	existing, err := o.repository.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("load company snapshot: %w", err)
	}
	if match := dedup.Check(normalized.ETLD1, name, existing); match.IsDuplicate {
		return nil, &DuplicateError{
			CompanyID:   match.ExistingCompanyID,
			CompanyName: match.ExistingCompanyName,
			MatchType:   match.MatchType,
		}
	}

	session := domain.NewSession()
	session.Update(func(st *domain.SessionState) {
		st.SetCompetitorName(name)
		st.SetPhase(domain.PhaseDiscovering)
	})
	o.log("discovery started", "session", session.Snapshot().ID, "origin", normalized.NormalizedOrigin)

	result, err := o.crawler.Discover(ctx, normalized.NormalizedOrigin)
	if err != nil {
		session.Update(func(st *domain.SessionState) {
			st.Fail(err.Error())
		})
		return session, fmt.Errorf("discovery: %w", err)
	}

	session.Update(func(st *domain.SessionState) {
		st.SetCrawlSession(result.CrawlSessionID)
		st.SetPages(result.Pages)
		st.SetSkippedURLs(result.SkippedURLs)
		st.MarkStep(domain.PhaseDiscovering)
		st.SetPhase(domain.PhaseDiscoveryComplete)
	})
	o.log("discovery complete", "session", session.Snapshot().ID,
		"pages", len(result.Pages), "skipped", len(result.SkippedURLs))
	return session, nil
}

// AdvanceToScoring sends the discovered page set to the external scorer
// and merges its annotations in. Pages the scorer could not handle keep
// their rules-based score; a per-page AI failure never blocks the
// session. Valid only from discovery_complete; otherwise a no-op.
func (o *Orchestrator) AdvanceToScoring(ctx context.Context, session *domain.Session) error {
	view := session.Snapshot()
	if view.Phase != domain.PhaseDiscoveryComplete {
		return nil
	}

	scored, err := o.scorer.Score(ctx, view.Pages, view.CompetitorName)
	if err != nil {
		session.Update(func(st *domain.SessionState) {
			st.Fail(err.Error())
		})
		return fmt.Errorf("scoring: %w", err)
	}

	session.Update(func(st *domain.SessionState) {
		if st.Phase() != domain.PhaseDiscoveryComplete {
			return
		}
		st.SetPages(mergeScores(st.Pages(), scored, o.preferRulesScores))
		st.MarkStep(domain.PhaseScoring)
		st.SetPhase(domain.PhaseScoring)
	})
	o.log("scoring complete", "session", view.ID, "pages", len(scored))
	return nil
}

// AdvanceToFingerprinting runs the fingerprint phase. Valid only once,
// from the scoring phase with a crawl session id; otherwise a no-op.
func (o *Orchestrator) AdvanceToFingerprinting(ctx context.Context, session *domain.Session) error {
	view := session.Snapshot()
	if view.Phase != domain.PhaseScoring || view.CrawlSessionID == "" || view.FingerprintSession != "" {
		return nil
	}

	session.Update(func(st *domain.SessionState) {
		st.SetPhase(domain.PhaseFingerprinting)
	})

	result, err := o.fingerprinter.Fingerprint(ctx, view.CrawlSessionID, view.CompetitorName)
	if err != nil {
		session.Update(func(st *domain.SessionState) {
			st.Fail(err.Error())
		})
		return fmt.Errorf("fingerprinting: %w", err)
	}

	session.Update(func(st *domain.SessionState) {
		st.SetFingerprintSession(result.FingerprintSessionID)
		st.SetPagesProcessed(result.TotalProcessed)
		st.MarkStep(domain.PhaseFingerprinting)
		st.SetPhase(domain.PhaseExtracting)
	})
	o.log("fingerprinting complete", "session", view.ID, "processed", result.TotalProcessed)
	return nil
}

// AdvanceToExtraction issues the extraction request with the configured
// schema version and hands the session to the progress reconciler. The
// returned cancel function tears down the stream subscription and the
// polling loop. Requires a fingerprint session id; otherwise a no-op.
func (o *Orchestrator) AdvanceToExtraction(ctx context.Context, session *domain.Session) (cancel func(), err error) {
	view := session.Snapshot()
	if view.Phase != domain.PhaseExtracting || view.FingerprintSession == "" || view.ExtractionSessionID != "" {
		return func() {}, nil
	}

	status, err := o.extractor.Extract(ctx, view.FingerprintSession, view.CompetitorName, o.schemaVersion)
	if err != nil {
		session.Update(func(st *domain.SessionState) {
			st.Fail(err.Error())
		})
		return func() {}, fmt.Errorf("extraction: %w", err)
	}

	session.Update(func(st *domain.SessionState) {
		st.SetExtractionSession(status.ExtractionSessionID)
	})
	o.log("extraction started", "session", view.ID, "extraction_session", status.ExtractionSessionID)

	reconciler := NewReconciler(o.stream, o.extractor, o.pollInterval, o.stalenessWindow, o.logger)
	return reconciler.Watch(ctx, session), nil
}

// Stop issues a best-effort cancellation keyed by whichever external
// session id is active, then forces the local session into error with a
// user-cancellation reason. It never blocks on downstream confirmation.
func (o *Orchestrator) Stop(ctx context.Context, session *domain.Session) {
	view := session.Snapshot()
	switch view.Phase {
	case domain.PhaseDiscovering, domain.PhaseFingerprinting, domain.PhaseExtracting:
	default:
		return
	}

	if view.CrawlSessionID != "" {
		if err := o.crawler.Stop(ctx, view.CrawlSessionID); err != nil {
			o.log("stop request failed", "session", view.ID, "error", err)
		}
	}

	session.Update(func(st *domain.SessionState) {
		st.Fail("cancelled by user")
	})
}

// CompetitorNameFromETLD1 derives a display name from the registrable
// domain: strip www., take the label before the first dot, turn -/_ into
// spaces, and title-case each word. Blank input maps to "Unknown".
func CompetitorNameFromETLD1(etld1 string) string {
	host := strings.TrimPrefix(strings.TrimSpace(strings.ToLower(etld1)), "www.")
	label, _, _ := strings.Cut(host, ".")
	label = strings.ReplaceAll(label, "-", " ")
	label = strings.ReplaceAll(label, "_", " ")
	words := strings.Fields(label)
	if len(words) == 0 {
		return "Unknown"
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// mergeScores overlays scorer output onto the discovered page set by
// URL. Every page the scorer returned replaces its discovery-time
// counterpart, whether the scorer tagged it ai or rules; preferRules
// only demotes AI results back to the discovery-time fallback. Pages
// absent from the scorer response keep the fallback.
func mergeScores(pages, scored []domain.Page, preferRules bool) []domain.Page {
	byURL := make(map[string]domain.Page, len(scored))
	for _, p := range scored {
		byURL[p.URL] = p
	}
	merged := make([]domain.Page, len(pages))
	for i, p := range pages {
		s, ok := byURL[p.URL]
		if !ok || (s.ScoringMethod == domain.ScoredByAI && preferRules) {
			p.ScoringMethod = domain.ScoredByRules
			merged[i] = p
			continue
		}
		merged[i] = s
	}
	return merged
}

func (o *Orchestrator) log(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}
