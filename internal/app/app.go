package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq"

	"CompetitorScanner/internal/config"
	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/infrastructure/intake"
	"CompetitorScanner/internal/infrastructure/probe"
	"CompetitorScanner/internal/infrastructure/storage"
	"CompetitorScanner/internal/infrastructure/stream"
	"CompetitorScanner/internal/logging"
	"CompetitorScanner/internal/ports"
	"CompetitorScanner/internal/search"
	"CompetitorScanner/internal/urlx"
	"CompetitorScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *sql.DB
	repository   ports.EntityRepository
	orchestrator *usecase.Orchestrator
	engine       *search.Engine
}

// New builds a runnable application instance.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	repository := storage.NewPostgresRepository(db)
	client := intake.NewClient(cfg.Services.BaseURL, cfg.Services.APIKey, cfg.Services.RequestsPerSecond)
	events := stream.NewSource(cfg.Services.StreamBase(), cfg.Services.APIKey,
		baseLogger.With("component", "stream"))

	orchestrator := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Crawler:           client,
		Scorer:            client,
		Fingerprinter:     client,
		Extractor:         client,
		Stream:            events,
		Repository:        repository,
		Probe:             probe.NewChecker(nil),
		Logger:            baseLogger.With("component", "orchestrator"),
		SchemaVersion:     cfg.Pipeline.SchemaVersion,
		PollInterval:      cfg.Pipeline.PollInterval.Std(),
		StalenessWindow:   cfg.Pipeline.StalenessWindow.Std(),
		PreferRulesScores: cfg.Pipeline.PreferRulesScores,
	})

	engine := search.New(repository, cfg.Search.ResultLimit,
		baseLogger.With("component", "search"))

	return &Application{
		cfg:          cfg,
		logger:       baseLogger,
		db:           db,
		repository:   repository,
		orchestrator: orchestrator,
		engine:       engine,
	}, nil
}

// Close releases held resources.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Analyze runs the full pipeline for one competitor URL: validation,
// dedup, discovery, scoring, fingerprinting, extraction, then records
// the resulting company. It blocks until the session is terminal.
func (a *Application) Analyze(ctx context.Context, rawURL string) (domain.SessionView, error) {
	session, err := a.orchestrator.Start(ctx, rawURL)
	if err != nil {
		if session != nil {
			return session.Snapshot(), err
		}
		return domain.SessionView{}, err
	}

	if err := a.orchestrator.AdvanceToScoring(ctx, session); err != nil {
		return session.Snapshot(), err
	}
	if err := a.orchestrator.AdvanceToFingerprinting(ctx, session); err != nil {
		return session.Snapshot(), err
	}

	cancel, err := a.orchestrator.AdvanceToExtraction(ctx, session)
	if err != nil {
		return session.Snapshot(), err
	}
	defer cancel()

	view := a.waitForTerminal(ctx, session)
	if view.Phase == domain.PhaseCompleted {
		if err := a.recordCompany(ctx, rawURL, view); err != nil {
			a.logger.Warn("record company failed", "error", err)
		}
	}
	return view, nil
}

// Search resolves a free-text query against the entity collections.
func (a *Application) Search(ctx context.Context, query string) (domain.SearchResults, error) {
	return a.engine.Search(ctx, query)
}

// Companies lists the known company snapshot.
func (a *Application) Companies(ctx context.Context) ([]domain.Company, error) {
	return a.repository.ListCompanies(ctx)
}

func (a *Application) waitForTerminal(ctx context.Context, session *domain.Session) domain.SessionView {
	progress := session.Subscribe(ctx)
	for view := range progress {
		if view.Phase.Terminal() {
			return view
		}
	}
	return session.Snapshot()
}

func (a *Application) recordCompany(ctx context.Context, rawURL string, view domain.SessionView) error {
	website := rawURL
	if normalized := urlx.Normalize(rawURL); normalized.OK {
		website = normalized.NormalizedOrigin
	}
	return a.repository.UpsertCompany(ctx, domain.Company{
		ID:      view.ID,
		Name:    view.CompetitorName,
		Website: website,
	})
}
