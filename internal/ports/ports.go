package ports

import (
	"context"

	"CompetitorScanner/internal/domain"
)

// DiscoverResult is the discover call's response at this layer's boundary.
type DiscoverResult struct {
	CrawlSessionID string
	Pages          []domain.Page
	SkippedURLs    []string
	SitemapURLs    []string
}

// FingerprintResult is the fingerprint call's response.
type FingerprintResult struct {
	FingerprintSessionID string
	TotalProcessed       int
	Fingerprints         []domain.Fingerprint
}

// ExtractionStatus is the shape shared by extract and extraction_status.
type ExtractionStatus struct {
	ExtractionSessionID string
	Status              string // running | completed | failed | degraded
	EntitiesFound       map[string]int
	Reason              string
}

// CrawlService drives the external discovery crawler.
type CrawlService interface {
	Discover(ctx context.Context, url string) (DiscoverResult, error)
	Stop(ctx context.Context, crawlSessionID string) error
}

// ScoreService annotates discovered pages with scores and categories.
type ScoreService interface {
	Score(ctx context.Context, pages []domain.Page, competitor string) ([]domain.Page, error)
}

// FingerprintService computes content signatures for a crawl session.
type FingerprintService interface {
	Fingerprint(ctx context.Context, crawlSessionID, competitor string) (FingerprintResult, error)
}

// ExtractService starts structured-data extraction and reports its status.
type ExtractService interface {
	Extract(ctx context.Context, fingerprintSessionID, competitor, schemaVersion string) (ExtractionStatus, error)
	Status(ctx context.Context, extractionSessionID string) (ExtractionStatus, error)
}

// ProgressStream opens a push channel of extraction progress events.
// The returned channel closes when the stream ends for any reason; the
// consumer never reconnects and relies on polling instead.
type ProgressStream interface {
	Subscribe(ctx context.Context, extractionSessionID string) (<-chan domain.ProgressEvent, error)
}

// EntityRepository is the read side over persisted business entities.
type EntityRepository interface {
	ListCompanies(ctx context.Context) ([]domain.Company, error)
	SearchSnapshot(ctx context.Context) (domain.Snapshot, error)
	UpsertCompany(ctx context.Context, company domain.Company) error
}

// ReachabilityChecker probes a normalized origin before the pipeline starts.
// The returned title is a display-name hint and may be empty.
type ReachabilityChecker interface {
	Check(ctx context.Context, origin string) (title string, err error)
}
