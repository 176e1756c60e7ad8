// Package search ranks companies, products, signals, and releases
// against a free-text query with typed-prefix operators.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

// Score ladder: first rung that matches wins, never cumulative.
const (
	scoreExact     = 100
	scorePrefix    = 80
	scoreContains  = 60
	scoreSecondary = 40
)

// DefaultResultLimit caps each bucket when no limit is configured.
const DefaultResultLimit = 5

// Engine resolves queries against a fresh repository snapshot per call.
type Engine struct {
	repo   ports.EntityRepository
	limit  int
	logger *slog.Logger
}

// New builds an engine with the given per-bucket result cap.
func New(repo ports.EntityRepository, limit int, logger *slog.Logger) *Engine {
	if limit <= 0 {
		limit = DefaultResultLimit
	}
	return &Engine{repo: repo, limit: limit, logger: logger}
}

// Search runs the query over all four buckets, or over exactly one when
// a company:/product:/signal:/release: operator scopes it. An empty
// query returns empty buckets.
func (e *Engine) Search(ctx context.Context, query string) (domain.SearchResults, error) {
	term := strings.ToLower(strings.TrimSpace(query))
	scope, term := splitOperator(term)
	if term == "" {
		return domain.SearchResults{}, nil
	}

	snapshot, err := e.repo.SearchSnapshot(ctx)
	if err != nil {
		return domain.SearchResults{}, fmt.Errorf("load search snapshot: %w", err)
	}

	companyNames := make(map[string]string, len(snapshot.Companies))
	for _, c := range snapshot.Companies {
		companyNames[c.ID] = c.Name
	}
	productNames := make(map[string]string, len(snapshot.Products))
	for _, p := range snapshot.Products {
		productNames[p.ID] = p.Name
	}

	var results domain.SearchResults
	g, _ := errgroup.WithContext(ctx)

	if scope == "" || scope == string(domain.EntityCompany) {
		g.Go(func() error {
			results.Companies = e.searchCompanies(snapshot.Companies, term)
			return nil
		})
	}
	if scope == "" || scope == string(domain.EntityProduct) {
		g.Go(func() error {
			results.Products = e.searchProducts(snapshot.Products, companyNames, term)
			return nil
		})
	}
	if scope == "" || scope == string(domain.EntitySignal) {
		g.Go(func() error {
			results.Signals = e.searchSignals(snapshot.Signals, companyNames, term)
			return nil
		})
	}
	if scope == "" || scope == string(domain.EntityRelease) {
		g.Go(func() error {
			results.Releases = e.searchReleases(snapshot.Releases, productNames, term)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return domain.SearchResults{}, err
	}

	if e.logger != nil {
		e.logger.Debug("search done", "term", term, "scope", scope,
			"companies", len(results.Companies), "products", len(results.Products),
			"signals", len(results.Signals), "releases", len(results.Releases))
	}
	return results, nil
}

// splitOperator peels a typed-prefix operator off the query, if present.
func splitOperator(query string) (scope, term string) {
	for _, op := range []string{"company", "product", "signal", "release"} {
		if rest, ok := strings.CutPrefix(query, op+":"); ok {
			return op, strings.TrimSpace(rest)
		}
	}
	return "", query
}

// scoreEntity applies the ladder to a primary field and its secondaries.
// A zero return means the entity is excluded, not "score zero".
func scoreEntity(primary string, secondaries []string, term string) int {
	name := strings.ToLower(primary)
	switch {
	case name == term:
		return scoreExact
	case strings.HasPrefix(name, term):
		return scorePrefix
	case strings.Contains(name, term):
		return scoreContains
	}
	for _, field := range secondaries {
		if strings.Contains(strings.ToLower(field), term) {
			return scoreSecondary
		}
	}
	return 0
}

func (e *Engine) searchCompanies(companies []domain.Company, term string) []domain.SearchResult {
	var hits []domain.SearchResult
	for _, c := range companies {
		secondaries := append(append([]string(nil), c.Aliases...), c.Tags...)
		secondaries = append(secondaries, c.Description)
		score := scoreEntity(c.Name, secondaries, term)
		if score == 0 {
			continue
		}
		hits = append(hits, domain.SearchResult{
			ID:          c.ID,
			Type:        domain.EntityCompany,
			Title:       c.Name,
			Subtitle:    c.Website,
			Description: c.Description,
			Score:       score,
		})
	}
	return truncate(rank(hits), e.limit)
}

func (e *Engine) searchProducts(products []domain.Product, companyNames map[string]string, term string) []domain.SearchResult {
	var hits []domain.SearchResult
	for _, p := range products {
		secondaries := append(append([]string(nil), p.Aliases...), p.Tags...)
		secondaries = append(secondaries, p.Description)
		score := scoreEntity(p.Name, secondaries, term)
		if score == 0 {
			continue
		}
		hits = append(hits, domain.SearchResult{
			ID:          p.ID,
			Type:        domain.EntityProduct,
			Title:       p.Name,
			Subtitle:    lookupLabel(companyNames, p.CompanyID, "Company"),
			Description: p.Description,
			Score:       score,
		})
	}
	return truncate(rank(hits), e.limit)
}

func (e *Engine) searchSignals(signals []domain.Signal, companyNames map[string]string, term string) []domain.SearchResult {
	var hits []domain.SearchResult
	for _, s := range signals {
		secondaries := append(append([]string(nil), s.Tags...), s.Summary)
		score := scoreEntity(s.Headline, secondaries, term)
		if score == 0 {
			continue
		}
		date := s.Date
		hits = append(hits, domain.SearchResult{
			ID:          s.ID,
			Type:        domain.EntitySignal,
			Title:       s.Headline,
			Subtitle:    lookupLabel(companyNames, s.CompanyID, "Company"),
			Description: s.Summary,
			Date:        &date,
			Score:       score,
		})
	}
	return truncate(rank(hits), e.limit)
}

func (e *Engine) searchReleases(releases []domain.Release, productNames map[string]string, term string) []domain.SearchResult {
	var hits []domain.SearchResult
	for _, r := range releases {
		secondaries := append(append([]string(nil), r.Tags...), r.Summary)
		score := scoreEntity(r.Title, secondaries, term)
		if score == 0 {
			continue
		}
		date := r.Date
		hits = append(hits, domain.SearchResult{
			ID:          r.ID,
			Type:        domain.EntityRelease,
			Title:       r.Title,
			Subtitle:    lookupLabel(productNames, r.ProductID, "Product"),
			Description: r.Summary,
			Date:        &date,
			Score:       score,
		})
	}
	return truncate(rank(hits), e.limit)
}

// lookupLabel resolves a cross-reference by id; a missing reference
// degrades to an "Unknown X" label rather than failing the search.
func lookupLabel(names map[string]string, id, kind string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return "Unknown " + kind
}

// rank sorts by descending score; ties keep original collection order.
func rank(hits []domain.SearchResult) []domain.SearchResult {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
	return hits
}

func truncate(hits []domain.SearchResult, limit int) []domain.SearchResult {
	if len(hits) > limit {
		return hits[:limit]
	}
	return hits
}
