package domain

import "time"

// Company is the root identity a pipeline run produces or resolves against.
type Company struct {
	ID          string
	Name        string
	Website     string
	Aliases     []string
	Tags        []string
	Description string
	CreatedAt   time.Time
}

// Product belongs to a company and is searchable by name, tags, and description.
type Product struct {
	ID          string
	CompanyID   string
	Name        string
	Aliases     []string
	Tags        []string
	Description string
}

// Signal is a dated competitive observation (hiring spike, pricing change, ...).
type Signal struct {
	ID        string
	CompanyID string
	Headline  string
	Summary   string
	Tags      []string
	Date      time.Time
}

// Release is a shipped product version or announcement.
type Release struct {
	ID        string
	ProductID string
	CompanyID string
	Title     string
	Summary   string
	Tags      []string
	Date      time.Time
}

// Snapshot is the in-memory read projection the search engine and the
// dedup matcher operate on. Fetched fresh per query, never cached.
type Snapshot struct {
	Companies []Company
	Products  []Product
	Signals   []Signal
	Releases  []Release
}

// EntityType labels a search result bucket.
type EntityType string

const (
	EntityCompany EntityType = "company"
	EntityProduct EntityType = "product"
	EntitySignal  EntityType = "signal"
	EntityRelease EntityType = "release"
)

// SearchResult is one ranked hit inside a bucket.
type SearchResult struct {
	ID          string
	Type        EntityType
	Title       string
	Subtitle    string
	Description string
	Date        *time.Time
	Score       int
}

// SearchResults groups ranked hits per entity type.
type SearchResults struct {
	Companies []SearchResult
	Products  []SearchResult
	Signals   []SearchResult
	Releases  []SearchResult
}
