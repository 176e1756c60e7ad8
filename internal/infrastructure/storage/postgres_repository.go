package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"CompetitorScanner/internal/domain"
	"CompetitorScanner/internal/ports"
)

// PostgresRepository reads and writes business entities in Postgres. It
// is the read side the dedup matcher and the search engine consume; the
// external extraction service owns the write-heavy ingest path.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.EntityRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// ListCompanies returns the full company snapshot, in insertion order.
// Callers refresh this per dedup check and never cache it.
func (r *PostgresRepository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	if r.db == nil {
		return nil, nil
	}

	query := r.builder.
		Select("id", "name", "website", "aliases", "tags", "description", "created_at").
		From("companies").
		OrderBy("created_at ASC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var companies []domain.Company
	for rows.Next() {
		var c domain.Company
		var website, description sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &website, pq.Array(&c.Aliases), pq.Array(&c.Tags), &description, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		c.Website = website.String
		c.Description = description.String
		companies = append(companies, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return companies, nil
}

// SearchSnapshot loads all four entity collections for one search pass.
func (r *PostgresRepository) SearchSnapshot(ctx context.Context) (domain.Snapshot, error) {
	var snapshot domain.Snapshot
	if r.db == nil {
		return snapshot, nil
	}

	companies, err := r.ListCompanies(ctx)
	if err != nil {
		return snapshot, err
	}
	snapshot.Companies = companies

	if snapshot.Products, err = r.listProducts(ctx); err != nil {
		return snapshot, err
	}
	if snapshot.Signals, err = r.listSignals(ctx); err != nil {
		return snapshot, err
	}
	if snapshot.Releases, err = r.listReleases(ctx); err != nil {
		return snapshot, err
	}

	return snapshot, nil
}

func (r *PostgresRepository) listProducts(ctx context.Context) ([]domain.Product, error) {
	query := r.builder.
		Select("id", "company_id", "name", "aliases", "tags", "description").
		From("products").
		OrderBy("created_at ASC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		var description sql.NullString
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, pq.Array(&p.Aliases), pq.Array(&p.Tags), &description); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Description = description.String
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return products, nil
}

func (r *PostgresRepository) listSignals(ctx context.Context) ([]domain.Signal, error) {
	query := r.builder.
		Select("id", "company_id", "headline", "summary", "tags", "observed_at").
		From("signals").
		OrderBy("observed_at DESC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var signals []domain.Signal
	for rows.Next() {
		var s domain.Signal
		var summary sql.NullString
		if err := rows.Scan(&s.ID, &s.CompanyID, &s.Headline, &summary, pq.Array(&s.Tags), &s.Date); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Summary = summary.String
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return signals, nil
}

func (r *PostgresRepository) listReleases(ctx context.Context) ([]domain.Release, error) {
	query := r.builder.
		Select("id", "product_id", "company_id", "title", "summary", "tags", "released_at").
		From("releases").
		OrderBy("released_at DESC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query releases: %w", err)
	}
	defer rows.Close()

	var releases []domain.Release
	for rows.Next() {
		var rel domain.Release
		var summary sql.NullString
		if err := rows.Scan(&rel.ID, &rel.ProductID, &rel.CompanyID, &rel.Title, &summary, pq.Array(&rel.Tags), &rel.Date); err != nil {
			return nil, fmt.Errorf("scan release: %w", err)
		}
		rel.Summary = summary.String
		releases = append(releases, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return releases, nil
}

// UpsertCompany records a company by id, updating name/website/aliases
// on conflict.
func (r *PostgresRepository) UpsertCompany(ctx context.Context, company domain.Company) error {
	if r.db == nil {
		return nil
	}

	query := r.builder.
		Insert("companies").
		Columns("id", "name", "website", "aliases", "tags", "description").
		Values(company.ID, company.Name, company.Website,
			pq.Array(company.Aliases), pq.Array(company.Tags), company.Description).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    website = EXCLUDED.website,
			    aliases = EXCLUDED.aliases,
			    tags = EXCLUDED.tags,
			    description = EXCLUDED.description,
			    updated_at = NOW()`)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("upsert company: %w", err)
	}
	return nil
}
