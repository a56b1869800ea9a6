// Package postgres implements the point-of-interest store on PostgreSQL
// using a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// Pool is the subset of *pgxpool.Pool the store uses. pgxmock pools satisfy
// it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Store implements the ingestion and catalog store contracts on Postgres.
type Store struct {
	pool Pool
}

// New creates a Store with a connection pool.
func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, storageErr(err, "postgres: parse config")
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, storageErr(err, "postgres: connect")
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool.
func NewWithPool(pool Pool) *Store {
	return &Store{pool: pool}
}

const migration = `
CREATE TABLE IF NOT EXISTS points_of_interest (
	id          UUID PRIMARY KEY,
	category    TEXT NOT NULL,
	raw_address TEXT NOT NULL DEFAULT '',
	latitude    DOUBLE PRECISION,
	longitude   DOUBLE PRECISION,
	source_row  INTEGER NOT NULL DEFAULT 0,
	ingested_at TIMESTAMPTZ NOT NULL,
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_points_of_interest_category ON points_of_interest (category);
`

// Migrate creates the schema. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return storageErr(err, "postgres: migrate")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storageErr(err, "postgres: ping")
	}
	return nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Exists reports whether category holds at least one record.
func (s *Store) Exists(ctx context.Context, category domain.Category) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM points_of_interest WHERE category = $1)`,
		string(category),
	).Scan(&exists)
	if err != nil {
		return false, storageErr(err, fmt.Sprintf("postgres: exists %s", category))
	}
	return exists, nil
}

// BulkInsert writes each record with its own statement outside any
// transaction, so one rejected record does not roll back the others.
func (s *Store) BulkInsert(ctx context.Context, category domain.Category, records []domain.PointOfInterest) (int, error) {
	var (
		inserted int
		errs     []error
	)
	for _, r := range records {
		if r.Category != category {
			errs = append(errs, fmt.Errorf("record %s has category %s, want %s", r.ID, r.Category, category))
			continue
		}
		lat, lng := nullableCoordinates(r)
		_, err := s.pool.Exec(ctx,
			`INSERT INTO points_of_interest (id, category, raw_address, latitude, longitude, source_row, ingested_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, string(r.Category), r.RawAddress, lat, lng, r.SourceRow, r.IngestedAt.UTC(),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("insert %s row %d: %w", r.ID, r.SourceRow, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		inserted++
	}
	if len(errs) > 0 {
		return inserted, storageErr(errors.Join(errs...), fmt.Sprintf("postgres: bulk insert %s: %d of %d failed", category, len(errs), len(records)))
	}
	return inserted, nil
}

// ReadAll returns every record of category ordered by source row.
func (s *Store) ReadAll(ctx context.Context, category domain.Category) ([]domain.PointOfInterest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, category, raw_address, latitude, longitude, source_row, ingested_at
		 FROM points_of_interest WHERE category = $1 ORDER BY source_row, id`,
		string(category),
	)
	if err != nil {
		return nil, storageErr(err, fmt.Sprintf("postgres: read %s", category))
	}
	defer rows.Close()

	out := []domain.PointOfInterest{}
	for rows.Next() {
		var (
			p        domain.PointOfInterest
			cat      string
			lat, lng *float64
		)
		if err := rows.Scan(&p.ID, &cat, &p.RawAddress, &lat, &lng, &p.SourceRow, &p.IngestedAt); err != nil {
			return nil, storageErr(err, fmt.Sprintf("postgres: scan %s", category))
		}
		p.Category = domain.Category(cat)
		p.IngestedAt = p.IngestedAt.UTC()
		if lat != nil && lng != nil {
			p.Coordinates = &domain.Coordinates{Lat: *lat, Lng: *lng}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, fmt.Sprintf("postgres: read %s", category))
	}
	return out, nil
}

func nullableCoordinates(p domain.PointOfInterest) (lat, lng *float64) {
	if p.Coordinates == nil {
		return nil, nil
	}
	return &p.Lat, &p.Lng
}

func storageErr(err error, msg string) error {
	return eris.Wrap(errors.Join(domain.ErrStorage, err), msg)
}
