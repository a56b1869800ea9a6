// Package sqlite implements the point-of-interest store on an embedded
// SQLite database (modernc.org/sqlite, no cgo).
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// Store implements the ingestion and catalog store contracts on SQLite.
type Store struct {
	db *sql.DB
}

// connPragmas are applied by the driver to every connection it opens, so a
// recycled connection keeps them.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
}

// New opens a SQLite database at dsn and configures WAL mode.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", withPragmas(dsn))
	if err != nil {
		return nil, storageErr(err, "sqlite: open")
	}
	// One writer at a time; extra connections only add lock contention, and
	// an in-memory database exists per connection.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr(err, "sqlite: open")
	}
	return &Store{db: db}, nil
}

// withPragmas appends the connection pragmas as _pragma query parameters.
func withPragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(dsn)
	for _, p := range connPragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

const migration = `
CREATE TABLE IF NOT EXISTS points_of_interest (
	id          TEXT PRIMARY KEY,
	category    TEXT NOT NULL,
	raw_address TEXT NOT NULL DEFAULT '',
	latitude    REAL,
	longitude   REAL,
	source_row  INTEGER NOT NULL DEFAULT 0,
	ingested_at DATETIME NOT NULL,
	CHECK ((latitude IS NULL) = (longitude IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_points_of_interest_category ON points_of_interest(category);
`

// Migrate creates the schema. It is safe to call on every start.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, migration); err != nil {
		return storageErr(err, "sqlite: migrate")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr(err, "sqlite: ping")
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether category holds at least one record.
func (s *Store) Exists(ctx context.Context, category domain.Category) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM points_of_interest WHERE category = ?)`,
		string(category),
	).Scan(&exists)
	if err != nil {
		return false, storageErr(err, fmt.Sprintf("sqlite: exists %s", category))
	}
	return exists, nil
}

// BulkInsert writes each record with its own statement so one bad record
// does not block the rest. It returns how many were written; failures are
// joined into a single storage error.
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
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO points_of_interest (id, category, raw_address, latitude, longitude, source_row, ingested_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, string(r.Category), r.RawAddress, lat, lng, r.SourceRow, r.IngestedAt.UTC(),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("insert %s row %d: %w", r.ID, r.SourceRow, err))
			continue
		}
		inserted++
	}
	if len(errs) > 0 {
		return inserted, storageErr(errors.Join(errs...), fmt.Sprintf("sqlite: bulk insert %s: %d of %d failed", category, len(errs), len(records)))
	}
	return inserted, nil
}

// ReadAll returns every record of category ordered by source row.
func (s *Store) ReadAll(ctx context.Context, category domain.Category) ([]domain.PointOfInterest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, category, raw_address, latitude, longitude, source_row, ingested_at
		 FROM points_of_interest WHERE category = ? ORDER BY source_row, id`,
		string(category),
	)
	if err != nil {
		return nil, storageErr(err, fmt.Sprintf("sqlite: read %s", category))
	}
	defer rows.Close()

	out := []domain.PointOfInterest{}
	for rows.Next() {
		var (
			p          domain.PointOfInterest
			cat        string
			lat, lng   sql.NullFloat64
			ingestedAt time.Time
		)
		if err := rows.Scan(&p.ID, &cat, &p.RawAddress, &lat, &lng, &p.SourceRow, &ingestedAt); err != nil {
			return nil, storageErr(err, fmt.Sprintf("sqlite: scan %s", category))
		}
		p.Category = domain.Category(cat)
		p.IngestedAt = ingestedAt.UTC()
		if lat.Valid && lng.Valid {
			p.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err, fmt.Sprintf("sqlite: read %s", category))
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
