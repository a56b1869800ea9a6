// Package catalog serves persisted points of interest to map clients.
// Reads go straight to the store; nothing is cached or transformed beyond
// projection into GeoJSON.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// ErrNoneWithinRadius is returned by Nearest when no record of the category
// lies within the search radius.
var ErrNoneWithinRadius = errors.New("no point of interest within radius")

// Source is the read side of the point-of-interest store.
type Source interface {
	ReadAll(ctx context.Context, category domain.Category) ([]domain.PointOfInterest, error)
	Ping(ctx context.Context) error
}

// Reader aggregates store reads across categories.
type Reader struct {
	source Source
}

// NewReader creates a Reader over source.
func NewReader(source Source) *Reader {
	return &Reader{source: source}
}

// GetAll returns every record keyed by category. Every known category is
// present in the map, with an empty slice when it holds no records.
func (r *Reader) GetAll(ctx context.Context) (map[domain.Category][]domain.PointOfInterest, error) {
	out := make(map[domain.Category][]domain.PointOfInterest, len(domain.Categories()))
	for _, c := range domain.Categories() {
		records, err := r.source.ReadAll(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", c, err)
		}
		out[c] = records
	}
	return out, nil
}

// Get returns the records of one category.
func (r *Reader) Get(ctx context.Context, category domain.Category) ([]domain.PointOfInterest, error) {
	records, err := r.source.ReadAll(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", category, err)
	}
	return records, nil
}

// FeatureCollection projects a category into GeoJSON point features.
// Records without coordinates cannot be drawn and are left out.
func (r *Reader) FeatureCollection(ctx context.Context, category domain.Category) (*geojson.FeatureCollection, error) {
	records, err := r.Get(ctx, category)
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	for _, p := range records {
		if !p.HasCoordinates() {
			continue
		}
		fc.Append(toFeature(p))
	}
	return fc, nil
}

// Match is a record with its distance from a query point.
type Match struct {
	domain.PointOfInterest
	DistanceMeters float64 `json:"distance_m"`
}

// Nearest returns the record of category closest to from, measured along
// the great circle. radiusMeters <= 0 means unbounded.
func (r *Reader) Nearest(ctx context.Context, category domain.Category, from orb.Point, radiusMeters float64) (Match, error) {
	records, err := r.Get(ctx, category)
	if err != nil {
		return Match{}, err
	}

	best := Match{DistanceMeters: math.Inf(1)}
	for _, p := range records {
		if !p.HasCoordinates() {
			continue
		}
		d := geo.DistanceHaversine(from, point(p))
		if d < best.DistanceMeters {
			best = Match{PointOfInterest: p, DistanceMeters: d}
		}
	}

	if math.IsInf(best.DistanceMeters, 1) || (radiusMeters > 0 && best.DistanceMeters > radiusMeters) {
		return Match{}, ErrNoneWithinRadius
	}
	return best, nil
}

// CheckReadiness reports whether the backing store is reachable.
func (r *Reader) CheckReadiness(ctx context.Context) error {
	return r.source.Ping(ctx)
}

// point converts a record to an orb.Point, which is ordered lng, lat.
func point(p domain.PointOfInterest) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

func toFeature(p domain.PointOfInterest) *geojson.Feature {
	f := geojson.NewFeature(point(p))
	f.ID = p.ID
	f.Properties["category"] = string(p.Category)
	f.Properties["ingested_at"] = p.IngestedAt
	if p.RawAddress != "" {
		f.Properties["raw_address"] = p.RawAddress
	}
	return f
}
