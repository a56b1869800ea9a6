package pipeline

import (
	"path/filepath"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

// Source table column names.
const (
	ColumnLatitude      = "Latitude"
	ColumnLongitude     = "Longitude"
	ColumnStreetAddress = "Street Address"
)

// Strategy selects how a category's rows are turned into coordinates.
type Strategy int

const (
	// DirectCoordinates reads the Latitude and Longitude columns.
	DirectCoordinates Strategy = iota
	// AddressLookup geocodes the Street Address column.
	AddressLookup
)

func (s Strategy) String() string {
	switch s {
	case DirectCoordinates:
		return "direct_coordinates"
	case AddressLookup:
		return "address_lookup"
	default:
		return "unknown"
	}
}

// RequiredColumns lists the header columns a table must have for s.
func (s Strategy) RequiredColumns() []string {
	if s == AddressLookup {
		return []string{ColumnStreetAddress}
	}
	return []string{ColumnLatitude, ColumnLongitude}
}

// SourceSpec binds a category to its source table and resolution strategy.
type SourceSpec struct {
	Category domain.Category
	Path     string
	Strategy Strategy
}

var defaultFiles = map[domain.Category]struct {
	file     string
	strategy Strategy
}{
	domain.FarmersMarket: {"farmer_market.csv", AddressLookup},
	domain.GroceryStore:  {"grocery_stores.csv", DirectCoordinates},
	domain.FireHouse:     {"firehouses.csv", DirectCoordinates},
	domain.Supermarket:   {"supermarkets.csv", DirectCoordinates},
	domain.Supercenter:   {"supercenters.csv", DirectCoordinates},
}

// DefaultSources returns the dispatch table for every category, in
// ingestion order, with files resolved under dir.
func DefaultSources(dir string) []SourceSpec {
	cats := domain.Categories()
	specs := make([]SourceSpec, 0, len(cats))
	for _, c := range cats {
		d := defaultFiles[c]
		specs = append(specs, SourceSpec{Category: c, Path: filepath.Join(dir, d.file), Strategy: d.strategy})
	}
	return specs
}

// WithManifest returns a copy of specs with paths overridden by m.
// Strategies are fixed per category and never overridden.
func WithManifest(specs []SourceSpec, m source.Manifest) []SourceSpec {
	out := make([]SourceSpec, len(specs))
	for i, s := range specs {
		if p, ok := m.Sources[s.Category]; ok {
			s.Path = p
		}
		out[i] = s
	}
	return out
}
