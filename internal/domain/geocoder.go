package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// GeocodeResult is a successful forward-geocoding answer.
type GeocodeResult struct {
	Coordinates
	StatusCode int     // upstream HTTP status, kept for diagnostics
	PlaceName  string  // provider's formatted place name
	Relevance  float64 // 0.0–1.0 provider relevance score
}

// Geocoder resolves free-text postal addresses into coordinates.
type Geocoder interface {
	// Resolve performs one forward lookup. Failures are *GeocodeError.
	Resolve(ctx context.Context, address string) (GeocodeResult, error)
}

// GeocodeError is a typed geocoding failure. Kind is one of
// ErrGeocodeNotFound, ErrGeocodeService or ErrGeocodeMalformed.
type GeocodeError struct {
	Kind       error
	Address    string
	StatusCode int // 0 when no HTTP response was received
	Transient  bool
	Err        error
}

func (e *GeocodeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	fmt.Fprintf(&b, " (address %q", e.Address)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ", status %d", e.StatusCode)
	}
	b.WriteString(")")
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind sentinel and the underlying cause to errors.Is.
func (e *GeocodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// GeocodeKind returns a short label for the failure kind of err, suitable
// for logs and metric labels.
func GeocodeKind(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrGeocodeNotFound):
		return "not_found"
	case errors.Is(err, ErrGeocodeMalformed):
		return "malformed"
	default:
		return "service_error"
	}
}

// NormalizeAddress folds case and collapses whitespace so equivalent
// spellings of an address share a cache entry.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.Join(strings.Fields(address), " "))
}
