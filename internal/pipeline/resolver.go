package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

// Resolver turns one source row into a PointOfInterest. It is stateless
// apart from the geocoder it calls.
type Resolver struct {
	geocoder domain.Geocoder
	timeout  time.Duration
	clock    clockwork.Clock
	newID    func() string
}

// NewResolver creates a Resolver. geocoder may be nil when no category
// needs address lookup; timeout bounds each geocode call (0 disables).
func NewResolver(geocoder domain.Geocoder, timeout time.Duration, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{geocoder: geocoder, timeout: timeout, clock: clock, newID: uuid.NewString}
}

// Resolve applies the strategy of spec to row. Errors are one of
// domain.ErrRowIncomplete, domain.ErrRowMalformed, or a *domain.GeocodeError.
func (r *Resolver) Resolve(ctx context.Context, spec SourceSpec, row source.Row) (domain.PointOfInterest, error) {
	poi := domain.PointOfInterest{
		Category:  spec.Category,
		SourceRow: row.Line,
	}

	switch spec.Strategy {
	case DirectCoordinates:
		coords, err := domain.ParseCoordinates(row.Get(ColumnLatitude), row.Get(ColumnLongitude))
		if err != nil {
			return domain.PointOfInterest{}, err
		}
		poi.Coordinates = &coords

	case AddressLookup:
		address := row.Get(ColumnStreetAddress)
		if address == "" {
			return domain.PointOfInterest{}, fmt.Errorf("%w: street address is empty", domain.ErrRowIncomplete)
		}
		coords, err := r.lookup(ctx, address)
		if err != nil {
			return domain.PointOfInterest{}, err
		}
		poi.RawAddress = address
		poi.Coordinates = &coords

	default:
		return domain.PointOfInterest{}, fmt.Errorf("unknown strategy %d for %s", spec.Strategy, spec.Category)
	}

	poi.ID = r.newID()
	poi.IngestedAt = r.clock.Now().UTC()
	return poi, nil
}

func (r *Resolver) lookup(ctx context.Context, address string) (domain.Coordinates, error) {
	if r.geocoder == nil {
		return domain.Coordinates{}, &domain.GeocodeError{Kind: domain.ErrGeocodeService, Address: address, Err: errors.New("no geocoder configured")}
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	result, err := r.geocoder.Resolve(ctx, address)
	if err != nil {
		var ge *domain.GeocodeError
		if errors.As(err, &ge) {
			return domain.Coordinates{}, err
		}
		// Geocoders that return bare errors, such as a context deadline, are
		// treated as service failures.
		return domain.Coordinates{}, &domain.GeocodeError{Kind: domain.ErrGeocodeService, Address: address, Transient: true, Err: err}
	}
	return result.Coordinates, nil
}
