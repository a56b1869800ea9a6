package mapbox

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/poimap-etl/internal/domain"
)

// RateLimitedGeocoder spaces calls to the inner geocoder so a large source
// table stays under the provider's request quota.
type RateLimitedGeocoder struct {
	inner   domain.Geocoder
	limiter *rate.Limiter
}

// NewRateLimitedGeocoder allows rps requests per second with a burst of
// ceil(rps).
func NewRateLimitedGeocoder(inner domain.Geocoder, rps float64) *RateLimitedGeocoder {
	burst := int(math.Ceil(rps))
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGeocoder{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (g *RateLimitedGeocoder) Resolve(ctx context.Context, address string) (domain.GeocodeResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		// Wait fails when ctx ends or its deadline is sooner than the next slot.
		return domain.GeocodeResult{}, &domain.GeocodeError{
			Kind:    domain.ErrGeocodeService,
			Address: address,
			Err:     eris.Wrap(err, "geocode rate limit"),
		}
	}
	return g.inner.Resolve(ctx, address)
}
