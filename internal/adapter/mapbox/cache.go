package mapbox

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
)

// CachedGeocoder wraps a Geocoder with an in-memory LRU cache keyed by the
// normalized address. Source tables repeat addresses, and farmers markets
// that share a site should cost one lookup.
type CachedGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.GeocodeResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
// maxEntries below 1 is treated as 1.
func NewCachedGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	if maxEntries < 1 {
		maxEntries = 1
	}
	cache, _ := lru.New[string, domain.GeocodeResult](maxEntries) // only errors on size < 1
	return &CachedGeocoder{inner: inner, cache: cache, metrics: metrics}
}

func (c *CachedGeocoder) Resolve(ctx context.Context, address string) (domain.GeocodeResult, error) {
	key := domain.NormalizeAddress(address)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.Resolve(ctx, address)
	if err != nil {
		// Failures are not cached so a later run can retry them.
		return result, err
	}
	c.cache.Add(key, result)
	return result, nil
}

// Len returns the number of cached addresses.
func (c *CachedGeocoder) Len() int { return c.cache.Len() }
