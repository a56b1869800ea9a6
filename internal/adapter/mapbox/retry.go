package mapbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
)

// RetryingGeocoder retries transient service errors with exponential backoff.
// NotFound and Malformed answers are returned on the first attempt.
type RetryingGeocoder struct {
	inner          domain.Geocoder
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	metrics        *observability.Metrics
	logger         *slog.Logger
}

// NewRetryingGeocoder creates a retry decorator. maxAttempts counts the first
// try, so 1 disables retries.
func NewRetryingGeocoder(inner domain.Geocoder, maxAttempts int, metrics *observability.Metrics, logger *slog.Logger) *RetryingGeocoder {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RetryingGeocoder{
		inner:          inner,
		maxAttempts:    maxAttempts,
		initialBackoff: 200 * time.Millisecond,
		maxBackoff:     5 * time.Second,
		metrics:        metrics,
		logger:         logger,
	}
}

func (g *RetryingGeocoder) Resolve(ctx context.Context, address string) (domain.GeocodeResult, error) {
	backoff := g.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		result, err := g.inner.Resolve(ctx, address)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isTransient(err) || attempt == g.maxAttempts || ctx.Err() != nil {
			break
		}

		g.metrics.GeocodeRetries.Inc()
		g.logger.Warn("geocode failed, retrying",
			"address", address,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, g.maxBackoff)
	}
	return domain.GeocodeResult{}, lastErr
}

func isTransient(err error) bool {
	var ge *domain.GeocodeError
	return errors.As(err, &ge) && ge.Transient
}
