package mapbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
)

const defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

// Options configures a Client. Token is required.
type Options struct {
	Token     string
	Timeout   time.Duration
	Country   string // ISO 3166 alpha-2 filter, comma separated; empty disables
	Proximity string // "lng,lat" bias point; empty disables
}

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	country    string
	proximity  string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token:     opts.Token,
		country:   opts.Country,
		proximity: opts.Proximity,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Resolve forward-geocodes a free-text address to the best matching point.
func (c *Client) Resolve(ctx context.Context, address string) (domain.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return domain.GeocodeResult{}, &domain.GeocodeError{Kind: domain.ErrGeocodeNotFound, Err: fmt.Errorf("empty address")}
	}

	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
	}
	if c.country != "" {
		params.Set("country", c.country)
	}
	if c.proximity != "" {
		params.Set("proximity", c.proximity)
	}
	u := fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(address), params.Encode())

	start := time.Now()
	result, err := c.doRequest(ctx, u, address)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())
	c.metrics.GeocodeRequests.WithLabelValues(domain.GeocodeKind(err)).Inc()
	if err != nil {
		c.logger.Debug("mapbox geocode failed", "address", address, "error", err)
	}
	return result, err
}

func (c *Client) doRequest(ctx context.Context, fullURL, address string) (domain.GeocodeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return domain.GeocodeResult{}, &domain.GeocodeError{Kind: domain.ErrGeocodeService, Address: address, Err: fmt.Errorf("create request: %w", err)}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport failures and client timeouts; the URL carries the token, so
		// only the cause is kept.
		return domain.GeocodeResult{}, &domain.GeocodeError{
			Kind:      domain.ErrGeocodeService,
			Address:   address,
			Transient: ctx.Err() == nil,
			Err:       fmt.Errorf("geocode request: %w", unwrapURLError(err)),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.GeocodeResult{}, statusError(address, resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return domain.GeocodeResult{}, &domain.GeocodeError{
			Kind:       domain.ErrGeocodeMalformed,
			Address:    address,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	if len(mapboxResp.Features) == 0 {
		return domain.GeocodeResult{}, &domain.GeocodeError{Kind: domain.ErrGeocodeNotFound, Address: address, StatusCode: resp.StatusCode}
	}

	f := mapboxResp.Features[0]
	if len(f.Center) != 2 {
		return domain.GeocodeResult{}, &domain.GeocodeError{
			Kind:       domain.ErrGeocodeNotFound,
			Address:    address,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("feature %q has no center", f.PlaceName),
		}
	}

	// Mapbox uses lon,lat order.
	return domain.GeocodeResult{
		Coordinates: domain.Coordinates{Lat: f.Center[1], Lng: f.Center[0]},
		StatusCode:  resp.StatusCode,
		PlaceName:   f.PlaceName,
		Relevance:   f.Relevance,
	}, nil
}

// statusError maps a non-200 Mapbox response onto the geocode taxonomy.
func statusError(address string, status int, body []byte) *domain.GeocodeError {
	e := &domain.GeocodeError{
		Kind:       domain.ErrGeocodeService,
		Address:    address,
		StatusCode: status,
		Err:        fmt.Errorf("mapbox API error: status %d: %s", status, strings.TrimSpace(string(body))),
	}
	switch {
	case status == http.StatusNotFound:
		e.Kind = domain.ErrGeocodeNotFound
	case status == http.StatusTooManyRequests || status >= 500:
		e.Transient = true
	}
	return e
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
