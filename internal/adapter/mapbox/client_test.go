package mapbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
)

const (
	testToken         = "test-token"
	testAddress       = "535 MARCY AVE"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		country:    "us",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    testMetrics(),
		logger:     observability.DiscardLogger(),
	}
}

func writeFeatures(t *testing.T, w http.ResponseWriter, features ...feature) {
	t.Helper()
	w.Header().Set(headerContentType, contentTypeJSON)
	require.NoError(t, json.NewEncoder(w).Encode(response{Features: features}))
}

func TestClient_Resolve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/535 MARCY AVE.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "us", r.URL.Query().Get("country"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))
		assert.Empty(t, r.URL.Query().Get("proximity"))

		writeFeatures(t, w, feature{
			Center:    []float64{-73.94938, 40.69699},
			PlaceName: "535 Marcy Avenue, Brooklyn, New York 11206, United States",
			Text:      "Marcy Avenue",
			Relevance: 0.96,
		})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	result, err := c.Resolve(context.Background(), testAddress)
	require.NoError(t, err)

	assert.Equal(t, 40.69699, result.Lat)
	assert.Equal(t, -73.94938, result.Lng)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "535 Marcy Avenue, Brooklyn, New York 11206, United States", result.PlaceName)
	assert.Equal(t, 0.96, result.Relevance)
}

func TestClient_Resolve_Proximity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "-73.95,40.69", r.URL.Query().Get("proximity"))
		writeFeatures(t, w, feature{Center: []float64{-73.9, 40.7}})
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.proximity = "-73.95,40.69"
	_, err := c.Resolve(context.Background(), testAddress)
	require.NoError(t, err)
}

func TestClient_Resolve_NoFeatures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFeatures(t, w)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Resolve(context.Background(), "!@#@!#@!$!!$@$@$@$@")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)

	var ge *domain.GeocodeError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, http.StatusOK, ge.StatusCode)
	assert.False(t, ge.Transient)
}

func TestClient_Resolve_FeatureWithoutCenter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeFeatures(t, w, feature{PlaceName: "Somewhere"})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Resolve(context.Background(), testAddress)
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
}

func TestClient_Resolve_StatusMapping(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		kind      error
		transient bool
	}{
		{"not found", http.StatusNotFound, domain.ErrGeocodeNotFound, false},
		{"unauthorized", http.StatusUnauthorized, domain.ErrGeocodeService, false},
		{"rate limited", http.StatusTooManyRequests, domain.ErrGeocodeService, true},
		{"server error", http.StatusBadGateway, domain.ErrGeocodeService, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Resolve(context.Background(), testAddress)
			require.ErrorIs(t, err, tc.kind)

			var ge *domain.GeocodeError
			require.ErrorAs(t, err, &ge)
			assert.Equal(t, tc.status, ge.StatusCode)
			assert.Equal(t, tc.transient, ge.Transient)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_Resolve_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Resolve(context.Background(), testAddress)
	require.ErrorIs(t, err, domain.ErrGeocodeMalformed)
}

func TestClient_Resolve_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Resolve(context.Background(), testAddress)
	require.ErrorIs(t, err, domain.ErrGeocodeService)

	var ge *domain.GeocodeError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Transient)
	assert.NotContains(t, err.Error(), testToken)
}

func TestClient_Resolve_EmptyAddressSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeFeatures(t, w)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Resolve(context.Background(), "   ")
	require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
	assert.Zero(t, calls.Load())
}
