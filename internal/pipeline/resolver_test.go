package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

func row(line int, fields map[string]string) source.Row {
	return source.Row{Line: line, Fields: fields}
}

func TestResolver_DirectCoordinates(t *testing.T) {
	r := pipeline.NewResolver(nil, 0, clockwork.NewFakeClockAt(runTime))
	spec := pipeline.SourceSpec{Category: domain.GroceryStore, Strategy: pipeline.DirectCoordinates}

	poi, err := r.Resolve(context.Background(), spec, row(7, map[string]string{"Latitude": " 40.69699 ", "Longitude": "-73.94938"}))
	require.NoError(t, err)

	assert.NotEmpty(t, poi.ID)
	assert.Equal(t, domain.GroceryStore, poi.Category)
	assert.Equal(t, 7, poi.SourceRow)
	assert.Empty(t, poi.RawAddress)
	assert.Equal(t, runTime, poi.IngestedAt)
	require.NotNil(t, poi.Coordinates)
	assert.Equal(t, domain.Coordinates{Lat: 40.69699, Lng: -73.94938}, *poi.Coordinates)
}

func TestResolver_DirectCoordinates_Errors(t *testing.T) {
	r := pipeline.NewResolver(nil, 0, nil)
	spec := pipeline.SourceSpec{Category: domain.FireHouse, Strategy: pipeline.DirectCoordinates}

	cases := []struct {
		name     string
		lat, lng string
		want     error
	}{
		{"missing latitude", "", "-73.9", domain.ErrRowIncomplete},
		{"missing longitude", "40.7", "  ", domain.ErrRowIncomplete},
		{"not a number", "forty", "-73.9", domain.ErrRowMalformed},
		{"out of range", "91", "-73.9", domain.ErrRowMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Latitude": tc.lat, "Longitude": tc.lng}))
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestResolver_AddressLookup(t *testing.T) {
	r := pipeline.NewResolver(newStubGeocoder(), time.Second, nil)
	spec := pipeline.SourceSpec{Category: domain.FarmersMarket, Strategy: pipeline.AddressLookup}

	poi, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Street Address": "535 MARCY AVE"}))
	require.NoError(t, err)
	assert.Equal(t, "535 MARCY AVE", poi.RawAddress)
	assert.Equal(t, 40.69699, poi.Lat)
	assert.Equal(t, -73.94938, poi.Lng)
}

func TestResolver_AddressLookup_Errors(t *testing.T) {
	spec := pipeline.SourceSpec{Category: domain.FarmersMarket, Strategy: pipeline.AddressLookup}

	t.Run("empty address", func(t *testing.T) {
		geo := newStubGeocoder()
		r := pipeline.NewResolver(geo, time.Second, nil)
		_, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Street Address": " "}))
		require.ErrorIs(t, err, domain.ErrRowIncomplete)
		assert.Zero(t, geo.callCount(), "no lookup for an empty address")
	})

	t.Run("not found", func(t *testing.T) {
		r := pipeline.NewResolver(newStubGeocoder(), time.Second, nil)
		_, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Street Address": "NOWHERE"}))
		require.ErrorIs(t, err, domain.ErrGeocodeNotFound)
	})

	t.Run("no geocoder", func(t *testing.T) {
		r := pipeline.NewResolver(nil, time.Second, nil)
		_, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Street Address": "535 MARCY AVE"}))
		require.ErrorIs(t, err, domain.ErrGeocodeService)
	})

	t.Run("timeout", func(t *testing.T) {
		geo := newStubGeocoder()
		geo.block = true
		r := pipeline.NewResolver(geo, 5*time.Millisecond, nil)
		_, err := r.Resolve(context.Background(), spec, row(1, map[string]string{"Street Address": "535 MARCY AVE"}))
		require.ErrorIs(t, err, domain.ErrGeocodeService)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
