package pipeline_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/couchcryptid/poimap-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "poimap.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// TestPipeline_SQLite_Testdata runs the bundled sample tables through a real
// SQLite store.
func TestPipeline_SQLite_Testdata(t *testing.T) {
	st := newSQLiteStore(t)
	geo := newStubGeocoder()
	geo.answers["1 FULTON ST"] = domain.Coordinates{Lat: 40.70295, Lng: -73.99421}

	p := pipeline.New(st, pipeline.DefaultSources("testdata"), geo,
		observability.DiscardLogger(), newTestMetrics(), pipeline.WithClock(clockwork.NewFakeClockAt(runTime)))

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	want := map[domain.Category]struct{ rows, inserted, skipped int }{
		domain.FarmersMarket: {3, 2, 1},
		domain.GroceryStore:  {4, 3, 1},
		domain.FireHouse:     {3, 2, 1},
		domain.Supermarket:   {2, 2, 0},
		domain.Supercenter:   {1, 1, 0},
	}
	for _, cr := range report.Categories {
		w := want[cr.Category]
		assert.Equal(t, pipeline.StatusIngested, cr.Status, cr.Category)
		assert.Equal(t, w.rows, cr.Rows, cr.Category)
		assert.Equal(t, w.inserted, cr.Inserted, cr.Category)
		assert.Equal(t, w.skipped, cr.Skipped, cr.Category)

		got, err := st.ReadAll(context.Background(), cr.Category)
		require.NoError(t, err)
		assert.Len(t, got, w.inserted, cr.Category)
	}

	markets, err := st.ReadAll(context.Background(), domain.FarmersMarket)
	require.NoError(t, err)
	require.NotEmpty(t, markets)
	assert.Equal(t, "535 MARCY AVE", markets[0].RawAddress)
	assert.Equal(t, 40.69699, markets[0].Lat)
	assert.Equal(t, -73.94938, markets[0].Lng)

	// A second run over the same store is a no-op.
	again, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Inserted())
}

func TestPipeline_SQLite_XLSXManifest(t *testing.T) {
	dir := t.TempDir()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Markets")
	require.NoError(t, err)
	for _, cells := range [][]string{{"Market Name", "Street Address"}, {"Marcy Plaza", "535 MARCY AVE"}} {
		r := sheet.AddRow()
		for _, c := range cells {
			r.AddCell().SetString(c)
		}
	}
	xlsxPath := filepath.Join(dir, "markets.xlsx")
	require.NoError(t, f.Save(xlsxPath))

	specs := pipeline.WithManifest(pipeline.DefaultSources(dir), source.Manifest{
		Sources: map[domain.Category]string{domain.FarmersMarket: xlsxPath},
	})
	st := newSQLiteStore(t)
	p := pipeline.New(st, specs, newStubGeocoder(), observability.DiscardLogger(), newTestMetrics())

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	cr, _ := report.Category(domain.FarmersMarket)
	assert.Equal(t, pipeline.StatusIngested, cr.Status)
	assert.Equal(t, 1, cr.Inserted)
}

func TestPipeline_SQLite_CancelledOnLastRow(t *testing.T) {
	st := newSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dir := writeSources(t, map[string]string{
		"grocery_stores.csv": csvLines("Name,Latitude,Longitude", "A,40.1,-73.1", "B,40.2,-73.2"),
	})
	p := pipeline.New(st, pipeline.DefaultSources(dir), nil,
		observability.DiscardLogger(), newTestMetrics(),
		pipeline.WithRowHook(func(_ domain.Category, line int) {
			if line == 2 {
				cancel()
			}
		}))

	report, err := p.Run(ctx)
	require.NoError(t, err)

	cr, ok := report.Category(domain.GroceryStore)
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusCancelled, cr.Status)

	seeded, err := st.Exists(context.Background(), domain.GroceryStore)
	require.NoError(t, err)
	assert.False(t, seeded)
}
