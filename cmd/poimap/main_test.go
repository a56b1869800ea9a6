package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/poimap-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/poimap-etl/internal/config"
	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
	"github.com/couchcryptid/poimap-etl/internal/pipeline"
)

const testdataDir = "../../internal/pipeline/testdata"

func testApp(t *testing.T) *app {
	t.Helper()
	return &app{
		cfg: &config.Config{
			DatabaseDriver:    config.DriverSQLite,
			DatabaseURL:       "file:" + filepath.Join(t.TempDir(), "poimap.db"),
			SourceDir:         testdataDir,
			MapboxTimeout:     time.Second,
			MapboxCacheSize:   10,
			MapboxRateLimit:   5,
			MapboxMaxAttempts: 2,
			GeocodeTimeout:    time.Second,
			ShutdownTimeout:   time.Second,
		},
		logger:  observability.DiscardLogger(),
		metrics: observability.NewMetricsForTesting(),
	}
}

func TestBuildGeocoder_DisabledWithoutToken(t *testing.T) {
	a := testApp(t)
	assert.Nil(t, buildGeocoder(a.cfg, a.metrics, a.logger))
	assert.Zero(t, testutil.ToFloat64(a.metrics.GeocodeEnabled))
}

func TestBuildGeocoder_Chain(t *testing.T) {
	a := testApp(t)
	a.cfg.MapboxToken = "pk.test"

	g := buildGeocoder(a.cfg, a.metrics, a.logger)
	require.NotNil(t, g)
	assert.IsType(t, &mapbox.CachedGeocoder{}, g)
	assert.InDelta(t, 1, testutil.ToFloat64(a.metrics.GeocodeEnabled), 0)
}

func TestBuildPublisher_DisabledWithoutBrokers(t *testing.T) {
	a := testApp(t)
	assert.Nil(t, buildPublisher(a.cfg, a.logger))
}

func TestOpenStore_SQLite(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	st, err := openStore(ctx, a.cfg)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Ping(ctx))
	seeded, err := st.Exists(ctx, domain.FireHouse)
	require.NoError(t, err)
	assert.False(t, seeded)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	a := testApp(t)
	a.cfg.DatabaseDriver = "mysql"

	_, err := openStore(context.Background(), a.cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestLoadSources_Manifest(t *testing.T) {
	a := testApp(t)
	dir := t.TempDir()
	manifest := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("sources:\n  fire_house: fdny.xlsx\n"), 0o600))
	a.cfg.SourceManifest = manifest

	specs, err := loadSources(a.cfg)
	require.NoError(t, err)
	require.Len(t, specs, 5)

	for _, s := range specs {
		switch s.Category {
		case domain.FireHouse:
			assert.Equal(t, filepath.Join(dir, "fdny.xlsx"), s.Path)
		default:
			assert.Equal(t, testdataDir, filepath.Dir(s.Path))
		}
	}
}

func TestLoadSources_BadManifest(t *testing.T) {
	a := testApp(t)
	a.cfg.SourceManifest = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := loadSources(a.cfg)
	require.Error(t, err)
}

func TestWriteCategories(t *testing.T) {
	var buf bytes.Buffer
	writeCategories(&buf, pipeline.DefaultSources("data"))

	out := buf.String()
	assert.Contains(t, out, "CATEGORY")
	assert.Contains(t, out, "farmers_market")
	assert.Contains(t, out, "address_lookup")
	assert.Contains(t, out, filepath.Join("data", "supercenters.csv"))
}

func TestRunIngest_Idempotent(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	var first bytes.Buffer
	require.NoError(t, a.runIngest(ctx, &first, true))

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(first.Bytes(), &report))
	assert.Equal(t, 8, report.Inserted())

	fm, ok := report.Category(domain.FarmersMarket)
	require.True(t, ok)
	assert.Equal(t, pipeline.StatusGeocoderUnavailable, fm.Status)

	var second bytes.Buffer
	require.NoError(t, a.runIngest(ctx, &second, false))
	assert.Contains(t, second.String(), "already_seeded")
	assert.Contains(t, second.String(), "0 records inserted")
}

func TestCheckSources_Testdata(t *testing.T) {
	checks := checkSources(pipeline.DefaultSources(testdataDir))
	require.Len(t, checks, 5)

	byCategory := map[domain.Category]*sourceCheck{}
	for _, c := range checks {
		byCategory[c.spec.Category] = c
	}

	fm := byCategory[domain.FarmersMarket]
	assert.Equal(t, 3, fm.rows)
	assert.Equal(t, 2, fm.valid)
	assert.Equal(t, 1, fm.incomplete)
	assert.True(t, fm.passed(false))
	assert.False(t, fm.passed(true))

	fh := byCategory[domain.FireHouse]
	assert.Equal(t, 1, fh.malformed)
	assert.False(t, fh.passed(false))
	require.Len(t, fh.errors, 1)
	assert.Contains(t, fh.errors[0], "row 3")

	assert.Equal(t, 2, byCategory[domain.Supermarket].valid)

	var buf bytes.Buffer
	assert.False(t, writeChecks(&buf, checks, false))
	assert.Contains(t, buf.String(), "Validation FAILED.")
}

func TestCheckSource_Missing(t *testing.T) {
	c := checkSource(pipeline.SourceSpec{
		Category: domain.Supercenter,
		Path:     filepath.Join(t.TempDir(), "nope.csv"),
		Strategy: pipeline.DirectCoordinates,
	})
	require.ErrorIs(t, c.openErr, domain.ErrSourceUnavailable)
	assert.False(t, c.passed(false))
}

func TestRunIngest_JSONReportKeepsLogsOffStdout(t *testing.T) {
	a := testApp(t)
	var logs bytes.Buffer
	a.logger = observability.NewLogger(&logs, "info", "json")

	var out bytes.Buffer
	require.NoError(t, a.runIngest(context.Background(), &out, true))

	dec := json.NewDecoder(&out)
	var report pipeline.Report
	require.NoError(t, dec.Decode(&report))
	assert.False(t, dec.More(), "stdout holds only the report")
	assert.Contains(t, logs.String(), "ingestion finished")
}
