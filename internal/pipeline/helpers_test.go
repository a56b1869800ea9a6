package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
)

// --- fakes ---

type fakeStore struct {
	mu        sync.Mutex
	records   map[domain.Category][]domain.PointOfInterest
	existsErr error
	insertErr error
	inserts   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[domain.Category][]domain.PointOfInterest)}
}

func (s *fakeStore) Exists(_ context.Context, c domain.Category) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsErr != nil {
		return false, s.existsErr
	}
	return len(s.records[c]) > 0, nil
}

func (s *fakeStore) BulkInsert(ctx context.Context, c domain.Category, records []domain.PointOfInterest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.Join(domain.ErrStorage, err)
	}
	for _, r := range records {
		if r.Category != c {
			return 0, errors.Join(domain.ErrStorage, errors.New("category mismatch"))
		}
	}
	s.records[c] = append(s.records[c], records...)
	return len(records), nil
}

func (s *fakeStore) all(c domain.Category) []domain.PointOfInterest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PointOfInterest(nil), s.records[c]...)
}

func (s *fakeStore) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, r := range s.records {
		n += len(r)
	}
	return n
}

type stubGeocoder struct {
	mu      sync.Mutex
	answers map[string]domain.Coordinates
	errs    map[string]error
	panicOn string
	block   bool
	calls   []string
}

func newStubGeocoder() *stubGeocoder {
	return &stubGeocoder{
		answers: map[string]domain.Coordinates{"535 MARCY AVE": {Lat: 40.69699, Lng: -73.94938}},
		errs:    map[string]error{},
	}
}

func (g *stubGeocoder) Resolve(ctx context.Context, address string) (domain.GeocodeResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, address)
	g.mu.Unlock()

	if address == g.panicOn {
		panic("geocoder exploded")
	}
	if g.block {
		<-ctx.Done()
		return domain.GeocodeResult{}, ctx.Err()
	}
	if err, ok := g.errs[address]; ok {
		return domain.GeocodeResult{}, err
	}
	if c, ok := g.answers[address]; ok {
		return domain.GeocodeResult{Coordinates: c, StatusCode: 200}, nil
	}
	return domain.GeocodeResult{}, &domain.GeocodeError{Kind: domain.ErrGeocodeNotFound, Address: address, StatusCode: 200}
}

func (g *stubGeocoder) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

type recordingPublisher struct {
	mu        sync.Mutex
	published []domain.PointOfInterest
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, records []domain.PointOfInterest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, records...)
	return nil
}

// --- helpers ---

func newTestMetrics() *observability.Metrics {
	// Fresh, unregistered collectors avoid "already registered" panics.
	return observability.NewMetricsForTesting()
}

// writeSources writes the given file bodies into a temp dir and returns it.
func writeSources(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	return dir
}

func csvLines(lines ...string) string {
	return strings.Join(lines, "\n") + "\n"
}
