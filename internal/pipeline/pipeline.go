package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"

	"github.com/couchcryptid/poimap-etl/internal/domain"
	"github.com/couchcryptid/poimap-etl/internal/observability"
	"github.com/couchcryptid/poimap-etl/internal/source"
)

// Store is the write side of the point-of-interest store.
type Store interface {
	Exists(ctx context.Context, category domain.Category) (bool, error)
	BulkInsert(ctx context.Context, category domain.Category, records []domain.PointOfInterest) (int, error)
}

// Publisher forwards freshly persisted records to a change feed.
type Publisher interface {
	Publish(ctx context.Context, records []domain.PointOfInterest) error
}

// RowHook is called after each data row is handled.
type RowHook func(category domain.Category, line int)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock sets the clock used for ingestion timestamps and durations.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// WithPublisher enables publishing of inserted records.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithRowHook registers a per-row callback, used for progress reporting.
func WithRowHook(h RowHook) Option {
	return func(p *Pipeline) { p.rowHook = h }
}

// WithGeocodeTimeout bounds each geocode call.
func WithGeocodeTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.geocodeTimeout = d }
}

// Pipeline ingests every configured category into the store.
type Pipeline struct {
	store          Store
	sources        []SourceSpec
	geocoder       domain.Geocoder
	resolver       *Resolver
	publisher      Publisher
	rowHook        RowHook
	geocodeTimeout time.Duration
	clock          clockwork.Clock
	logger         *slog.Logger
	metrics        *observability.Metrics

	running   atomic.Bool
	pending   atomic.Bool
	completed atomic.Bool
}

// New creates a Pipeline. geocoder may be nil, in which case address-based
// categories are reported as geocoder_unavailable.
func New(store Store, sources []SourceSpec, geocoder domain.Geocoder, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:          store,
		sources:        sources,
		geocoder:       geocoder,
		geocodeTimeout: 10 * time.Second,
		clock:          clockwork.NewRealClock(),
		logger:         logger,
		metrics:        metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.resolver = NewResolver(geocoder, p.geocodeTimeout, p.clock)
	return p
}

// Schedule marks a run as about to start, so readiness fails before the
// goroutine that calls Run gets going.
func (p *Pipeline) Schedule() {
	p.pending.Store(true)
}

// CheckReadiness returns nil once a run has completed, or while no run is
// scheduled or in progress. It fails until the first run finishes so the
// catalog is not served half seeded; a run aborted by a storage error
// clears the pending state.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.pending.Load() && !p.completed.Load() {
		return errors.New("initial ingestion in progress")
	}
	return nil
}

// Run ingests each category in dispatch-table order. Row and category
// faults are logged and reported; only storage failures are returned.
// Cancelling ctx stops the run between rows.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, errors.New("ingestion already running")
	}
	defer p.running.Store(false)
	p.pending.Store(true)
	defer p.pending.Store(false)

	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	report := Report{StartedAt: p.clock.Now().UTC()}
	p.logger.Info("ingestion started", "categories", len(p.sources))

	for _, spec := range p.sources {
		if ctx.Err() != nil {
			p.logger.Info("ingestion stopping", "reason", ctx.Err())
			break
		}

		cr, err := p.ingestCategory(ctx, spec)
		report.Categories = append(report.Categories, cr)
		p.recordCategory(cr)

		if err != nil {
			report.Duration = p.clock.Since(report.StartedAt)
			p.logger.Error("ingestion aborted",
				"category", spec.Category,
				"error", err,
				"trace", eris.ToString(err, true),
			)
			return report, err
		}
	}

	report.Duration = p.clock.Since(report.StartedAt)
	p.completed.Store(true)
	p.logger.Info("ingestion finished", "inserted", report.Inserted(), "duration", report.Duration)
	return report, nil
}

// ingestCategory runs one category through the idempotence gate, source
// read, per-row resolution, and insert. The returned error is always a
// storage error.
func (p *Pipeline) ingestCategory(ctx context.Context, spec SourceSpec) (CategoryReport, error) {
	start := p.clock.Now()
	cr := CategoryReport{Category: spec.Category}
	finish := func(s Status) CategoryReport {
		cr.Status = s
		cr.Duration = p.clock.Since(start)
		return cr
	}
	log := p.logger.With("category", spec.Category)

	seeded, err := p.store.Exists(ctx, spec.Category)
	if err != nil {
		return finish(StatusStorageFailed), err
	}
	if seeded {
		log.Info("category already seeded, skipping")
		return finish(StatusAlreadySeeded), nil
	}

	if spec.Strategy == AddressLookup && p.geocoder == nil {
		log.Warn("no geocoder configured, skipping address-based category")
		return finish(StatusGeocoderUnavailable), nil
	}

	tbl, err := openSource(spec)
	if err != nil {
		log.Error("source unavailable",
			"path", spec.Path,
			"error", err,
			"trace", eris.ToString(err, true),
		)
		return finish(StatusSourceUnavailable), nil
	}
	defer tbl.Close()

	records := make([]domain.PointOfInterest, 0, 64)
	for row, rowErr := range tbl.Rows() {
		if ctx.Err() != nil {
			log.Info("category interrupted, nothing persisted", "rows", cr.Rows, "reason", ctx.Err())
			return finish(StatusCancelled), nil
		}
		cr.Rows++

		var poi domain.PointOfInterest
		if rowErr == nil {
			poi, rowErr = p.resolveRow(ctx, spec, row)
		}
		switch p.classify(log, row.Line, rowErr) {
		case outcomeResolved:
			records = append(records, poi)
		case outcomeSkipped:
			cr.Skipped++
		case outcomeFailed:
			cr.Failed++
		}
		if p.rowHook != nil {
			p.rowHook(spec.Category, row.Line)
		}
	}

	// Cancellation during the last row ends the loop normally.
	if ctx.Err() != nil {
		log.Info("category interrupted, nothing persisted", "rows", cr.Rows, "reason", ctx.Err())
		return finish(StatusCancelled), nil
	}

	if len(records) == 0 {
		log.Warn("no rows resolved", "rows", cr.Rows)
		return finish(StatusIngested), nil
	}

	n, err := p.store.BulkInsert(ctx, spec.Category, records)
	cr.Inserted = n
	if err != nil {
		return finish(StatusStorageFailed), err
	}

	log.Info("category ingested",
		"rows", cr.Rows,
		"inserted", cr.Inserted,
		"skipped", cr.Skipped,
		"failed", cr.Failed,
	)
	p.publish(ctx, log, records)
	return finish(StatusIngested), nil
}

func openSource(spec SourceSpec) (source.Table, error) {
	tbl, err := source.Open(spec.Path)
	if err != nil {
		return nil, err
	}
	if err := source.RequireColumns(tbl, spec.Strategy.RequiredColumns()...); err != nil {
		tbl.Close()
		return nil, err
	}
	return tbl, nil
}

// resolveRow isolates a panic in one row from the rest of the table.
func (p *Pipeline) resolveRow(ctx context.Context, spec SourceSpec, row source.Row) (poi domain.PointOfInterest, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &rowPanicError{value: r, stack: debug.Stack()}
		}
	}()
	return p.resolver.Resolve(ctx, spec, row)
}

type rowOutcome string

const (
	outcomeResolved rowOutcome = "resolved"
	outcomeSkipped  rowOutcome = "skipped"
	outcomeFailed   rowOutcome = "failed"
)

// classify logs a row result and maps it to an outcome. Incomplete rows and
// rows with bad data are skipped; faults outside the row's data are failures.
func (p *Pipeline) classify(log *slog.Logger, line int, err error) rowOutcome {
	var (
		outcome rowOutcome
		pe      *rowPanicError
	)
	switch {
	case err == nil:
		outcome = outcomeResolved
	case errors.Is(err, domain.ErrRowIncomplete):
		log.Debug("row incomplete, skipping", "row", line, "error", err)
		outcome = outcomeSkipped
	case errors.Is(err, domain.ErrRowMalformed):
		log.Warn("row malformed, skipping", "row", line, "error", err)
		outcome = outcomeSkipped
	case errors.Is(err, domain.ErrGeocodeNotFound):
		log.Warn("address not found, skipping", "row", line, "error", err)
		outcome = outcomeSkipped
	case errors.Is(err, domain.ErrGeocodeService), errors.Is(err, domain.ErrGeocodeMalformed):
		log.Warn("geocode failed, skipping", "row", line, "kind", domain.GeocodeKind(err), "error", err)
		outcome = outcomeFailed
	case errors.As(err, &pe):
		log.Error("row panicked, skipping", "row", line, "panic", pe.value, "stack", string(pe.stack))
		outcome = outcomeFailed
	default:
		log.Error("row failed, skipping", "row", line, "error", err, "trace", eris.ToString(err, true))
		outcome = outcomeFailed
	}
	return outcome
}

func (p *Pipeline) publish(ctx context.Context, log *slog.Logger, records []domain.PointOfInterest) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, records); err != nil {
		p.metrics.PublishErrors.Inc()
		log.Warn("publish failed, store remains authoritative", "records", len(records), "error", err)
	}
}

func (p *Pipeline) recordCategory(cr CategoryReport) {
	c := string(cr.Category)
	p.metrics.CategoryRuns.WithLabelValues(c, string(cr.Status)).Inc()
	p.metrics.CategoryDuration.WithLabelValues(c).Observe(cr.Duration.Seconds())
	p.metrics.RecordsInserted.WithLabelValues(c).Add(float64(cr.Inserted))
	p.metrics.RowsProcessed.WithLabelValues(c, string(outcomeResolved)).Add(float64(cr.Rows - cr.Skipped - cr.Failed))
	p.metrics.RowsProcessed.WithLabelValues(c, string(outcomeSkipped)).Add(float64(cr.Skipped))
	p.metrics.RowsProcessed.WithLabelValues(c, string(outcomeFailed)).Add(float64(cr.Failed))
}

type rowPanicError struct {
	value any
	stack []byte
}

func (e *rowPanicError) Error() string {
	return fmt.Sprintf("panic while resolving row: %v", e.value)
}
