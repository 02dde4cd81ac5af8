package pipeline

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/linesplit"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/metrics"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ctxCheckInterval is how many lines the coordinator dispatches between
// checks for a failed worker
const ctxCheckInterval = 4096

// Pipeline ingests one input stream into one table. It is single use: the
// table is finalized when Run succeeds.
type Pipeline struct {
	cfg     Config
	table   *columnar.Table
	logger  *zap.Logger
	started atomic.Bool
	workers atomic.Pointer[[]*worker]
}

// dispatchStats is owned by the coordinator goroutine until Run reads it
// after the group has finished
type dispatchStats struct {
	lines   int64
	rows    int
	blank   int64
	bytes   int64
	retries int64
	waits   int64
}

// New validates cfg and prepares a pipeline that writes into table. The
// table must not be finalized.
func New(cfg Config, table *columnar.Table, logger *zap.Logger) (*Pipeline, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, errors.New(errors.ErrorTypeValidation, "table is required")
	}
	if table.Finalized() {
		return nil, errors.New(errors.ErrorTypeValidation, "table is already finalized")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		cfg:    cfg,
		table:  table,
		logger: logger.With(zap.String("component", "ingest-pipeline")),
	}, nil
}

// Config returns the effective configuration
func (p *Pipeline) Config() Config {
	return p.cfg
}

// WorkerStates reports each worker's current state, or nil before Run
func (p *Pipeline) WorkerStates() []WorkerState {
	ws := p.workers.Load()
	if ws == nil {
		return nil
	}
	states := make([]WorkerState, len(*ws))
	for i, w := range *ws {
		states[i] = w.State()
	}
	return states
}

// Run reads r to the end, decodes every data line into the table and
// finalizes it. On any error the table is left unfinalized and no Result
// is returned.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (result *Result, err error) {
	if !p.started.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrorTypeValidation, "pipeline has already run")
	}

	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.Int("workers", p.cfg.Workers),
		attribute.Int("staging_bytes", p.cfg.StagingBytes),
		attribute.Int("row_capacity", p.table.Capacity()),
		attribute.String("overflow", string(p.cfg.Overflow)),
	)
	timer := metrics.NewTimer("ingest")
	rate := metrics.NewThroughputTracker("ingest")
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.IngestDuration.WithLabelValues(status).Observe(timer.Stop().Seconds())
		observability.EndSpan(span, err)
	}()

	p.logger.Info("starting ingestion",
		zap.Int("workers", p.cfg.Workers),
		zap.Int("staging_bytes", p.cfg.StagingBytes),
		zap.Int("staging_slots", p.cfg.StagingSlots),
		zap.Int("row_capacity", p.table.Capacity()),
		zap.Bool("ignore_errors", p.cfg.IgnoreErrors))

	anySpace := make(chan struct{}, 1)
	regions := make([]*stagingRegion, p.cfg.Workers)
	workers := make([]*worker, p.cfg.Workers)
	for i := range regions {
		regions[i] = newStagingRegion(p.cfg.StagingBytes, p.cfg.StagingSlots, anySpace)
		workers[i] = newWorker(i, regions[i], p.table, p.cfg, p.logger)
	}
	p.workers.Store(&workers)
	defer func() {
		for _, region := range regions {
			region.free()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	reports := make([]WorkerReport, len(workers))
	for i, w := range workers {
		g.Go(func() error {
			rep, err := w.run(gctx)
			reports[i] = rep
			return err
		})
	}

	var stats dispatchStats
	g.Go(func() error {
		return p.dispatch(gctx, r, regions, anySpace, &stats)
	})

	if err := g.Wait(); err != nil {
		p.logger.Error("ingestion failed",
			zap.Error(err),
			zap.Int("rows_dispatched", stats.rows),
			zap.Duration("duration", timer.Stop()))
		return nil, err
	}

	var skipped []int
	for _, w := range workers {
		skipped = append(skipped, w.skipped...)
	}

	_, fspan := observability.StartSpan(ctx, "table.finalize",
		attribute.Int("rows", stats.rows),
		attribute.Int("skipped", len(skipped)))
	err = p.table.Finalize(stats.rows, skipped)
	observability.EndSpan(fspan, err)
	if err != nil {
		return nil, err
	}
	recordTableMetrics(p.table)
	rate.Increment(int64(p.table.RowCount()))

	result = &Result{
		Table:         p.table,
		Lines:         stats.lines,
		Blank:         stats.blank,
		Rows:          p.table.RowCount(),
		Skipped:       skipped,
		BytesRead:     stats.bytes,
		Retries:       stats.retries,
		Waits:         stats.waits,
		Workers:       reports,
		Duration:      timer.Stop(),
		RowsPerSecond: rate.GetAndReset(),
	}
	span.SetAttributes(
		attribute.Int("rows", result.Rows),
		attribute.Int("skipped", len(skipped)),
		attribute.Int64("bytes_read", stats.bytes),
		attribute.Int64("blank_lines", stats.blank),
	)
	p.logger.Info("ingestion complete",
		zap.Int64("lines", stats.lines),
		zap.Int("rows", result.Rows),
		zap.Int("skipped", len(skipped)),
		zap.Int64("blank_lines", stats.blank),
		zap.Int64("retries", stats.retries),
		zap.Int64("backpressure_waits", stats.waits),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// dispatch is the coordinator loop. Every data line gets the next global
// row index and goes to the next worker in round-robin order.
func (p *Pipeline) dispatch(ctx context.Context, r io.Reader, regions []*stagingRegion, anySpace chan struct{}, st *dispatchStats) error {
	sc := linesplit.NewScanner(r, p.cfg.ChunkSize)
	defer sc.Close()
	capacity := p.table.Capacity()
	skipHeader := p.cfg.Header
	next := 0

	for sc.Next() {
		line := sc.Line()
		if skipHeader {
			skipHeader = false
			continue
		}
		if len(line) == 0 {
			st.blank++
			continue
		}

		row := st.rows
		if row >= capacity {
			return errors.New(errors.ErrorTypeCapacityOverflow, "input has more rows than the table capacity").
				WithDetail("capacity", capacity).
				WithDetail("line", sc.Lines())
		}
		if len(line) > p.cfg.StagingBytes {
			return errors.New(errors.ErrorTypeCapacityOverflow, "line exceeds staging capacity").
				WithDetail("line", sc.Lines()).
				WithDetail("length", len(line)).
				WithDetail("staging_bytes", p.cfg.StagingBytes)
		}

		if err := p.place(ctx, regions, anySpace, next, line, row, st); err != nil {
			return err
		}
		st.rows++
		next++
		if next == len(regions) {
			next = 0
		}

		if st.rows%ctxCheckInterval == 0 {
			metrics.LinesDispatched.Add(ctxCheckInterval)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	metrics.LinesDispatched.Add(float64(st.rows % ctxCheckInterval))
	st.lines = sc.Lines()
	st.bytes = sc.BytesRead()
	if err := sc.Err(); err != nil {
		return err
	}

	for _, region := range regions {
		region.complete()
	}
	return nil
}

// place commits line to regions[assigned], applying the overflow policy
// when that region is full. It only gives up when ctx is done.
func (p *Pipeline) place(ctx context.Context, regions []*stagingRegion, anySpace chan struct{}, assigned int, line []byte, row int, st *dispatchStats) error {
	n := len(regions)
	for {
		if regions[assigned].tryPush(line, row) {
			return nil
		}

		wait := regions[assigned].space
		if p.cfg.Overflow == OverflowRetry {
			for k := 1; k < n; k++ {
				if regions[(assigned+k)%n].tryPush(line, row) {
					st.retries++
					metrics.StagingRetries.Inc()
					return nil
				}
			}
			wait = anySpace
		}

		st.waits++
		metrics.BackpressureWaits.WithLabelValues(metrics.WorkerLabel(assigned)).Inc()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func recordTableMetrics(t *columnar.Table) {
	metrics.TableRows.Set(float64(t.RowCount()))
	for _, col := range t.Columns() {
		metrics.ColumnBytes.WithLabelValues(col.Name(), col.Type().String()).Set(float64(len(col.Bytes())))
	}
}
