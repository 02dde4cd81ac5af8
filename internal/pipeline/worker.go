package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// worker consumes one staging region and writes decoded rows into the table
type worker struct {
	id           int
	region       *stagingRegion
	decoder      *decoder
	ignoreErrors bool
	logger       *zap.Logger

	state   atomic.Int32
	rows    int64
	skipped []int
	bytes   int64

	rowsDecoded prometheus.Counter
	rowsSkipped prometheus.Counter
}

func newWorker(id int, region *stagingRegion, table *columnar.Table, cfg Config, logger *zap.Logger) *worker {
	label := metrics.WorkerLabel(id)
	return &worker{
		id:           id,
		region:       region,
		decoder:      newDecoder(table, cfg.Delimiter, cfg.Quote),
		ignoreErrors: cfg.IgnoreErrors,
		logger:       logger.With(zap.Int("worker_id", id)),
		rowsDecoded:  metrics.RowsDecoded.WithLabelValues(label),
		rowsSkipped:  metrics.RowsSkipped.WithLabelValues(label),
	}
}

// State returns the worker's current lifecycle state
func (w *worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

// run blocks on the region's notify channel, decoding whatever has been
// committed each time it wakes. After the completion message it drains the
// region once more and stops.
func (w *worker) run(ctx context.Context) (WorkerReport, error) {
	w.logger.Debug("worker started")
	w.setState(WorkerPolling)

	for {
		if err := w.drain(); err != nil {
			return w.report(), err
		}

		select {
		case <-w.region.notify:
		case c := <-w.region.done:
			w.setState(WorkerDraining)
			if err := w.drain(); err != nil {
				return w.report(), err
			}
			if consumed := int64(w.region.read.Load()); consumed != c.Lines { //nolint:gosec // G115: slot counts fit in int64
				return w.report(), errors.New(errors.ErrorTypeInternal, "worker finished with unconsumed lines").
					WithDetail("worker", w.id).
					WithDetail("consumed", consumed).
					WithDetail("committed", c.Lines)
			}
			w.bytes = c.TotalBytes
			w.setState(WorkerDone)
			w.logger.Debug("worker finished",
				zap.Int64("rows", w.rows),
				zap.Int("skipped", len(w.skipped)),
				zap.Int64("bytes", c.TotalBytes))
			return w.report(), nil
		case <-ctx.Done():
			return w.report(), ctx.Err()
		}
	}
}

// drain decodes every committed slot not yet consumed
func (w *worker) drain() error {
	from, to := w.region.pending()
	if from == to {
		return nil
	}
	if w.State() == WorkerPolling {
		w.setState(WorkerProcessing)
		defer w.setState(WorkerPolling)
	}

	var decoded, skipped int
	defer func() {
		w.rowsDecoded.Add(float64(decoded))
		w.rowsSkipped.Add(float64(skipped))
	}()

	for i := from; i < to; i++ {
		sl, line := w.region.line(i)
		err := w.decoder.decode(line, sl.row)
		w.region.release(i, sl)

		if err == nil {
			decoded++
			w.rows++
			continue
		}

		if w.ignoreErrors && errors.IsType(err, errors.ErrorTypeMalformedLine) {
			skipped++
			w.skipped = append(w.skipped, sl.row)
			w.logger.Debug("skipping malformed line", zap.Int("row", sl.row), zap.Error(err))
			continue
		}

		var e *errors.Error
		if errors.As(err, &e) {
			e.WithDetail("row", sl.row).WithDetail("worker", w.id)
		}
		return err
	}
	return nil
}

func (w *worker) report() WorkerReport {
	return WorkerReport{
		WorkerID: w.id,
		Rows:     w.rows,
		Skipped:  int64(len(w.skipped)),
		Bytes:    w.bytes,
	}
}
