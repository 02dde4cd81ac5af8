package main

import (
	"context"
	"time"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type benchOptions struct {
	workers    []int
	iterations int
}

// benchResult summarizes the iterations run with one worker count
type benchResult struct {
	Workers       int     `json:"workers"`
	Iterations    int     `json:"iterations"`
	Rows          int     `json:"rows"`
	Best          string  `json:"best"`
	Mean          string  `json:"mean"`
	RowsPerSecond float64 `json:"rows_per_second"`
	Speedup       float64 `json:"speedup"`
}

func newBenchCmd(a *app) *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Time repeated loads of a file across worker counts",
		Long: `Load the same file several times for each worker count and print the
best and mean load time, rows per second of the best run and the speedup
over the first worker count.

Example:
  colframe bench -f data.csv -s id:int32,amount:float32,flag:bool,color:string \
    --worker-counts 1,2,4,8 --iterations 3`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command) error {
		return a.runBench(cmd.Context(), opts, a.pretty(cmd))
	})

	addSourceFlags(cmd)
	f := cmd.Flags()
	f.IntSliceVar(&opts.workers, "worker-counts", []int{1, 2, 4, 8}, "Worker counts to compare")
	f.IntVar(&opts.iterations, "iterations", 3, "Loads per worker count")
	return cmd
}

func (a *app) runBench(ctx context.Context, opts benchOptions, pretty bool) error {
	if opts.iterations < 1 {
		return errors.New(errors.ErrorTypeValidation, "--iterations must be at least 1").
			WithDetail("iterations", opts.iterations)
	}
	if len(opts.workers) == 0 {
		return errors.New(errors.ErrorTypeValidation, "--worker-counts must not be empty")
	}
	for _, w := range opts.workers {
		if w < 1 {
			return errors.New(errors.ErrorTypeValidation, "worker counts must be positive").WithDetail("workers", w)
		}
	}

	results := make([]benchResult, 0, len(opts.workers))
	for _, workers := range opts.workers {
		a.cfg.Performance.Workers = workers

		var best, total time.Duration
		rows := 0
		for i := 0; i < opts.iterations; i++ {
			res, err := a.loadTable(ctx)
			if err != nil {
				return err
			}
			rows = res.Rows
			total += res.Duration
			if best == 0 || res.Duration < best {
				best = res.Duration
			}
		}

		r := benchResult{
			Workers:    workers,
			Iterations: opts.iterations,
			Rows:       rows,
			Best:       best.String(),
			Mean:       (total / time.Duration(opts.iterations)).String(),
		}
		if best > 0 {
			r.RowsPerSecond = float64(rows) / best.Seconds()
		}
		results = append(results, r)
		a.logger.Info("bench step complete",
			zap.Int("workers", workers),
			zap.Duration("best", best),
			zap.Float64("rows_per_second", r.RowsPerSecond))
	}

	if base := results[0].RowsPerSecond; base > 0 {
		for i := range results {
			results[i].Speedup = results[i].RowsPerSecond / base
		}
	}
	return json.Write(a.out, results, pretty)
}
