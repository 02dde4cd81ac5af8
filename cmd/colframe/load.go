package main

import (
	"context"
	"io"
	"os"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/internal/pipeline"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/mmap"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/performance"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type columnSummary struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Nullable       bool   `json:"nullable,omitempty"`
	Bytes          int    `json:"bytes"`
	DictionarySize int    `json:"dictionary_size,omitempty"`
}

type loadSummary struct {
	Name          string                      `json:"name"`
	File          string                      `json:"file"`
	Rows          int                         `json:"rows"`
	Capacity      int                         `json:"capacity"`
	Lines         int64                       `json:"lines"`
	Blank         int64                       `json:"blank"`
	Skipped       int                         `json:"skipped"`
	SkippedRows   []int                       `json:"skipped_rows,omitempty"`
	BytesRead     int64                       `json:"bytes_read"`
	Workers       []pipeline.WorkerReport     `json:"workers"`
	Retries       int64                       `json:"retries"`
	Waits         int64                       `json:"waits"`
	Duration      string                      `json:"duration"`
	RowsPerSecond float64                     `json:"rows_per_second"`
	MemoryBytes   int64                       `json:"memory_bytes"`
	BytesPerRow   float64                     `json:"bytes_per_row"`
	Columns       []columnSummary             `json:"columns"`
	Compression   *columnar.CompressionReport `json:"compression,omitempty"`
	Memory        *performance.MemorySnapshot `json:"memory,omitempty"`
	Head          []map[string]any            `json:"head,omitempty"`
}

func newLoadCmd(a *app) *cobra.Command {
	var head int

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a delimited file and report table statistics",
		Long: `Load a delimited file into a columnar table and print a JSON summary:
row counts, skipped lines, per-column buffer sizes and load throughput.

Example:
  colframe load --file data.csv --schema id:int32,amount:float32,flag:bool,color:string --workers 8`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command) error {
		return a.runLoad(cmd.Context(), head, a.pretty(cmd))
	})

	addSourceFlags(cmd)
	f := cmd.Flags()
	f.IntVar(&head, "head", 0, "Include the first N rows in the summary")
	f.Bool("compress", false, "Report per-column compression ratios")
	f.String("compression", string(compression.Zstd), "Compression algorithm for --compress (none, gzip, snappy, lz4, zstd, s2)")
	f.Int("compression-level", int(compression.Default), "Compression level for --compress (1-9)")
	f.Bool("memory", false, "Report process memory after loading")
	return cmd
}

func (a *app) runLoad(ctx context.Context, head int, pretty bool) error {
	var before *performance.MemorySnapshot
	var monitor *performance.ResourceMonitor
	if a.cfg.Advanced.MemorySnapshot {
		var err error
		if monitor, err = performance.NewResourceMonitor(); err != nil {
			return err
		}
		before = monitor.Snapshot()
	}

	res, err := a.loadTable(ctx)
	if err != nil {
		return err
	}
	table := res.Table

	summary := loadSummary{
		Name:          a.cfg.Name,
		File:          a.cfg.Source.Path,
		Rows:          res.Rows,
		Capacity:      table.Capacity(),
		Lines:         res.Lines,
		Blank:         res.Blank,
		Skipped:       len(res.Skipped),
		SkippedRows:   res.Skipped,
		BytesRead:     res.BytesRead,
		Workers:       res.Workers,
		Retries:       res.Retries,
		Waits:         res.Waits,
		Duration:      res.Duration.String(),
		RowsPerSecond: res.RowsPerSecond,
		MemoryBytes:   table.MemoryUsage(),
		BytesPerRow:   table.MemoryPerRecord(),
	}
	for _, col := range table.Columns() {
		cs := columnSummary{
			Name:     col.Name(),
			Type:     col.Type().String(),
			Nullable: col.Nullable(),
			Bytes:    len(col.Bytes()),
		}
		if d := col.Dictionary(); d != nil {
			cs.DictionarySize = d.Len()
		}
		summary.Columns = append(summary.Columns, cs)
	}

	if a.cfg.Advanced.EnableCompression {
		comp, err := compression.NewCompressor(a.cfg.Advanced.CompressionConfig())
		if err != nil {
			return err
		}
		if summary.Compression, err = columnar.CompressionStats(table, comp); err != nil {
			return err
		}
	}

	if monitor != nil {
		summary.Memory = monitor.Snapshot()
		a.logger.Debug("memory after load",
			zap.Int64("heap_delta_bytes", summary.Memory.HeapDelta(before)),
			zap.Uint64("rss_bytes", summary.Memory.RSSBytes))
	}

	if head > 0 {
		summary.Head, _ = table.NewBatchIterator(head).NextBatch()
	}

	return json.Write(a.out, summary, pretty)
}

// loadTable validates the resolved config, sizes a table and runs the
// ingestion pipeline over the source file
func (a *app) loadTable(ctx context.Context) (*pipeline.Result, error) {
	cfg := a.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema, err := columnar.ParseSchema(cfg.Source.Schema)
	if err != nil {
		return nil, err
	}

	rows := cfg.Source.Rows
	if rows == 0 {
		if rows, err = mmap.CountFileLines(cfg.Source.Path); err != nil {
			return nil, err
		}
		a.logger.Debug("sized table from line count", zap.Int("rows", rows))
	}

	table, err := columnar.Allocate(rows, schema)
	if err != nil {
		return nil, err
	}

	r, closeSource, err := openSource(cfg.Source.Path, cfg.Source.Mmap)
	if err != nil {
		return nil, err
	}
	defer closeSource()

	p, err := pipeline.New(pipelineConfig(cfg), table, a.logger)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, r)
}

func openSource(path string, useMmap bool) (io.Reader, func(), error) {
	if useMmap {
		m, err := mmap.Open(path)
		if err != nil {
			return nil, nil, err
		}
		return m.NewReader(), func() { _ = m.Close() }, nil
	}

	f, err := os.Open(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open source").WithDetail("path", path)
	}
	return f, func() { _ = f.Close() }, nil
}
