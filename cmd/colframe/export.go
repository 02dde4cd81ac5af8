package main

import (
	"context"
	"io"
	"os"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/formats"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/observability"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type exportSummary struct {
	Name    string         `json:"name"`
	File    string         `json:"file"`
	Out     string         `json:"out"`
	Skipped int            `json:"skipped"`
	Export  *formats.Stats `json:"export"`
}

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Load a delimited file and write it as Parquet, Arrow, Avro or JSON lines",
		Long: `Load a delimited file into a columnar table, then write the table to
--out in the chosen format. The format defaults to the output file's
extension. A JSON summary of the export is printed unless --out is "-".

Example:
  colframe export --file data.csv --schema id:int32,amount:float32,flag:bool,color:string \
    --out data.parquet --export-compression zstd`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command) error {
		return a.runExport(cmd.Context(), a.pretty(cmd))
	})

	addSourceFlags(cmd)
	f := cmd.Flags()
	f.StringP("out", "o", "", `Output file, "-" for stdout (required)`)
	f.String("format", "", "Output format (parquet, arrow, avro, jsonl); defaults to the --out extension")
	f.String("export-compression", "", "Output compression; parquet and avro default to snappy")
	f.Int("batch-size", formats.DefaultWriterConfig().BatchSize, "Rows converted per write")
	return cmd
}

func (a *app) runExport(ctx context.Context, pretty bool) error {
	wc, err := a.cfg.Export.WriterConfig()
	if err != nil {
		return err
	}

	res, err := a.loadTable(ctx)
	if err != nil {
		return err
	}

	w, closeOut, err := openOutput(a.cfg.Export.Path, a.out)
	if err != nil {
		return err
	}

	_, span := observability.StartSpan(ctx, "table.export",
		attribute.String("format", string(wc.Format)),
		attribute.String("compression", string(wc.Compression)))
	stats, err := formats.Export(w, res.Table, wc)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}

	a.logger.Info("exported table",
		zap.String("format", string(stats.Format)),
		zap.Int64("rows", stats.Rows),
		zap.Int64("bytes", stats.Bytes),
		zap.Duration("duration", stats.Duration))

	if a.cfg.Export.Path == "-" {
		return nil
	}
	return json.Write(a.out, exportSummary{
		Name:    a.cfg.Name,
		File:    a.cfg.Source.Path,
		Out:     a.cfg.Export.Path,
		Skipped: len(res.Skipped),
		Export:  stats,
	}, pretty)
}

func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to create output").WithDetail("path", path)
	}
	return f, func() error {
		if err := f.Close(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to close output").WithDetail("path", path)
		}
		return nil
	}, nil
}
