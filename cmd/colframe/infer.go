package main

import (
	"fmt"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/schema"
	"github.com/spf13/cobra"
)

type inferOptions struct {
	sample     int
	confidence float64
	schemaOnly bool
}

func newInferCmd(a *app) *cobra.Command {
	var opts inferOptions

	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Guess a schema from the first lines of a delimited file",
		Long: `Sample the first lines of a delimited file and print the narrowest
schema that fits them, with per-column statistics. With --header the
first line supplies column names; otherwise columns are named col1, col2...

Example:
  colframe load -f data.csv -s "$(colframe infer -f data.csv --schema-only)"`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command) error {
		return a.runInfer(opts, a.pretty(cmd))
	})

	addInputFlags(cmd)
	f := cmd.Flags()
	f.IntVar(&opts.sample, "sample", schema.DefaultSampleSize, "Number of data lines to examine")
	f.Float64Var(&opts.confidence, "confidence", 1.0, "Fraction of values that must parse for a column to get a type")
	f.BoolVar(&opts.schemaOnly, "schema-only", false, "Print only the schema string")
	return cmd
}

func (a *app) runInfer(opts inferOptions, pretty bool) error {
	src := a.cfg.Source
	if err := src.ValidateInput(); err != nil {
		return err
	}

	r, closeSource, err := openSource(src.Path, src.Mmap)
	if err != nil {
		return err
	}
	defer closeSource()

	engine := schema.NewInferenceEngine(a.logger, schema.Options{
		Delimiter:  src.DelimiterByte(),
		Quote:      src.QuoteByte(),
		Header:     src.Header,
		SampleSize: opts.sample,
		Confidence: opts.confidence,
	})
	res, err := engine.Infer(r)
	if err != nil {
		return err
	}

	if opts.schemaOnly {
		if _, err := fmt.Fprintln(a.out, res.Spec); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to write schema")
		}
		return nil
	}
	return json.Write(a.out, res, pretty)
}
