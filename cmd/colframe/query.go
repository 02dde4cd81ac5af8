package main

import (
	"context"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/metrics"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/observability"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type queryOptions struct {
	groupBy string
	sum     string
	rows    bool
}

func newQueryCmd(a *app) *cobra.Command {
	var opts queryOptions

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Group a loaded file by one column and sum another",
		Long: `Load a delimited file, group rows by the decoded value of one column and
print a JSON object keyed by group. With --sum each group maps to the sum
of that column, otherwise to its row count. Keys are sorted.

Example:
  colframe query --file data.csv --schema id:int32,amount:float32,flag:bool,color:string \
    --group-by color --sum amount`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command) error {
		return a.runQuery(cmd.Context(), opts, a.pretty(cmd))
	})

	addSourceFlags(cmd)
	f := cmd.Flags()
	f.StringVarP(&opts.groupBy, "group-by", "g", "", "Column to group by (required)")
	f.StringVar(&opts.sum, "sum", "", "Numeric column to sum per group")
	f.BoolVar(&opts.rows, "row-indexes", false, "Print each group's row indexes instead of an aggregate")
	_ = cmd.MarkFlagRequired("group-by")
	return cmd
}

func (a *app) runQuery(ctx context.Context, opts queryOptions, pretty bool) error {
	res, err := a.loadTable(ctx)
	if err != nil {
		return err
	}
	table := res.Table

	_, span := observability.StartSpan(ctx, "table.query",
		attribute.String("group_by", opts.groupBy),
		attribute.String("sum", opts.sum))
	out, err := a.aggregate(table, opts)
	observability.EndSpan(span, err)
	if err != nil {
		return err
	}
	return json.Write(a.out, out, pretty)
}

func (a *app) aggregate(table *columnar.Table, opts queryOptions) (any, error) {
	if opts.rows && opts.sum != "" {
		return nil, errors.New(errors.ErrorTypeValidation, "--row-indexes and --sum are exclusive")
	}

	timer := metrics.NewTimer("group_by")
	groups, err := columnar.GroupBy(table, opts.groupBy)
	metrics.QueryDuration.WithLabelValues("group_by").Observe(timer.Stop().Seconds())
	if err != nil {
		return nil, err
	}
	a.logger.Debug("grouped table",
		zap.String("column", opts.groupBy),
		zap.Int("groups", len(groups)),
		zap.Duration("duration", timer.Stop()))

	switch {
	case opts.rows:
		return groups, nil
	case opts.sum != "":
		timer = metrics.NewTimer("sum")
		sums, err := columnar.Sum(groups, table, opts.sum)
		metrics.QueryDuration.WithLabelValues("sum").Observe(timer.Stop().Seconds())
		return sums, err
	default:
		return groups.Count(), nil
	}
}
