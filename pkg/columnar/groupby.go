package columnar

import (
	"sort"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// Groups maps a stringified key to the row indices holding it, in row order.
// Map iteration order is unspecified; use Keys for a stable order.
type Groups map[string][]int

// Keys returns the group keys sorted lexically
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Count returns the number of rows in each group
func (g Groups) Count() map[string]int {
	out := make(map[string]int, len(g))
	for k, rows := range g {
		out[k] = len(rows)
	}
	return out
}

// GroupBy buckets every row of t by the decoded value of column in a single
// pass.
func GroupBy(t *Table, column string) (Groups, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}

	switch col.typ {
	case ColumnTypeString, ColumnTypeBool:
		return groupBySmallDomain(col, t.rowCount), nil
	}

	groups := make(Groups)
	for row := 0; row < t.rowCount; row++ {
		key := col.Key(row)
		groups[key] = append(groups[key], row)
	}
	return groups, nil
}

// groupBySmallDomain buckets by the raw one-byte cell, avoiding a string key
// per row. Null rows go to an extra bucket.
func groupBySmallDomain(col *Column, rows int) Groups {
	var buckets [MaxDictionarySize][]int
	var nulls []int
	for row := 0; row < rows; row++ {
		if col.IsNull(row) {
			nulls = append(nulls, row)
			continue
		}
		b := col.data[row]
		buckets[b] = append(buckets[b], row)
	}

	groups := make(Groups)
	for b, idx := range buckets {
		if len(idx) == 0 {
			continue
		}
		var key string
		if col.typ == ColumnTypeBool {
			key = "false"
			if b != 0 {
				key = "true"
			}
		} else {
			key, _ = col.dict.Lookup(uint8(b)) //nolint:gosec // G115: b < MaxDictionarySize
		}
		groups[key] = append(groups[key], idx...)
	}
	if len(nulls) > 0 {
		groups[NullKey] = append(groups[NullKey], nulls...)
	}
	return groups
}

// Sum adds up column over each group's rows in index order. Nulls contribute
// zero and bools count as 0/1; string columns cannot be summed.
func Sum(groups Groups, t *Table, column string) (map[string]float64, error) {
	col, err := numericColumn(t, column)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64, len(groups))
	for key, rows := range groups {
		var total float64
		for _, row := range rows {
			if row < 0 || row >= t.rowCount {
				return nil, errors.New(errors.ErrorTypeValidation, "group row index out of range").
					WithDetail("group", key).
					WithDetail("row", row)
			}
			total += col.Numeric(row)
		}
		sums[key] = total
	}
	return sums, nil
}

// SumLinear computes per-key totals of valueColumn grouped by keyColumn in
// one pass without materializing groups.
func SumLinear(t *Table, keyColumn, valueColumn string) (map[string]float64, error) {
	keyCol, err := t.Column(keyColumn)
	if err != nil {
		return nil, err
	}
	valCol, err := numericColumn(t, valueColumn)
	if err != nil {
		return nil, err
	}

	sums := make(map[string]float64)
	for row := 0; row < t.rowCount; row++ {
		sums[keyCol.Key(row)] += valCol.Numeric(row)
	}
	return sums, nil
}

func numericColumn(t *Table, column string) (*Column, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	if !col.typ.Numeric() {
		return nil, errors.New(errors.ErrorTypeValidation, "column is not numeric").
			WithDetail("column", column).
			WithDetail("type", col.typ.String())
	}
	return col, nil
}
