package pipeline

import (
	"bytes"
	"math"
	"strconv"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/linesplit"
	stringpool "github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/strings"
)

// cell is one parsed field waiting to be written. Numbers and bools are
// kept as raw bits; string fields stay as bytes until the whole line parses.
type cell struct {
	null bool
	bits uint64
	str  []byte
}

// decoder turns one line into one table row. Each worker owns a decoder;
// its buffers are reused across lines.
type decoder struct {
	columns  []*columnar.Column
	splitter *linesplit.FieldSplitter
	cells    []cell
}

func newDecoder(table *columnar.Table, delimiter, quote byte) *decoder {
	return &decoder{
		columns:  table.Columns(),
		splitter: linesplit.NewFieldSplitter(delimiter, quote, table.ColumnCount()),
		cells:    make([]cell, table.ColumnCount()),
	}
}

// decode splits and parses line, then writes every field at row. Nothing is
// written and no dictionary entry is added unless every field parses. The
// returned error is a malformed-line error, or a capacity error when a
// dictionary is full.
func (d *decoder) decode(line []byte, row int) error {
	fields, err := d.splitter.Split(line)
	if err != nil {
		return err
	}
	if len(fields) != len(d.columns) {
		return errors.New(errors.ErrorTypeMalformedLine, "field count mismatch").
			WithDetail("expected", len(d.columns)).
			WithDetail("got", len(fields))
	}
	for i, col := range d.columns {
		if err := parseField(col, fields[i], &d.cells[i]); err != nil {
			return err
		}
	}

	for i, col := range d.columns {
		if err := writeCell(col, &d.cells[i], row); err != nil {
			return err
		}
	}
	return nil
}

func parseField(col *columnar.Column, field []byte, c *cell) error {
	*c = cell{}
	if len(field) == 0 && col.Nullable() {
		c.null = true
		return nil
	}

	if col.Type() == columnar.ColumnTypeString {
		if string(field) == columnar.NullKey {
			return errors.New(errors.ErrorTypeMalformedLine, "field holds the reserved null key").
				WithDetail("column", col.Name())
		}
		c.str = field
		return nil
	}

	s := stringpool.BytesToString(bytes.TrimSpace(field))
	var err error
	switch col.Type() {
	case columnar.ColumnTypeInt32:
		var v int64
		if v, err = strconv.ParseInt(s, 10, 32); err == nil {
			c.bits = uint64(v) //nolint:gosec // G115: raw bits, narrowed on write
		}
	case columnar.ColumnTypeInt64:
		var v int64
		if v, err = strconv.ParseInt(s, 10, 64); err == nil {
			c.bits = uint64(v) //nolint:gosec // G115: raw bits
		}
	case columnar.ColumnTypeFloat32, columnar.ColumnTypeFloat64:
		bitSize := 64
		if col.Type() == columnar.ColumnTypeFloat32 {
			bitSize = 32
		}
		var v float64
		if v, err = strconv.ParseFloat(s, bitSize); err == nil {
			c.bits = math.Float64bits(v)
		}
	case columnar.ColumnTypeBool:
		var v bool
		if v, err = strconv.ParseBool(s); err == nil && v {
			c.bits = 1
		}
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeMalformedLine, "unparsable field").
			WithDetail("column", col.Name()).
			WithDetail("type", col.Type().String()).
			WithDetail("value", string(field))
	}
	return nil
}

func writeCell(col *columnar.Column, c *cell, row int) error {
	if c.null {
		col.SetNull(row)
		return nil
	}
	switch col.Type() {
	case columnar.ColumnTypeString:
		idx, err := col.Dictionary().InternBytes(c.str)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeCapacityOverflow, "dictionary overflow").
				WithDetail("column", col.Name())
		}
		col.SetDictIndex(row, idx)
	case columnar.ColumnTypeInt32:
		col.SetInt32(row, int32(c.bits)) //nolint:gosec // G115: parsed with bitSize 32
	case columnar.ColumnTypeInt64:
		col.SetInt64(row, int64(c.bits)) //nolint:gosec // G115: raw bits
	case columnar.ColumnTypeFloat32:
		col.SetFloat32(row, float32(math.Float64frombits(c.bits)))
	case columnar.ColumnTypeFloat64:
		col.SetFloat64(row, math.Float64frombits(c.bits))
	case columnar.ColumnTypeBool:
		col.SetBool(row, c.bits == 1)
	}
	return nil
}
