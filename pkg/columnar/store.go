package columnar

import (
	"sort"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// Table is an ordered set of fixed-width columns sharing one row count.
// Row capacity is fixed at allocation; Finalize trims it to the rows
// actually ingested and freezes the table.
type Table struct {
	schema   *Schema
	columns  []*Column
	byName   map[string]int
	capacity int
	rowCount int
	frozen   bool
}

// Allocate validates schema and allocates every column buffer for rowCount
// rows. An unsupported type fails here and nowhere later.
func Allocate(rowCount int, schema *Schema) (*Table, error) {
	if rowCount < 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "row count must not be negative").
			WithDetail("rows", rowCount)
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	t := &Table{
		schema:   schema,
		columns:  make([]*Column, len(schema.Fields)),
		byName:   make(map[string]int, len(schema.Fields)),
		capacity: rowCount,
		rowCount: rowCount,
	}
	for i, field := range schema.Fields {
		t.columns[i] = newColumn(field, rowCount)
		t.byName[field.Name] = i
	}
	return t, nil
}

// Schema returns the table schema
func (t *Table) Schema() *Schema { return t.schema }

// RowCount returns the number of rows
func (t *Table) RowCount() int { return t.rowCount }

// Capacity returns the row capacity fixed at allocation
func (t *Table) Capacity() int { return t.capacity }

// ColumnCount returns the number of columns
func (t *Table) ColumnCount() int { return len(t.columns) }

// Finalized reports whether Finalize has run
func (t *Table) Finalized() bool { return t.frozen }

// Columns returns the columns in schema order
func (t *Table) Columns() []*Column { return t.columns }

// ColumnNames returns column names in schema order
func (t *Table) ColumnNames() []string {
	return t.schema.Names()
}

// Column retrieves a column by name
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.byName[name]
	if !ok {
		return nil, errors.New(errors.ErrorTypeColumnNotFound, "column not found").WithDetail("column", name)
	}
	return t.columns[i], nil
}

// ColumnAt returns the column at schema position i
func (t *Table) ColumnAt(i int) *Column { return t.columns[i] }

func (t *Table) checkRow(row int) error {
	if row < 0 || row >= t.rowCount {
		return errors.New(errors.ErrorTypeValidation, "row index out of range").
			WithDetail("row", row).
			WithDetail("rows", t.rowCount)
	}
	return nil
}

// GetValue decodes a single cell
func (t *Table) GetValue(column string, row int) (any, error) {
	col, err := t.Column(column)
	if err != nil {
		return nil, err
	}
	if err := t.checkRow(row); err != nil {
		return nil, err
	}
	return col.Value(row), nil
}

// GetRow materializes row as a name->value map
func (t *Table) GetRow(row int) (map[string]any, error) {
	if err := t.checkRow(row); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(t.columns))
	for _, col := range t.columns {
		out[col.name] = col.Value(row)
	}
	return out, nil
}

// SetValue encodes v into a cell. Fails once the table is finalized.
func (t *Table) SetValue(column string, row int, v any) error {
	if t.frozen {
		return errors.New(errors.ErrorTypeValidation, "table is finalized").WithDetail("column", column)
	}
	col, err := t.Column(column)
	if err != nil {
		return err
	}
	return col.Encode(row, v)
}

// Finalize fixes the row count at rows, removes the skipped rows (row
// indices in [0, rows), any order) while preserving the order of the rest,
// renumbers dictionaries into first-seen row order and freezes the table.
func (t *Table) Finalize(rows int, skipped []int) error {
	if t.frozen {
		return errors.New(errors.ErrorTypeValidation, "table is already finalized")
	}
	if rows < 0 || rows > t.capacity {
		return errors.New(errors.ErrorTypeCapacityOverflow, "row count exceeds table capacity").
			WithDetail("rows", rows).
			WithDetail("capacity", t.capacity)
	}

	if len(skipped) > 0 {
		skipped = append([]int(nil), skipped...)
		sort.Ints(skipped)
		uniq := skipped[:1]
		for _, s := range skipped[1:] {
			if s != uniq[len(uniq)-1] {
				uniq = append(uniq, s)
			}
		}
		skipped = uniq
		if skipped[0] < 0 || skipped[len(skipped)-1] >= rows {
			return errors.New(errors.ErrorTypeValidation, "skipped row index out of range").
				WithDetail("rows", rows)
		}
	}

	keep := rows - len(skipped)
	for _, col := range t.columns {
		col.compact(keep, skipped)
		col.canonicalize()
	}
	t.rowCount = keep
	t.frozen = true
	return nil
}

// MemoryUsage returns total memory usage in bytes
func (t *Table) MemoryUsage() int64 {
	// struct and name index overhead
	total := int64(64 + len(t.columns)*32)
	for _, col := range t.columns {
		total += col.MemoryUsage()
	}
	return total
}

// MemoryPerRecord returns average memory usage per row
func (t *Table) MemoryPerRecord() float64 {
	if t.rowCount == 0 {
		return 0
	}
	return float64(t.MemoryUsage()) / float64(t.rowCount)
}

// Iterator provides sequential access to rows
type Iterator struct {
	table  *Table
	index  int
	buffer map[string]any
}

// NewIterator creates a new iterator over the table
func (t *Table) NewIterator() *Iterator {
	return &Iterator{
		table:  t,
		index:  -1,
		buffer: make(map[string]any, len(t.columns)),
	}
}

// Next advances to the next row
func (it *Iterator) Next() bool {
	it.index++
	return it.index < it.table.rowCount
}

// Index returns the current row index
func (it *Iterator) Index() int { return it.index }

// Row returns the current row. The map is reused across calls.
func (it *Iterator) Row() map[string]any {
	for _, col := range it.table.columns {
		it.buffer[col.name] = col.Value(it.index)
	}
	return it.buffer
}

// BatchIterator provides batch access to rows
type BatchIterator struct {
	table     *Table
	batchSize int
	index     int
}

// NewBatchIterator creates a new batch iterator
func (t *Table) NewBatchIterator(batchSize int) *BatchIterator {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &BatchIterator{
		table:     t,
		batchSize: batchSize,
	}
}

// NextBatch returns the next batch of rows
func (it *BatchIterator) NextBatch() ([]map[string]any, bool) {
	if it.index >= it.table.rowCount {
		return nil, false
	}

	endIndex := it.index + it.batchSize
	if endIndex > it.table.rowCount {
		endIndex = it.table.rowCount
	}

	batch := make([]map[string]any, 0, endIndex-it.index)
	for i := it.index; i < endIndex; i++ {
		row := make(map[string]any, len(it.table.columns))
		for _, col := range it.table.columns {
			row[col.name] = col.Value(i)
		}
		batch = append(batch, row)
	}

	it.index = endIndex
	return batch, true
}
