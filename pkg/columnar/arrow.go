package columnar

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// ArrowSchema converts the table schema to an Arrow schema. Dictionary
// string columns are exported as plain utf8.
func (t *Table) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.columns))
	for _, col := range t.columns {
		fields = append(fields, arrow.Field{
			Name:     col.name,
			Type:     arrowType(col.typ),
			Nullable: col.nullable,
		})
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t ColumnType) arrow.DataType {
	switch t {
	case ColumnTypeInt32:
		return arrow.PrimitiveTypes.Int32
	case ColumnTypeInt64:
		return arrow.PrimitiveTypes.Int64
	case ColumnTypeFloat32:
		return arrow.PrimitiveTypes.Float32
	case ColumnTypeFloat64:
		return arrow.PrimitiveTypes.Float64
	case ColumnTypeBool:
		return arrow.FixedWidthTypes.Boolean
	default:
		return arrow.BinaryTypes.String
	}
}

// ToArrowRecord copies the table into an Arrow record. A nil allocator uses
// the Go allocator. The caller must Release the record.
func (t *Table) ToArrowRecord(mem memory.Allocator) (arrow.Record, error) {
	return t.ToArrowRecordRange(mem, 0, t.rowCount)
}

// ToArrowRecordRange copies rows [start, end) into an Arrow record
func (t *Table) ToArrowRecordRange(mem memory.Allocator, start, end int) (arrow.Record, error) {
	if start < 0 || end > t.rowCount || start > end {
		return nil, errors.New(errors.ErrorTypeValidation, "row range out of bounds").
			WithDetail("start", start).
			WithDetail("end", end).
			WithDetail("rows", t.rowCount)
	}
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	builder := array.NewRecordBuilder(mem, t.ArrowSchema())
	defer builder.Release()

	for i, col := range t.columns {
		if err := appendColumn(builder.Field(i), col, start, end); err != nil {
			return nil, err
		}
	}
	return builder.NewRecord(), nil
}

func appendColumn(b array.Builder, col *Column, start, end int) error {
	b.Reserve(end - start)
	for row := start; row < end; row++ {
		if col.IsNull(row) {
			b.AppendNull()
			continue
		}
		switch fb := b.(type) {
		case *array.Int32Builder:
			fb.Append(col.Int32(row))
		case *array.Int64Builder:
			fb.Append(col.Int64(row))
		case *array.Float32Builder:
			fb.Append(col.Float32(row))
		case *array.Float64Builder:
			fb.Append(col.Float64(row))
		case *array.BooleanBuilder:
			fb.Append(col.Bool(row))
		case *array.StringBuilder:
			fb.Append(col.String(row))
		default:
			return errors.Newf(errors.ErrorTypeInternal, "unexpected arrow builder %T", b).
				WithDetail("column", col.name)
		}
	}
	return nil
}
