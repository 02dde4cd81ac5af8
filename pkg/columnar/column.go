package columnar

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// NullKey is the group key used for null cells. It is a lone NUL byte,
// which dictionaries refuse to store, so no value can share the null group.
const NullKey = "\x00"

// Column is one fixed-width buffer holding a single attribute for every row.
// Cell i lives at data[i*width : (i+1)*width], little-endian.
type Column struct {
	name     string
	typ      ColumnType
	width    int
	nullable bool
	rows     int
	data     []byte
	nulls    []byte
	dict     *Dictionary
}

func newColumn(field FieldSchema, rows int) *Column {
	c := &Column{
		name:     field.Name,
		typ:      field.Type,
		width:    field.Type.Width(),
		nullable: field.Nullable,
		rows:     rows,
	}
	c.data = make([]byte, rows*c.width)
	if c.nullable {
		c.nulls = make([]byte, rows)
	}
	if c.typ == ColumnTypeString {
		c.dict = NewDictionary()
	}
	return c
}

// Name returns the column name
func (c *Column) Name() string { return c.name }

// Type returns the column type
func (c *Column) Type() ColumnType { return c.typ }

// Width returns the element byte width
func (c *Column) Width() int { return c.width }

// Nullable reports whether the column tracks nulls
func (c *Column) Nullable() bool { return c.nullable }

// Len returns the number of rows
func (c *Column) Len() int { return c.rows }

// Dictionary returns the column dictionary, nil for non-string columns
func (c *Column) Dictionary() *Dictionary { return c.dict }

// Bytes exposes the raw cell buffer. The slice aliases column storage.
func (c *Column) Bytes() []byte { return c.data }

// MemoryUsage returns the bytes held by the column
func (c *Column) MemoryUsage() int64 {
	total := int64(cap(c.data) + cap(c.nulls) + len(c.name))
	if c.dict != nil {
		total += c.dict.MemoryUsage()
	}
	return total
}

// The setters below are the decode hot path. They assume row is in range;
// Table.SetValue and Encode are the checked entry points.

// SetInt32 stores v at row
func (c *Column) SetInt32(row int, v int32) {
	binary.LittleEndian.PutUint32(c.data[row*4:], uint32(v)) //nolint:gosec // G115: bit-preserving
	c.clearNull(row)
}

// SetInt64 stores v at row
func (c *Column) SetInt64(row int, v int64) {
	binary.LittleEndian.PutUint64(c.data[row*8:], uint64(v)) //nolint:gosec // G115: bit-preserving
	c.clearNull(row)
}

// SetFloat32 stores v at row
func (c *Column) SetFloat32(row int, v float32) {
	binary.LittleEndian.PutUint32(c.data[row*4:], math.Float32bits(v))
	c.clearNull(row)
}

// SetFloat64 stores v at row
func (c *Column) SetFloat64(row int, v float64) {
	binary.LittleEndian.PutUint64(c.data[row*8:], math.Float64bits(v))
	c.clearNull(row)
}

// SetBool stores v at row as a single 0/1 byte
func (c *Column) SetBool(row int, v bool) {
	if v {
		c.data[row] = 1
	} else {
		c.data[row] = 0
	}
	c.clearNull(row)
}

// SetDictIndex stores a dictionary index at row
func (c *Column) SetDictIndex(row int, idx uint8) {
	c.data[row] = idx
	c.clearNull(row)
}

// SetNull marks row as null and zeroes its cell
func (c *Column) SetNull(row int) {
	clear(c.data[row*c.width : (row+1)*c.width])
	c.nulls[row] = 1
}

func (c *Column) clearNull(row int) {
	if c.nulls != nil {
		c.nulls[row] = 0
	}
}

// IsNull reports whether row holds a null
func (c *Column) IsNull(row int) bool {
	return c.nulls != nil && c.nulls[row] != 0
}

// Int32 decodes row of an int32 column
func (c *Column) Int32(row int) int32 {
	return int32(binary.LittleEndian.Uint32(c.data[row*4:])) //nolint:gosec // G115: bit-preserving
}

// Int64 decodes row of an int64 column
func (c *Column) Int64(row int) int64 {
	return int64(binary.LittleEndian.Uint64(c.data[row*8:])) //nolint:gosec // G115: bit-preserving
}

// Float32 decodes row of a float32 column
func (c *Column) Float32(row int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(c.data[row*4:]))
}

// Float64 decodes row of a float64 column
func (c *Column) Float64(row int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(c.data[row*8:]))
}

// Bool decodes row of a bool column
func (c *Column) Bool(row int) bool {
	return c.data[row] != 0
}

// DictIndex returns the raw dictionary index at row
func (c *Column) DictIndex(row int) uint8 {
	return c.data[row]
}

// String decodes row of a string column through its dictionary
func (c *Column) String(row int) string {
	s, _ := c.dict.Lookup(c.data[row])
	return s
}

// Value decodes row into its Go value: int32, int64, float32, float64, bool,
// string, or nil for a null cell.
func (c *Column) Value(row int) any {
	if c.IsNull(row) {
		return nil
	}
	switch c.typ {
	case ColumnTypeInt32:
		return c.Int32(row)
	case ColumnTypeInt64:
		return c.Int64(row)
	case ColumnTypeFloat32:
		return c.Float32(row)
	case ColumnTypeFloat64:
		return c.Float64(row)
	case ColumnTypeBool:
		return c.Bool(row)
	case ColumnTypeString:
		return c.String(row)
	}
	return nil
}

// Numeric returns the cell as float64 for aggregation. Nulls read as 0 and
// bools as 0/1.
func (c *Column) Numeric(row int) float64 {
	if c.IsNull(row) {
		return 0
	}
	switch c.typ {
	case ColumnTypeInt32:
		return float64(c.Int32(row))
	case ColumnTypeInt64:
		return float64(c.Int64(row))
	case ColumnTypeFloat32:
		return float64(c.Float32(row))
	case ColumnTypeFloat64:
		return c.Float64(row)
	case ColumnTypeBool:
		if c.Bool(row) {
			return 1
		}
	}
	return 0
}

// Key stringifies the cell for grouping: integers in base 10, floats in the
// shortest form that round-trips at the column's width, bools as true/false.
func (c *Column) Key(row int) string {
	if c.IsNull(row) {
		return NullKey
	}
	switch c.typ {
	case ColumnTypeInt32:
		return strconv.FormatInt(int64(c.Int32(row)), 10)
	case ColumnTypeInt64:
		return strconv.FormatInt(c.Int64(row), 10)
	case ColumnTypeFloat32:
		return strconv.FormatFloat(float64(c.Float32(row)), 'g', -1, 32)
	case ColumnTypeFloat64:
		return strconv.FormatFloat(c.Float64(row), 'g', -1, 64)
	case ColumnTypeBool:
		return strconv.FormatBool(c.Bool(row))
	case ColumnTypeString:
		return c.String(row)
	}
	return ""
}

// Encode is the checked inverse of Value. v must match the column type
// exactly (int for integer columns is accepted when it fits); nil stores a
// null on nullable columns.
func (c *Column) Encode(row int, v any) error {
	if row < 0 || row >= c.rows {
		return errors.New(errors.ErrorTypeValidation, "row index out of range").
			WithDetail("column", c.name).
			WithDetail("row", row).
			WithDetail("rows", c.rows)
	}
	if v == nil {
		if !c.nullable {
			return errors.New(errors.ErrorTypeValidation, "column is not nullable").WithDetail("column", c.name)
		}
		c.SetNull(row)
		return nil
	}

	switch c.typ {
	case ColumnTypeInt32:
		switch x := v.(type) {
		case int32:
			c.SetInt32(row, x)
			return nil
		case int:
			if x >= math.MinInt32 && x <= math.MaxInt32 {
				c.SetInt32(row, int32(x))
				return nil
			}
		}
	case ColumnTypeInt64:
		switch x := v.(type) {
		case int64:
			c.SetInt64(row, x)
			return nil
		case int:
			c.SetInt64(row, int64(x))
			return nil
		}
	case ColumnTypeFloat32:
		if x, ok := v.(float32); ok {
			c.SetFloat32(row, x)
			return nil
		}
	case ColumnTypeFloat64:
		if x, ok := v.(float64); ok {
			c.SetFloat64(row, x)
			return nil
		}
	case ColumnTypeBool:
		if x, ok := v.(bool); ok {
			c.SetBool(row, x)
			return nil
		}
	case ColumnTypeString:
		if x, ok := v.(string); ok {
			if x == NullKey {
				return errors.New(errors.ErrorTypeValidation, "value is the reserved null key").
					WithDetail("column", c.name)
			}
			idx, err := c.dict.Intern(x)
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeCapacityOverflow, "failed to intern value").
					WithDetail("column", c.name)
			}
			c.SetDictIndex(row, idx)
			return nil
		}
	}
	return errors.Newf(errors.ErrorTypeValidation, "value of type %T does not fit %s column", v, c.typ).
		WithDetail("column", c.name)
}

// compact removes the rows listed in skipped (sorted, unique) and truncates
// the column to keep rows.
func (c *Column) compact(keep int, skipped []int) {
	if len(skipped) > 0 {
		w := skipped[0]
		for i, s := range skipped {
			end := keep + len(skipped)
			if i+1 < len(skipped) {
				end = skipped[i+1]
			}
			n := end - s - 1
			if n > 0 {
				copy(c.data[w*c.width:], c.data[(s+1)*c.width:end*c.width])
				if c.nulls != nil {
					copy(c.nulls[w:], c.nulls[s+1:end])
				}
				w += n
			}
		}
	}
	c.data = c.data[:keep*c.width]
	if c.nulls != nil {
		c.nulls = c.nulls[:keep]
	}
	c.rows = keep
}

// canonicalize renumbers the dictionary so indices follow first appearance
// in row order. Entries no row references keep their relative order after
// the referenced ones.
func (c *Column) canonicalize() {
	if c.dict == nil {
		return
	}
	n := c.dict.Len()
	if n == 0 {
		return
	}
	var seen [MaxDictionarySize]bool
	order := make([]uint8, 0, n)
	for row := 0; row < c.rows && len(order) < n; row++ {
		if c.IsNull(row) {
			continue
		}
		idx := c.data[row]
		if !seen[idx] {
			seen[idx] = true
			order = append(order, idx)
		}
	}
	for i := 0; i < n; i++ {
		if !seen[i] {
			order = append(order, uint8(i)) //nolint:gosec // G115: bounded by MaxDictionarySize
		}
	}

	identity := true
	for i, idx := range order {
		if int(idx) != i {
			identity = false
			break
		}
	}
	if identity {
		return
	}

	remap := c.dict.reorder(order)
	for row := 0; row < c.rows; row++ {
		if !c.IsNull(row) {
			c.data[row] = remap[c.data[row]]
		}
	}
}
