package columnar

import (
	"math"
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable(t *testing.T, rows int, spec string) *Table {
	t.Helper()
	schema, err := ParseSchema(spec)
	require.NoError(t, err)
	table, err := Allocate(rows, schema)
	require.NoError(t, err)
	return table
}

func TestColumnRoundTrip(t *testing.T) {
	tests := []struct {
		column string
		values []any
	}{
		{"i32", []any{int32(0), int32(1), int32(-1), int32(math.MaxInt32), int32(math.MinInt32)}},
		{"i64", []any{int64(0), int64(-42), int64(math.MaxInt64), int64(math.MinInt64), int64(1) << 40}},
		{"f32", []any{float32(0), float32(10.5), float32(-3.25), float32(math.MaxFloat32), float32(math.SmallestNonzeroFloat32)}},
		{"f64", []any{float64(0), 20.0, -1e300, math.MaxFloat64, math.Inf(-1)}},
		{"b", []any{true, false, true, true, false}},
		{"s", []any{"red", "blue", "", "red", "héllo, wörld"}},
	}

	table := newTestTable(t, 5, "i32:int32,i64:int64,f32:float32,f64:float64,b:bool,s:string")
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			for row, v := range tt.values {
				require.NoError(t, table.SetValue(tt.column, row, v))
			}
			for row, v := range tt.values {
				got, err := table.GetValue(tt.column, row)
				require.NoError(t, err)
				assert.Equal(t, v, got, "row %d", row)
			}
		})
	}
}

func TestColumnLittleEndianLayout(t *testing.T) {
	table := newTestTable(t, 2, "id:int32,flag:bool")
	id, err := table.Column("id")
	require.NoError(t, err)
	flag, err := table.Column("flag")
	require.NoError(t, err)

	id.SetInt32(1, 0x01020304)
	flag.SetBool(1, true)

	assert.Equal(t, []byte{0, 0, 0, 0, 0x04, 0x03, 0x02, 0x01}, id.Bytes())
	assert.Equal(t, []byte{0, 1}, flag.Bytes())
}

func TestColumnNaNRoundTrip(t *testing.T) {
	table := newTestTable(t, 1, "f:float64")
	col, err := table.Column("f")
	require.NoError(t, err)

	col.SetFloat64(0, math.NaN())
	assert.True(t, math.IsNaN(col.Float64(0)))
}

func TestColumnNulls(t *testing.T) {
	table := newTestTable(t, 3, "v:int32?,name:string?")
	v, err := table.Column("v")
	require.NoError(t, err)

	require.NoError(t, table.SetValue("v", 0, int32(7)))
	require.NoError(t, table.SetValue("v", 1, nil))
	require.NoError(t, table.SetValue("name", 2, nil))

	assert.False(t, v.IsNull(0))
	assert.True(t, v.IsNull(1))
	got, err := table.GetValue("v", 1)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, NullKey, v.Key(1))
	assert.Equal(t, float64(0), v.Numeric(1))

	// overwriting a null clears it
	v.SetInt32(1, 3)
	assert.Equal(t, int32(3), v.Value(1))
}

func TestColumnEncodeErrors(t *testing.T) {
	table := newTestTable(t, 2, "id:int32,flag:bool")

	err := table.SetValue("id", 0, "nope")
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = table.SetValue("id", 0, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = table.SetValue("id", 2, int32(1))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = table.SetValue("id", 0, math.MaxInt32+1)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	err = table.SetValue("missing", 0, true)
	assert.True(t, errors.IsType(err, errors.ErrorTypeColumnNotFound))

	require.NoError(t, table.SetValue("id", 1, 12))
	got, err := table.GetValue("id", 1)
	require.NoError(t, err)
	assert.Equal(t, int32(12), got)
}

func TestColumnKey(t *testing.T) {
	table := newTestTable(t, 1, "i:int64,f32:float32,f64:float64,b:bool,s:string")
	require.NoError(t, table.SetValue("i", 0, int64(-12)))
	require.NoError(t, table.SetValue("f32", 0, float32(10.1)))
	require.NoError(t, table.SetValue("f64", 0, 20.0))
	require.NoError(t, table.SetValue("b", 0, true))
	require.NoError(t, table.SetValue("s", 0, "red"))

	keys := map[string]string{}
	for _, col := range table.Columns() {
		keys[col.Name()] = col.Key(0)
	}
	assert.Equal(t, map[string]string{
		"i":   "-12",
		"f32": "10.1",
		"f64": "20",
		"b":   "true",
		"s":   "red",
	}, keys)
}
