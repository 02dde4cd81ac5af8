package columnar

import (
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchema(t *testing.T) {
	schema, err := ParseSchema("id:int32, amount:float32,flag:bool,color:string,note:string?")
	require.NoError(t, err)
	require.Len(t, schema.Fields, 5)

	assert.Equal(t, FieldSchema{Name: "id", Type: ColumnTypeInt32}, schema.Fields[0])
	assert.Equal(t, ColumnTypeFloat32, schema.Fields[1].Type)
	assert.Equal(t, ColumnTypeBool, schema.Fields[2].Type)
	assert.Equal(t, ColumnTypeString, schema.Fields[3].Type)
	assert.True(t, schema.Fields[4].Nullable)
	assert.Equal(t, []string{"id", "amount", "flag", "color", "note"}, schema.Names())
	assert.Equal(t, "id:int32,amount:float32,flag:bool,color:string,note:string?", schema.String())

	again, err := ParseSchema(schema.String())
	require.NoError(t, err)
	assert.Equal(t, schema, again)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"missing type", "id"},
		{"unknown type", "id:decimal"},
		{"duplicate", "id:int32,id:int64"},
		{"empty name", ":int32"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSchema(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSchema), err.Error())
		})
	}
}

func TestColumnTypeWidth(t *testing.T) {
	assert.Equal(t, 4, ColumnTypeInt32.Width())
	assert.Equal(t, 8, ColumnTypeInt64.Width())
	assert.Equal(t, 4, ColumnTypeFloat32.Width())
	assert.Equal(t, 8, ColumnTypeFloat64.Width())
	assert.Equal(t, 1, ColumnTypeBool.Width())
	assert.Equal(t, 1, ColumnTypeString.Width())
	assert.Equal(t, 0, ColumnTypeInvalid.Width())
	assert.Equal(t, 0, ColumnType(99).Width())
}

func TestAllocateRejectsUnsupportedType(t *testing.T) {
	_, err := Allocate(10, NewSchema(
		FieldSchema{Name: "id", Type: ColumnTypeInt32},
		FieldSchema{Name: "blob", Type: ColumnType(42)},
	))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeSchema))

	_, err = Allocate(-1, NewSchema(FieldSchema{Name: "id", Type: ColumnTypeInt32}))
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestAllocateBufferSizes(t *testing.T) {
	schema, err := ParseSchema("a:int32,b:int64,c:float32,d:float64,e:bool,f:string,g:int32?")
	require.NoError(t, err)

	table, err := Allocate(100, schema)
	require.NoError(t, err)
	assert.Equal(t, 100, table.RowCount())
	assert.Equal(t, 100, table.Capacity())

	for _, col := range table.Columns() {
		assert.Len(t, col.Bytes(), 100*col.Width(), col.Name())
		assert.Equal(t, 100, col.Len())
	}
	g, err := table.Column("g")
	require.NoError(t, err)
	assert.True(t, g.Nullable())
	f, err := table.Column("f")
	require.NoError(t, err)
	assert.NotNil(t, f.Dictionary())
}
