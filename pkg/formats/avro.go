package formats

import (
	"io"
	"regexp"

	"github.com/linkedin/goavro/v2"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
)

var avroName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// avroWriter appends one OCF block per batch
type avroWriter struct {
	ocf   *goavro.OCFWriter
	batch []any
}

func newAvroWriter(w io.Writer, t *columnar.Table, config *WriterConfig) (*avroWriter, error) {
	schema, err := AvroSchema(t)
	if err != nil {
		return nil, err
	}
	codec, err := goavro.NewCodec(schema)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchema, "failed to create Avro codec")
	}

	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Codec:           codec,
		CompressionName: avroCompression(config.Compression),
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to create Avro writer")
	}
	return &avroWriter{ocf: ocf}, nil
}

func (aw *avroWriter) writeBatch(t *columnar.Table, start, end int) error {
	aw.batch = aw.batch[:0]
	cols := t.Columns()
	for row := start; row < end; row++ {
		native := make(map[string]any, len(cols))
		for _, col := range cols {
			v := col.Value(row)
			if col.Nullable() && v != nil {
				v = goavro.Union(avroType(col.Type()), v)
			}
			native[col.Name()] = v
		}
		aw.batch = append(aw.batch, native)
	}

	if err := aw.ocf.Append(aw.batch); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write Avro block").
			WithDetail("start", start)
	}
	return nil
}

// close is a no-op: OCFWriter.Append flushes each block
func (aw *avroWriter) close() error { return nil }

// AvroSchema returns the Avro record schema for a table. Nullable columns
// become ["null", type] unions. Column names must be valid Avro names.
func AvroSchema(t *columnar.Table) (string, error) {
	fields := make([]map[string]any, 0, t.ColumnCount())
	for _, col := range t.Columns() {
		if !avroName.MatchString(col.Name()) {
			return "", errors.New(errors.ErrorTypeSchema, "column name is not a valid Avro name").
				WithDetail("column", col.Name())
		}
		var typ any = avroType(col.Type())
		if col.Nullable() {
			typ = []any{"null", typ}
		}
		fields = append(fields, map[string]any{"name": col.Name(), "type": typ})
	}

	schema, err := json.Marshal(map[string]any{
		"type":   "record",
		"name":   "Row",
		"fields": fields,
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode Avro schema")
	}
	return string(schema), nil
}

func avroType(t columnar.ColumnType) string {
	switch t {
	case columnar.ColumnTypeInt32:
		return "int"
	case columnar.ColumnTypeInt64:
		return "long"
	case columnar.ColumnTypeFloat32:
		return "float"
	case columnar.ColumnTypeFloat64:
		return "double"
	case columnar.ColumnTypeBool:
		return "boolean"
	default:
		return "string"
	}
}

func avroCompression(a compression.Algorithm) string {
	switch a {
	case compression.Snappy:
		return goavro.CompressionSnappyLabel
	case compression.Gzip:
		return goavro.CompressionDeflateLabel
	default:
		return goavro.CompressionNullLabel
	}
}
