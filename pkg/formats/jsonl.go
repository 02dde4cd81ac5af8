package formats

import (
	"io"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/json"
)

// jsonlWriter encodes one object per row with sorted keys
type jsonlWriter struct {
	enc *json.StreamingEncoder
	row map[string]any
}

func newJSONLWriter(w io.Writer, t *columnar.Table) *jsonlWriter {
	return &jsonlWriter{
		enc: json.NewStreamingEncoder(w, false),
		row: make(map[string]any, t.ColumnCount()),
	}
}

func (jw *jsonlWriter) writeBatch(t *columnar.Table, start, end int) error {
	cols := t.Columns()
	for row := start; row < end; row++ {
		for _, col := range cols {
			jw.row[col.Name()] = col.Value(row)
		}
		if err := jw.enc.Encode(jw.row); err != nil {
			return err
		}
	}
	return nil
}

func (jw *jsonlWriter) close() error {
	return jw.enc.Close()
}
