package formats

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// parquetWriter writes one row group per batch
type parquetWriter struct {
	fw  *pqarrow.FileWriter
	mem memory.Allocator
}

func newParquetWriter(w io.Writer, t *columnar.Table, config *WriterConfig) (*parquetWriter, error) {
	mem := memory.NewGoAllocator()
	props := parquet.NewWriterProperties(
		parquet.WithCompression(parquetCompression(config.Compression)),
		parquet.WithDictionaryDefault(true),
		parquet.WithMaxRowGroupLength(int64(config.BatchSize)),
		parquet.WithAllocator(mem),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithAllocator(mem),
		pqarrow.WithStoreSchema(),
	)

	fw, err := pqarrow.NewFileWriter(t.ArrowSchema(), w, props, arrowProps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create Parquet writer")
	}
	return &parquetWriter{fw: fw, mem: mem}, nil
}

func (pw *parquetWriter) writeBatch(t *columnar.Table, start, end int) error {
	rec, err := t.ToArrowRecordRange(pw.mem, start, end)
	if err != nil {
		return err
	}
	defer rec.Release()

	if err := pw.fw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write Parquet row group").
			WithDetail("start", start)
	}
	return nil
}

func (pw *parquetWriter) close() error {
	if err := pw.fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to close Parquet writer")
	}
	return nil
}

func parquetCompression(a compression.Algorithm) compress.Compression {
	switch a {
	case compression.Snappy:
		return compress.Codecs.Snappy
	case compression.Gzip:
		return compress.Codecs.Gzip
	case compression.Zstd:
		return compress.Codecs.Zstd
	case compression.LZ4:
		return compress.Codecs.Lz4Raw
	default:
		return compress.Codecs.Uncompressed
	}
}
