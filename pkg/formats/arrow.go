package formats

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// arrowWriter writes record batches in the Arrow IPC file layout
type arrowWriter struct {
	fw  *ipc.FileWriter
	mem memory.Allocator
}

func newArrowWriter(w io.Writer, t *columnar.Table, config *WriterConfig) (*arrowWriter, error) {
	mem := memory.NewGoAllocator()
	opts := []ipc.Option{ipc.WithSchema(t.ArrowSchema()), ipc.WithAllocator(mem)}
	switch config.Compression {
	case compression.LZ4:
		opts = append(opts, ipc.WithLZ4())
	case compression.Zstd:
		opts = append(opts, ipc.WithZstd())
	}

	fw, err := ipc.NewFileWriter(w, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create Arrow writer")
	}
	return &arrowWriter{fw: fw, mem: mem}, nil
}

func (aw *arrowWriter) writeBatch(t *columnar.Table, start, end int) error {
	rec, err := t.ToArrowRecordRange(aw.mem, start, end)
	if err != nil {
		return err
	}
	defer rec.Release()

	if err := aw.fw.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write Arrow batch").
			WithDetail("start", start)
	}
	return nil
}

func (aw *arrowWriter) close() error {
	if err := aw.fw.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to close Arrow writer")
	}
	return nil
}
