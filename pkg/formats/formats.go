// Package formats exports a finalized columnar table to interchange file
// formats: Apache Parquet, Apache Arrow IPC, Apache Avro and JSON lines.
//
// Every writer walks the table in row batches of WriterConfig.BatchSize so
// the exported copy never holds more than one batch in memory alongside the
// table itself.
package formats

import (
	"io"
	"strings"
	"time"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/metrics"
)

// Format represents an export file format
type Format string

const (
	// Parquet is Apache Parquet format
	Parquet Format = "parquet"
	// Arrow is the Apache Arrow IPC file format
	Arrow Format = "arrow"
	// Avro is Apache Avro object container format
	Avro Format = "avro"
	// JSONL is newline-delimited JSON, one object per row
	JSONL Format = "jsonl"
)

// Formats lists every supported format
var Formats = []Format{Parquet, Arrow, Avro, JSONL}

// ParseFormat maps a name or file extension to a Format, case-insensitively
func ParseFormat(name string) (Format, error) {
	n := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(name)), ".")
	switch n {
	case "parquet", "pq":
		return Parquet, nil
	case "arrow", "ipc", "feather":
		return Arrow, nil
	case "avro":
		return Avro, nil
	case "jsonl", "ndjson", "json":
		return JSONL, nil
	}
	return "", errors.New(errors.ErrorTypeValidation, "unsupported export format").
		WithDetail("format", name)
}

// FormatInfo describes an export format
type FormatInfo struct {
	Format        Format
	Name          string
	Description   string
	FileExtension string
	MIMEType      string
	// Compressions lists the algorithms the format accepts, None first
	Compressions []compression.Algorithm
}

// SupportsCompression reports whether the format accepts a
func (fi *FormatInfo) SupportsCompression(a compression.Algorithm) bool {
	for _, c := range fi.Compressions {
		if c == a {
			return true
		}
	}
	return false
}

// GetFormatInfo returns information about an export format, or nil for an
// unknown one
func GetFormatInfo(format Format) *FormatInfo {
	switch format {
	case Parquet:
		return &FormatInfo{
			Format:        Parquet,
			Name:          "Apache Parquet",
			Description:   "Columnar storage format optimized for analytics",
			FileExtension: ".parquet",
			MIMEType:      "application/vnd.apache.parquet",
			Compressions:  []compression.Algorithm{compression.None, compression.Snappy, compression.Gzip, compression.Zstd, compression.LZ4},
		}
	case Arrow:
		return &FormatInfo{
			Format:        Arrow,
			Name:          "Apache Arrow",
			Description:   "In-memory columnar format, IPC file layout",
			FileExtension: ".arrow",
			MIMEType:      "application/vnd.apache.arrow.file",
			Compressions:  []compression.Algorithm{compression.None, compression.LZ4, compression.Zstd},
		}
	case Avro:
		return &FormatInfo{
			Format:        Avro,
			Name:          "Apache Avro",
			Description:   "Row-oriented object container with embedded schema",
			FileExtension: ".avro",
			MIMEType:      "application/avro",
			Compressions:  []compression.Algorithm{compression.None, compression.Snappy, compression.Gzip},
		}
	case JSONL:
		return &FormatInfo{
			Format:        JSONL,
			Name:          "JSON Lines",
			Description:   "One JSON object per row",
			FileExtension: ".jsonl",
			MIMEType:      "application/x-ndjson",
			Compressions:  []compression.Algorithm{compression.None},
		}
	}
	return nil
}

// WriterConfig configures an export
type WriterConfig struct {
	Format      Format
	Compression compression.Algorithm
	// BatchSize is the number of rows converted per write
	BatchSize int
}

// DefaultWriterConfig returns a snappy-compressed Parquet export config
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		Format:      Parquet,
		Compression: compression.Snappy,
		BatchSize:   64 * 1024,
	}
}

// Validate checks the format is known and accepts the compression
func (c *WriterConfig) Validate() error {
	info := GetFormatInfo(c.Format)
	if info == nil {
		return errors.New(errors.ErrorTypeValidation, "unsupported export format").
			WithDetail("format", string(c.Format))
	}
	if c.BatchSize < 0 {
		return errors.New(errors.ErrorTypeValidation, "batch size must not be negative").
			WithDetail("batch_size", c.BatchSize)
	}
	if c.Compression != "" && !info.SupportsCompression(c.Compression) {
		return errors.New(errors.ErrorTypeValidation, "compression not supported by format").
			WithDetail("format", string(c.Format)).
			WithDetail("compression", string(c.Compression))
	}
	return nil
}

// Stats describes a finished export
type Stats struct {
	Format      Format                `json:"format"`
	Compression compression.Algorithm `json:"compression"`
	Rows        int64                 `json:"rows"`
	Batches     int                   `json:"batches"`
	Bytes       int64                 `json:"bytes"`
	Duration    time.Duration         `json:"duration"`
}

// tableWriter is implemented once per format
type tableWriter interface {
	// writeBatch writes rows [start, end) of the table
	writeBatch(t *columnar.Table, start, end int) error
	// close flushes footers and trailers. It does not close the destination.
	close() error
}

// Export writes every row of a finalized table to w. A nil config uses
// DefaultWriterConfig. w is never closed.
func Export(w io.Writer, t *columnar.Table, cfg *WriterConfig) (*Stats, error) {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	c := *cfg
	if c.Compression == "" {
		c.Compression = compression.None
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultWriterConfig().BatchSize
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if !t.Finalized() {
		return nil, errors.New(errors.ErrorTypeValidation, "table must be finalized before export")
	}

	start := time.Now()
	cw := &countingWriter{w: w}

	var (
		tw  tableWriter
		err error
	)
	switch c.Format {
	case Parquet:
		tw, err = newParquetWriter(cw, t, &c)
	case Arrow:
		tw, err = newArrowWriter(cw, t, &c)
	case Avro:
		tw, err = newAvroWriter(cw, t, &c)
	case JSONL:
		tw = newJSONLWriter(cw, t)
	}
	if err != nil {
		return nil, err
	}

	stats := &Stats{Format: c.Format, Compression: c.Compression}
	for lo := 0; lo < t.RowCount(); lo += c.BatchSize {
		hi := min(lo+c.BatchSize, t.RowCount())
		if err := tw.writeBatch(t, lo, hi); err != nil {
			_ = tw.close()
			return nil, err
		}
		stats.Rows += int64(hi - lo)
		stats.Batches++
	}
	if err := tw.close(); err != nil {
		return nil, err
	}

	stats.Bytes = cw.n
	stats.Duration = time.Since(start)
	metrics.ExportBytes.WithLabelValues(string(c.Format)).Add(float64(cw.n))
	return stats, nil
}

// countingWriter tallies bytes and hides any Close method of the
// destination from writers that would otherwise close it
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	if err != nil {
		return n, errors.Wrap(err, errors.ErrorTypeIO, "failed to write export")
	}
	return n, nil
}
