package config

import (
	"path/filepath"
	"runtime"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/formats"
	"go.uber.org/zap"
)

// IngestConfig is the complete configuration of one ingestion run. It is
// organized into sections the same way on disk, in flags and in env vars.
type IngestConfig struct {
	// Name labels the run in logs and traces
	Name string `yaml:"name" json:"name"`

	Source        SourceConfig        `yaml:"source" json:"source"`
	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
	Reliability   ReliabilityConfig   `yaml:"reliability" json:"reliability"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Advanced      AdvancedConfig      `yaml:"advanced" json:"advanced"`
	Export        ExportConfig        `yaml:"export" json:"export"`
}

// SourceConfig describes the input file and how to read it.
type SourceConfig struct {
	// Path of the delimited text file
	Path string `yaml:"path" json:"path"`
	// Schema in name:type[?] form, e.g. "id:int32,amount:float32?"
	Schema string `yaml:"schema" json:"schema"`
	// Rows is the table capacity; 0 estimates it from the file
	Rows int `yaml:"rows" json:"rows"`
	// Header skips the first line
	Header bool `yaml:"header" json:"header"`
	// Delimiter is a single byte
	Delimiter string `yaml:"delimiter" json:"delimiter"`
	// Quote is a single byte, or empty to disable quoting
	Quote string `yaml:"quote" json:"quote"`
	// Mmap reads the file through a memory map instead of buffered reads
	Mmap bool `yaml:"mmap" json:"mmap"`
}

// PerformanceConfig controls parallelism and staging sizes.
type PerformanceConfig struct {
	Workers      int    `yaml:"workers" json:"workers"`
	StagingBytes int    `yaml:"staging_bytes" json:"staging_bytes"`
	StagingSlots int    `yaml:"staging_slots" json:"staging_slots"`
	ChunkSize    int    `yaml:"chunk_size" json:"chunk_size"`
	Overflow     string `yaml:"overflow" json:"overflow"` // retry or block
}

// ReliabilityConfig controls the malformed-line policy.
type ReliabilityConfig struct {
	// IgnoreErrors skips and counts malformed lines instead of failing
	IgnoreErrors bool `yaml:"ignore_errors" json:"ignore_errors"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel          string  `yaml:"log_level" json:"log_level"`
	LogEncoding       string  `yaml:"log_encoding" json:"log_encoding"`
	MetricsAddr       string  `yaml:"metrics_addr" json:"metrics_addr"`
	EnableTracing     bool    `yaml:"enable_tracing" json:"enable_tracing"`
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// AdvancedConfig contains optional reporting.
type AdvancedConfig struct {
	// EnableCompression reports per-column compression ratios after load
	EnableCompression    bool   `yaml:"enable_compression" json:"enable_compression"`
	CompressionAlgorithm string `yaml:"compression_algorithm" json:"compression_algorithm"`
	CompressionLevel     int    `yaml:"compression_level" json:"compression_level"`
	// MemorySnapshot reports process memory after load
	MemorySnapshot bool `yaml:"memory_snapshot" json:"memory_snapshot"`
}

// ExportConfig describes where and how the export command writes the
// loaded table.
type ExportConfig struct {
	// Path of the output file, "-" for stdout
	Path string `yaml:"path" json:"path"`
	// Format is parquet, arrow, avro or jsonl; empty infers it from Path
	Format      string `yaml:"format" json:"format"`
	Compression string `yaml:"compression" json:"compression"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
}

// NewIngestConfig returns a configuration with defaults for every section.
// Source.Path and Source.Schema still have to be set.
func NewIngestConfig(name string) *IngestConfig {
	return &IngestConfig{
		Name: name,
		Source: SourceConfig{
			Delimiter: ",",
			Quote:     `"`,
		},
		Performance: PerformanceConfig{
			Workers:      runtime.NumCPU(),
			StagingBytes: 4 * 1024 * 1024,
			StagingSlots: 64 * 1024,
			ChunkSize:    256 * 1024,
			Overflow:     "retry",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogEncoding:       "json",
			TracingSampleRate: 1.0,
		},
		Advanced: AdvancedConfig{
			CompressionAlgorithm: string(compression.Zstd),
			CompressionLevel:     int(compression.Default),
		},
		Export: ExportConfig{
			BatchSize: formats.DefaultWriterConfig().BatchSize,
		},
	}
}

// Validate checks the configuration for correctness. Every failure is a
// config error naming the offending field.
func (c *IngestConfig) Validate() error {
	if err := c.Source.ValidateInput(); err != nil {
		return err
	}
	if c.Source.Schema == "" {
		return invalid("source.schema", "is required")
	}
	if _, err := columnar.ParseSchema(c.Source.Schema); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid source.schema")
	}
	if c.Source.Rows < 0 {
		return invalid("source.rows", "cannot be negative")
	}

	p := c.Performance
	switch {
	case p.Workers < 0:
		return invalid("performance.workers", "cannot be negative")
	case p.StagingBytes < 0:
		return invalid("performance.staging_bytes", "cannot be negative")
	case p.StagingSlots < 0:
		return invalid("performance.staging_slots", "cannot be negative")
	case p.ChunkSize < 0:
		return invalid("performance.chunk_size", "cannot be negative")
	}
	switch p.Overflow {
	case "", "retry", "block":
	default:
		return invalid("performance.overflow", "must be retry or block")
	}

	o := c.Observability
	if o.LogLevel != "" {
		if _, err := zap.ParseAtomicLevel(o.LogLevel); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid observability.log_level")
		}
	}
	if o.TracingSampleRate < 0 || o.TracingSampleRate > 1 {
		return invalid("observability.tracing_sample_rate", "must be between 0 and 1")
	}

	if c.Advanced.EnableCompression {
		if _, err := compression.ParseAlgorithm(c.Advanced.CompressionAlgorithm); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid advanced.compression_algorithm")
		}
	}
	return nil
}

// ValidateInput checks the settings needed to read the file at all: path,
// delimiter and quote
func (s *SourceConfig) ValidateInput() error {
	if s.Path == "" {
		return invalid("source.path", "is required")
	}
	if len(s.Delimiter) != 1 {
		return invalid("source.delimiter", "must be a single byte")
	}
	if len(s.Quote) > 1 {
		return invalid("source.quote", "must be a single byte or empty")
	}
	return nil
}

// DelimiterByte returns the configured delimiter
func (s *SourceConfig) DelimiterByte() byte {
	if s.Delimiter == "" {
		return ','
	}
	return s.Delimiter[0]
}

// QuoteByte returns the configured quote, 0 when quoting is disabled
func (s *SourceConfig) QuoteByte() byte {
	if s.Quote == "" {
		return 0
	}
	return s.Quote[0]
}

// CompressionConfig converts the advanced section for compression.NewCompressor
func (a *AdvancedConfig) CompressionConfig() *compression.Config {
	return &compression.Config{
		Algorithm: compression.Algorithm(a.CompressionAlgorithm),
		Level:     compression.Level(a.CompressionLevel),
	}
}

// WriterConfig validates the export section and resolves it for
// formats.Export. With no compression set Parquet and Avro use snappy and
// the rest none.
func (e *ExportConfig) WriterConfig() (*formats.WriterConfig, error) {
	if e.Path == "" {
		return nil, invalid("export.path", "is required")
	}
	if e.BatchSize < 0 {
		return nil, invalid("export.batch_size", "cannot be negative")
	}

	name := e.Format
	if name == "" {
		if e.Path == "-" {
			return nil, invalid("export.format", "is required when writing to stdout")
		}
		name = filepath.Ext(e.Path)
	}
	format, err := formats.ParseFormat(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid export.format")
	}

	wc := &formats.WriterConfig{Format: format, BatchSize: e.BatchSize}
	switch {
	case e.Compression != "":
		if wc.Compression, err = compression.ParseAlgorithm(e.Compression); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid export.compression")
		}
	case format == formats.Parquet || format == formats.Avro:
		wc.Compression = compression.Snappy
	default:
		wc.Compression = compression.None
	}
	if err := wc.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid export section")
	}
	return wc, nil
}

func invalid(field, msg string) error {
	return errors.New(errors.ErrorTypeConfig, field+" "+msg).WithDetail("field", field)
}
