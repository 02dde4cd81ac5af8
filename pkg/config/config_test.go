package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/compression"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/formats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *IngestConfig {
	cfg := NewIngestConfig("test")
	cfg.Source.Path = "data.csv"
	cfg.Source.Schema = "id:int32,amount:float32,flag:bool,color:string"
	return cfg
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "colframe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewIngestConfigDefaults(t *testing.T) {
	cfg := NewIngestConfig("defaults")

	assert.Equal(t, "defaults", cfg.Name)
	assert.Positive(t, cfg.Performance.Workers)
	assert.Equal(t, byte(','), cfg.Source.DelimiterByte())
	assert.Equal(t, byte('"'), cfg.Source.QuoteByte())
	assert.Equal(t, "retry", cfg.Performance.Overflow)
	assert.False(t, cfg.Reliability.IgnoreErrors)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*IngestConfig)
	}{
		{"missing path", func(c *IngestConfig) { c.Source.Path = "" }},
		{"missing schema", func(c *IngestConfig) { c.Source.Schema = "" }},
		{"bad schema", func(c *IngestConfig) { c.Source.Schema = "id:decimal" }},
		{"negative rows", func(c *IngestConfig) { c.Source.Rows = -1 }},
		{"long delimiter", func(c *IngestConfig) { c.Source.Delimiter = "||" }},
		{"long quote", func(c *IngestConfig) { c.Source.Quote = `""` }},
		{"negative workers", func(c *IngestConfig) { c.Performance.Workers = -2 }},
		{"negative staging", func(c *IngestConfig) { c.Performance.StagingBytes = -1 }},
		{"overflow policy", func(c *IngestConfig) { c.Performance.Overflow = "drop" }},
		{"log level", func(c *IngestConfig) { c.Observability.LogLevel = "loud" }},
		{"sample rate", func(c *IngestConfig) { c.Observability.TracingSampleRate = 1.5 }},
		{"compression", func(c *IngestConfig) {
			c.Advanced.EnableCompression = true
			c.Advanced.CompressionAlgorithm = "brotli"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), err.Error())
		})
	}
}

func TestQuoteDisabled(t *testing.T) {
	cfg := validConfig()
	cfg.Source.Quote = ""
	require.NoError(t, cfg.Validate())
	assert.Equal(t, byte(0), cfg.Source.QuoteByte())
}

func TestExportWriterConfig(t *testing.T) {
	tests := []struct {
		name        string
		export      ExportConfig
		format      formats.Format
		compression compression.Algorithm
	}{
		{"infer parquet", ExportConfig{Path: "out/rows.parquet"}, formats.Parquet, compression.Snappy},
		{"infer arrow", ExportConfig{Path: "rows.arrow"}, formats.Arrow, compression.None},
		{"explicit format", ExportConfig{Path: "-", Format: "avro", Compression: "gzip"}, formats.Avro, compression.Gzip},
		{"jsonl", ExportConfig{Path: "rows.ndjson"}, formats.JSONL, compression.None},
		{"arrow zstd", ExportConfig{Path: "rows.bin", Format: "arrow", Compression: "ZSTD"}, formats.Arrow, compression.Zstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wc, err := tt.export.WriterConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.format, wc.Format)
			assert.Equal(t, tt.compression, wc.Compression)
		})
	}

	failures := []ExportConfig{
		{},
		{Path: "-"},
		{Path: "rows.orc"},
		{Path: "rows.parquet", Compression: "brotli"},
		{Path: "rows.avro", Compression: "lz4"},
		{Path: "rows.arrow", BatchSize: -1},
	}
	for _, e := range failures {
		_, err := e.WriterConfig()
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), "%+v: %v", e, err)
	}
}

func TestLoadIngestConfig(t *testing.T) {
	t.Setenv("COLFRAME_TEST_DIR", "/data")
	t.Setenv("COLFRAME_TEST_WORKERS", "6")

	path := writeFile(t, `
name: nightly
source:
  path: ${COLFRAME_TEST_DIR}/events.csv
  schema: id:int64,amount:float64?,region:string
  header: true
  delimiter: "|"
performance:
  workers: ${COLFRAME_TEST_WORKERS}
  staging_slots: ${COLFRAME_TEST_UNSET:-128}
reliability:
  ignore_errors: true
`)

	cfg, err := LoadIngestConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.Name)
	assert.Equal(t, "/data/events.csv", cfg.Source.Path)
	assert.True(t, cfg.Source.Header)
	assert.Equal(t, byte('|'), cfg.Source.DelimiterByte())
	assert.Equal(t, 6, cfg.Performance.Workers)
	assert.Equal(t, 128, cfg.Performance.StagingSlots)
	assert.True(t, cfg.Reliability.IgnoreErrors)

	// untouched sections keep their defaults
	assert.Equal(t, 4*1024*1024, cfg.Performance.StagingBytes)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadIngestConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = LoadIngestConfig(writeFile(t, "source: [unclosed"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = LoadIngestConfig(writeFile(t, "name: incomplete\n"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := validConfig()
	cfg.Performance.Workers = 3
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := LoadIngestConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("COLFRAME_A", "alpha")
	t.Setenv("COLFRAME_EMPTY", "")

	tests := map[string]string{
		"${COLFRAME_A}":                 "alpha",
		"x-${COLFRAME_A}-${COLFRAME_A}": "x-alpha-alpha",
		"${COLFRAME_MISSING}":           "",
		"${COLFRAME_MISSING:-dflt}":     "dflt",
		"${COLFRAME_EMPTY:-dflt}":       "",
		"${unterminated":                "${unterminated",
		"$COLFRAME_A":                   "$COLFRAME_A",
	}
	for in, want := range tests {
		assert.Equal(t, want, string(substituteEnvVars([]byte(in))), in)
	}
}
