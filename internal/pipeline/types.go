// Package pipeline loads delimited text into a columnar.Table in parallel.
//
// One coordinator goroutine splits the input into lines and hands each line,
// tagged with its global row index, to a worker through that worker's
// staging region. Workers decode lines straight into the shared table at
// their global row, so the finished table keeps input order regardless of
// the worker count.
package pipeline

import (
	"runtime"
	"time"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// OverflowPolicy decides what the coordinator does when the staging region
// round-robin picked has no room for a line.
type OverflowPolicy string

const (
	// OverflowRetry offers the line to the other workers in rotation and
	// blocks only when every region is full.
	OverflowRetry OverflowPolicy = "retry"
	// OverflowBlock waits for the assigned worker to free space.
	OverflowBlock OverflowPolicy = "block"
)

// Config configures a Pipeline
type Config struct {
	// Workers is the number of decode goroutines (0 = runtime.NumCPU)
	Workers int `yaml:"workers" json:"workers"`
	// StagingBytes is the byte capacity of each worker's staging region
	StagingBytes int `yaml:"staging_bytes" json:"staging_bytes"`
	// StagingSlots is the number of line slots in each staging region
	StagingSlots int `yaml:"staging_slots" json:"staging_slots"`
	// ChunkSize is the read size used to pull from the source
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// Delimiter separates fields
	Delimiter byte `yaml:"delimiter" json:"delimiter"`
	// Quote encloses fields that contain the delimiter; 0 disables quoting
	Quote byte `yaml:"quote" json:"quote"`
	// Header skips the first line of input
	Header bool `yaml:"header" json:"header"`
	// IgnoreErrors skips and counts malformed lines instead of failing
	IgnoreErrors bool `yaml:"ignore_errors" json:"ignore_errors"`
	// Overflow is the full-staging policy
	Overflow OverflowPolicy `yaml:"overflow" json:"overflow"`
}

// DefaultConfig returns defaults sized for large files
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.NumCPU(),
		StagingBytes: 4 * 1024 * 1024,
		StagingSlots: 64 * 1024,
		ChunkSize:    256 * 1024,
		Delimiter:    ',',
		Quote:        '"',
		Overflow:     OverflowRetry,
	}
}

// withDefaults fills zero values from DefaultConfig. Quote is left alone
// since 0 is meaningful.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers == 0 {
		c.Workers = d.Workers
	}
	if c.StagingBytes == 0 {
		c.StagingBytes = d.StagingBytes
	}
	if c.StagingSlots == 0 {
		c.StagingSlots = d.StagingSlots
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.Delimiter == 0 {
		c.Delimiter = d.Delimiter
	}
	if c.Overflow == "" {
		c.Overflow = d.Overflow
	}
	return c
}

// Validate checks the configuration after defaults are applied
func (c Config) Validate() error {
	switch {
	case c.Workers < 1:
		return errors.New(errors.ErrorTypeConfig, "workers must be at least 1").WithDetail("workers", c.Workers)
	case c.StagingBytes < 1:
		return errors.New(errors.ErrorTypeConfig, "staging bytes must be positive").WithDetail("staging_bytes", c.StagingBytes)
	case c.StagingSlots < 1:
		return errors.New(errors.ErrorTypeConfig, "staging slots must be positive").WithDetail("staging_slots", c.StagingSlots)
	case c.ChunkSize < 1:
		return errors.New(errors.ErrorTypeConfig, "chunk size must be positive").WithDetail("chunk_size", c.ChunkSize)
	case c.Delimiter == '\n' || c.Delimiter == '\r':
		return errors.New(errors.ErrorTypeConfig, "delimiter cannot be a line terminator")
	case c.Quote != 0 && c.Quote == c.Delimiter:
		return errors.New(errors.ErrorTypeConfig, "quote and delimiter must differ")
	}
	switch c.Overflow {
	case OverflowRetry, OverflowBlock:
	default:
		return errors.New(errors.ErrorTypeConfig, "unknown overflow policy").WithDetail("overflow", string(c.Overflow))
	}
	return nil
}

// WorkerState is a worker's position in its lifecycle
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerPolling
	WorkerProcessing
	WorkerDraining
	WorkerDone
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerPolling:
		return "polling"
	case WorkerProcessing:
		return "processing"
	case WorkerDraining:
		return "draining"
	case WorkerDone:
		return "done"
	default:
		return "unknown"
	}
}

// Completion is the coordinator's end-of-input message to a worker
type Completion struct {
	// TotalBytes is the number of line bytes written into the worker's region
	TotalBytes int64
	// Lines is the number of lines committed to the worker's region
	Lines int64
}

// WorkerReport is what a worker returns once it reaches Done
type WorkerReport struct {
	WorkerID int   `json:"worker_id"`
	Rows     int64 `json:"rows"`
	Skipped  int64 `json:"skipped"`
	Bytes    int64 `json:"bytes"`
}

// Result describes a successful run. Table is finalized and read-only.
// Every input line is accounted for: Lines is the header line, if any,
// plus Blank plus Rows plus len(Skipped).
type Result struct {
	Table         *columnar.Table `json:"-"`
	Lines         int64           `json:"lines"`
	Blank         int64           `json:"blank"`
	Rows          int             `json:"rows"`
	Skipped       []int           `json:"skipped,omitempty"`
	BytesRead     int64           `json:"bytes_read"`
	Retries       int64           `json:"retries"`
	Waits         int64           `json:"waits"`
	Workers       []WorkerReport  `json:"workers"`
	Duration      time.Duration   `json:"duration"`
	RowsPerSecond float64         `json:"rows_per_second"`
}
