// Package schema infers a column schema from a sample of delimited lines,
// so a file can be loaded without writing its schema by hand.
package schema

import (
	"bytes"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/columnar"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/linesplit"
	"go.uber.org/zap"
)

const (
	// DefaultSampleSize is the number of data lines examined
	DefaultSampleSize = 1000
	maxExamples       = 5
)

// Options controls how lines are read and how strict typing is
type Options struct {
	Delimiter byte
	// Quote of 0 disables quoting
	Quote byte
	// Header takes column names from the first line
	Header     bool
	SampleSize int
	// Confidence is the fraction of non-empty values that must parse as a
	// type for the column to get it. Below 1 the remaining values will be
	// malformed lines at load time.
	Confidence float64
}

// DefaultOptions reads comma-separated, double-quoted input and requires
// every sampled value to parse
func DefaultOptions() Options {
	return Options{
		Delimiter:  ',',
		Quote:      '"',
		SampleSize: DefaultSampleSize,
		Confidence: 1.0,
	}
}

// InferredColumn is the inference result for one column
type InferredColumn struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	// Confidence is the fraction of non-empty values that parse as Type
	Confidence float64 `json:"confidence"`
	// Cardinality counts distinct values, capped at one past the
	// dictionary limit
	Cardinality int `json:"cardinality"`
	// DictionaryOverflow marks a string column with more distinct values
	// than a dictionary can hold
	DictionaryOverflow bool          `json:"dictionary_overflow,omitempty"`
	Examples           []string      `json:"examples,omitempty"`
	NumericStats       *NumericStats `json:"numeric_stats,omitempty"`
	StringStats        *StringStats  `json:"string_stats,omitempty"`

	colType columnar.ColumnType
}

// NumericStats holds statistics for numeric columns
type NumericStats struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// StringStats holds statistics for string columns
type StringStats struct {
	MinLength int     `json:"min_length"`
	MaxLength int     `json:"max_length"`
	AvgLength float64 `json:"avg_length"`
}

// Result is an inferred schema with per-column detail
type Result struct {
	Schema         *columnar.Schema  `json:"-"`
	Spec           string            `json:"schema"`
	Columns        []*InferredColumn `json:"columns"`
	SampledRows    int               `json:"sampled_rows"`
	MalformedLines int               `json:"malformed_lines"`
}

// InferenceEngine samples delimited input and picks the narrowest column
// type every value (or Confidence of them) fits: int32, int64, float32,
// float64, bool, then string.
type InferenceEngine struct {
	logger *zap.Logger
	opts   Options
}

// NewInferenceEngine creates an engine. Zero option fields take their
// DefaultOptions values, except Quote and Header.
func NewInferenceEngine(logger *zap.Logger, opts Options) *InferenceEngine {
	d := DefaultOptions()
	if opts.Delimiter == 0 {
		opts.Delimiter = d.Delimiter
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = d.SampleSize
	}
	if opts.Confidence <= 0 || opts.Confidence > 1 {
		opts.Confidence = d.Confidence
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceEngine{logger: logger, opts: opts}
}

// Infer reads up to SampleSize data lines from r. Blank lines are skipped;
// lines that do not split or whose field count differs from the first line
// are counted as malformed and ignored.
func (e *InferenceEngine) Infer(r io.Reader) (*Result, error) {
	sc := linesplit.NewScanner(r, 0)
	defer sc.Close()
	fs := linesplit.NewFieldSplitter(e.opts.Delimiter, e.opts.Quote, 0)

	var (
		names []string
		cols  []*columnStats
		res   = &Result{}
	)
	for res.SampledRows < e.opts.SampleSize && sc.Next() {
		line := sc.Line()
		if len(line) == 0 {
			continue
		}
		fields, err := fs.Split(line)
		if err != nil {
			res.MalformedLines++
			continue
		}

		if names == nil && e.opts.Header {
			names = headerNames(fields)
			continue
		}
		if cols == nil {
			if names == nil {
				names = positionalNames(len(fields))
			}
			cols = make([]*columnStats, len(names))
			for i := range cols {
				cols[i] = newColumnStats()
			}
		}
		if len(fields) != len(cols) {
			res.MalformedLines++
			continue
		}

		for i, f := range fields {
			cols[i].observe(f)
		}
		res.SampledRows++
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if res.SampledRows == 0 {
		return nil, errors.New(errors.ErrorTypeSchema, "no data lines to infer a schema from").
			WithDetail("malformed_lines", res.MalformedLines)
	}

	res.Schema = &columnar.Schema{}
	for i, cs := range cols {
		col := cs.infer(names[i], e.opts.Confidence)
		res.Columns = append(res.Columns, col)
		res.Schema.Fields = append(res.Schema.Fields, columnar.FieldSchema{
			Name:     col.Name,
			Type:     col.colType,
			Nullable: col.Nullable,
		})
		if col.DictionaryOverflow {
			e.logger.Warn("string column exceeds dictionary capacity",
				zap.String("column", col.Name),
				zap.Int("cardinality", col.Cardinality))
		}
	}
	if err := res.Schema.Validate(); err != nil {
		return nil, err
	}
	res.Spec = res.Schema.String()

	e.logger.Debug("inferred schema",
		zap.String("schema", res.Spec),
		zap.Int("sampled_rows", res.SampledRows),
		zap.Int("malformed_lines", res.MalformedLines))
	return res, nil
}

// candidate types in preference order
var candidates = []columnar.ColumnType{
	columnar.ColumnTypeInt32,
	columnar.ColumnTypeInt64,
	columnar.ColumnTypeFloat32,
	columnar.ColumnTypeFloat64,
	columnar.ColumnTypeBool,
}

type columnStats struct {
	values  int
	nulls   int
	fits    map[columnar.ColumnType]int
	boolLit int // bool values that are not 0 or 1
	numeric []float64
	lengths []int
	seen    map[string]struct{}
	order   []string
}

func newColumnStats() *columnStats {
	return &columnStats{
		fits: make(map[columnar.ColumnType]int, len(candidates)),
		seen: make(map[string]struct{}),
	}
}

func (c *columnStats) observe(field []byte) {
	c.values++
	c.lengths = append(c.lengths, len(field))
	if len(field) == 0 {
		c.nulls++
		return
	}
	if len(c.seen) <= columnar.MaxDictionarySize {
		if _, ok := c.seen[string(field)]; !ok {
			c.seen[string(field)] = struct{}{}
			c.order = append(c.order, string(field))
		}
	}

	s := string(bytes.TrimSpace(field))
	if _, err := strconv.ParseInt(s, 10, 32); err == nil {
		c.fits[columnar.ColumnTypeInt32]++
	}
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		c.fits[columnar.ColumnTypeInt64]++
	}
	if f64, err := strconv.ParseFloat(s, 64); err == nil {
		c.fits[columnar.ColumnTypeFloat64]++
		c.numeric = append(c.numeric, f64)
		if f32, err := strconv.ParseFloat(s, 32); err == nil &&
			strconv.FormatFloat(f32, 'g', -1, 32) == strconv.FormatFloat(f64, 'g', -1, 64) {
			c.fits[columnar.ColumnTypeFloat32]++
		}
	}
	if _, err := strconv.ParseBool(s); err == nil {
		c.fits[columnar.ColumnTypeBool]++
		if s != "0" && s != "1" {
			c.boolLit++
		}
	}
}

func (c *columnStats) infer(name string, confidence float64) *InferredColumn {
	col := &InferredColumn{
		Name:        name,
		Nullable:    c.nulls > 0,
		Cardinality: len(c.seen),
		colType:     columnar.ColumnTypeString,
		Confidence:  1,
	}
	nonNull := c.values - c.nulls

	if nonNull > 0 {
		for _, t := range candidates {
			// a column of only 0 and 1 reads as integers
			if t == columnar.ColumnTypeBool && c.boolLit == 0 {
				continue
			}
			if ratio := float64(c.fits[t]) / float64(nonNull); ratio >= confidence {
				col.colType = t
				col.Confidence = ratio
				break
			}
		}
	}
	if col.colType == columnar.ColumnTypeString {
		col.DictionaryOverflow = len(c.seen) > columnar.MaxDictionarySize
	}
	col.Type = col.colType.String()

	n := min(len(c.order), maxExamples)
	col.Examples = append([]string(nil), c.order[:n]...)

	switch {
	case col.colType.Numeric() && col.colType != columnar.ColumnTypeBool && len(c.numeric) > 0:
		st := &NumericStats{Min: math.Inf(1), Max: math.Inf(-1)}
		var sum float64
		for _, v := range c.numeric {
			st.Min = math.Min(st.Min, v)
			st.Max = math.Max(st.Max, v)
			sum += v
		}
		st.Mean = sum / float64(len(c.numeric))
		col.NumericStats = st
	case col.colType == columnar.ColumnTypeString:
		st := &StringStats{MinLength: math.MaxInt}
		var sum int
		for _, l := range c.lengths {
			st.MinLength = min(st.MinLength, l)
			st.MaxLength = max(st.MaxLength, l)
			sum += l
		}
		st.AvgLength = float64(sum) / float64(len(c.lengths))
		col.StringStats = st
	}
	return col
}

// headerNames turns header fields into unique names that survive the
// name:type notation
func headerNames(fields [][]byte) []string {
	names := make([]string, len(fields))
	used := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.Map(func(r rune) rune {
			switch r {
			case ',', ':', '?', ' ', '\t':
				return '_'
			}
			return r
		}, strings.TrimSpace(string(f)))
		if name == "" {
			name = "col" + strconv.Itoa(i+1)
		}
		if n := used[name]; n > 0 {
			used[name]++
			name += "_" + strconv.Itoa(n+1)
		} else {
			used[name] = 1
		}
		names[i] = name
	}
	return names
}

func positionalNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = "col" + strconv.Itoa(i+1)
	}
	return names
}
