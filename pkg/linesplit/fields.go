package linesplit

import (
	"bytes"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// FieldSplitter cuts a line into delimited fields. A field that starts
// with the quote byte runs to the matching closing quote, and a doubled
// quote inside it stands for one literal quote. A zero quote disables
// quoting. A FieldSplitter is not safe for concurrent use; its buffers are
// reused across lines.
type FieldSplitter struct {
	delimiter byte
	quote     byte
	fields    [][]byte
	scratch   []byte
}

// NewFieldSplitter creates a splitter. fieldsHint presizes the field slice.
func NewFieldSplitter(delimiter, quote byte, fieldsHint int) *FieldSplitter {
	return &FieldSplitter{
		delimiter: delimiter,
		quote:     quote,
		fields:    make([][]byte, 0, fieldsHint),
	}
}

// Split returns the fields of line. Unquoted fields alias line; quoted
// fields are unescaped into an internal buffer. The result is valid until
// the next call. Errors are malformed-line errors.
func (s *FieldSplitter) Split(line []byte) ([][]byte, error) {
	s.fields = s.fields[:0]
	// sized so quoted content never reallocates mid-line
	if cap(s.scratch) < len(line) {
		s.scratch = make([]byte, 0, len(line))
	}
	s.scratch = s.scratch[:0]

	i := 0
	for {
		if s.quote != 0 && i < len(line) && line[i] == s.quote {
			field, next, err := s.quoted(line, i+1)
			if err != nil {
				return nil, err
			}
			s.fields = append(s.fields, field)
			if next == len(line) {
				return s.fields, nil
			}
			if line[next] != s.delimiter {
				return nil, errors.New(errors.ErrorTypeMalformedLine, "unexpected character after closing quote").
					WithDetail("position", next)
			}
			i = next + 1
			continue
		}

		j := bytes.IndexByte(line[i:], s.delimiter)
		if j < 0 {
			s.fields = append(s.fields, line[i:])
			return s.fields, nil
		}
		s.fields = append(s.fields, line[i:i+j])
		i += j + 1
	}
}

// quoted scans a quoted field whose content starts at i. It returns the
// unescaped content and the index just past the closing quote.
func (s *FieldSplitter) quoted(line []byte, i int) ([]byte, int, error) {
	start := len(s.scratch)
	for i < len(line) {
		c := line[i]
		if c != s.quote {
			s.scratch = append(s.scratch, c)
			i++
			continue
		}
		if i+1 < len(line) && line[i+1] == s.quote {
			s.scratch = append(s.scratch, s.quote)
			i += 2
			continue
		}
		return s.scratch[start:len(s.scratch):len(s.scratch)], i + 1, nil
	}
	return nil, 0, errors.New(errors.ErrorTypeMalformedLine, "unterminated quoted field")
}
