// Package json writes command output and table rows as JSON using
// goccy/go-json with pooled buffers.
package json

import (
	"bytes"
	"io"

	gojson "github.com/goccy/go-json"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/pool"
)

var bufferPool = pool.New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) { b.Reset() },
)

func getBuffer() *bytes.Buffer {
	return bufferPool.Get()
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Write encodes v to w followed by a newline. The value is fully encoded
// before anything is written, so a failed encode leaves w untouched.
func Write(w io.Writer, v interface{}, pretty bool) error {
	buf := getBuffer()
	defer putBuffer(buf)

	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode JSON")
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write JSON")
	}
	return nil
}

// StreamingEncoder writes a sequence of values either as JSON lines or as
// one JSON array
type StreamingEncoder struct {
	writer  io.Writer
	encoder *gojson.Encoder
	isArray bool
	count   int
	err     error
}

// NewStreamingEncoder starts a stream on w. With isArray the values are
// wrapped in brackets and separated by commas; Close must be called.
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	se := &StreamingEncoder{writer: w, encoder: enc, isArray: isArray}
	if isArray {
		se.write([]byte{'['})
	}
	return se
}

// Encode appends one value to the stream
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.isArray && se.count > 0 {
		se.write([]byte{','})
	}
	if se.err != nil {
		return se.err
	}
	if err := se.encoder.Encode(v); err != nil {
		se.err = errors.Wrap(err, errors.ErrorTypeIO, "failed to encode JSON value")
		return se.err
	}
	se.count++
	return nil
}

// Count returns how many values have been encoded
func (se *StreamingEncoder) Count() int {
	return se.count
}

// Close terminates an array stream. It returns the first error the stream
// hit.
func (se *StreamingEncoder) Close() error {
	if se.isArray {
		se.write([]byte{']', '\n'})
	}
	return se.err
}

func (se *StreamingEncoder) write(p []byte) {
	if se.err != nil {
		return
	}
	if _, err := se.writer.Write(p); err != nil {
		se.err = errors.Wrap(err, errors.ErrorTypeIO, "failed to write JSON")
	}
}
