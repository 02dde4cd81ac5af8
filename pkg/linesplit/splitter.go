// Package linesplit turns a stream of arbitrarily aligned byte chunks into
// lines. A line ends at '\n'; one '\r' directly before it is dropped. Lines
// that straddle chunk boundaries are carried over and completed by the next
// chunk, so the emitted sequence does not depend on how the input was cut.
package linesplit

import (
	"bytes"
	"io"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/pool"
)

// DefaultChunkSize is the read size used by Scanner when none is given
const DefaultChunkSize = 64 * 1024

// EmitFunc receives one line. The slice is only valid for the duration of
// the call.
type EmitFunc func(line []byte) error

// Splitter is the push-style splitter. It is not safe for concurrent use.
type Splitter struct {
	carry []byte
}

// NewSplitter creates a Splitter
func NewSplitter() *Splitter {
	return &Splitter{}
}

// Write splits chunk, emitting every line it completes. The trailing partial
// line is kept for the next Write or Flush. An error from emit stops the
// split and is returned as is.
func (s *Splitter) Write(chunk []byte, emit EmitFunc) error {
	for len(chunk) > 0 {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			s.carry = append(s.carry, chunk...)
			return nil
		}

		line := chunk[:i]
		if len(s.carry) > 0 {
			s.carry = append(s.carry, line...)
			line = s.carry
		}
		if err := emit(trimCR(line)); err != nil {
			return err
		}
		s.carry = s.carry[:0]
		chunk = chunk[i+1:]
	}
	return nil
}

// Flush emits the buffered remainder, if any, as the final line
func (s *Splitter) Flush(emit EmitFunc) error {
	if len(s.carry) == 0 {
		return nil
	}
	line := trimCR(s.carry)
	s.carry = s.carry[:0]
	return emit(line)
}

// Buffered returns the number of bytes held for an incomplete line
func (s *Splitter) Buffered() int {
	return len(s.carry)
}

func trimCR(line []byte) []byte {
	if n := len(line); n > 0 && line[n-1] == '\r' {
		return line[:n-1]
	}
	return line
}

// Scanner is the pull-style splitter over an io.Reader. The sequence is
// finite and cannot be restarted.
//
//	sc := linesplit.NewScanner(r, 0)
//	defer sc.Close()
//	for sc.Next() {
//	    handle(sc.Line())
//	}
//	if err := sc.Err(); err != nil {
//	    ...
//	}
type Scanner struct {
	r       io.Reader
	chunk   []byte
	pending []byte // unscanned part of the last chunk
	carry   []byte
	line    []byte
	lines   int64
	bytes   int64
	err     error
	eof     bool
	done    bool
}

// NewScanner creates a Scanner reading chunkSize bytes at a time. A
// non-positive chunkSize uses DefaultChunkSize.
func NewScanner(r io.Reader, chunkSize int) *Scanner {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Scanner{
		r:     r,
		chunk: pool.Buffers.Get(chunkSize),
	}
}

// Close returns the read buffer to the pool. The current line becomes
// invalid and Next reports false from then on.
func (s *Scanner) Close() {
	if s.chunk == nil {
		return
	}
	pool.Buffers.Put(s.chunk)
	s.chunk, s.pending, s.line = nil, nil, nil
	s.done = true
}

// Next advances to the next line. It returns false at end of input or on a
// read error; check Err afterwards.
func (s *Scanner) Next() bool {
	if s.done {
		return false
	}
	for {
		if i := bytes.IndexByte(s.pending, '\n'); i >= 0 {
			line := s.pending[:i]
			s.pending = s.pending[i+1:]
			if len(s.carry) > 0 {
				s.carry = append(s.carry, line...)
				line = s.carry
				s.carry = s.carry[:0]
			}
			s.setLine(line)
			return true
		}
		// pending is overwritten by the next read
		s.carry = append(s.carry, s.pending...)
		s.pending = nil

		if s.eof {
			s.done = true
			if len(s.carry) > 0 {
				s.setLine(s.carry)
				s.carry = s.carry[:0]
				return true
			}
			return false
		}

		n, err := s.r.Read(s.chunk)
		s.bytes += int64(n)
		s.pending = s.chunk[:n]
		if err == io.EOF {
			s.eof = true
		} else if err != nil {
			s.err = errors.Wrap(err, errors.ErrorTypeIO, "failed to read input")
			s.done = true
			return false
		}
	}
}

func (s *Scanner) setLine(line []byte) {
	s.line = trimCR(line)
	s.lines++
}

// Line returns the current line. It is valid until the next call to Next.
func (s *Scanner) Line() []byte {
	return s.line
}

// Err returns the first read error, wrapped as an io error
func (s *Scanner) Err() error {
	return s.err
}

// Lines returns how many lines have been produced so far
func (s *Scanner) Lines() int64 {
	return s.lines
}

// BytesRead returns how many bytes have been read from the source
func (s *Scanner) BytesRead() int64 {
	return s.bytes
}
