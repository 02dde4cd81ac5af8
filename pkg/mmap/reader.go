// Package mmap maps input files read-only so the ingestion pipeline can
// scan them without read syscalls, and sizes tables by counting lines.
package mmap

import (
	"bytes"
	"io"
	"os"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// Reader is a read-only mapping of an entire file
type Reader struct {
	file     *os.File
	data     []byte
	pageSize int
}

// Open maps path into memory. An empty file yields an empty Reader; it has
// nothing to map.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to open file").WithDetail("path", path)
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to stat file").WithDetail("path", path)
	}

	r := &Reader{file: file, pageSize: os.Getpagesize()}
	size := stat.Size()
	if size == 0 {
		return r, nil
	}
	if int64(int(size)) != size {
		_ = file.Close()
		return nil, errors.New(errors.ErrorTypeCapacityOverflow, "file too large to map").WithDetail("size", size)
	}

	data, err := mmap(file, int(size))
	if err != nil {
		_ = file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to mmap file").WithDetail("path", path)
	}
	// advisory only
	_ = madvise(data, madvSequential)

	r.data = data
	return r, nil
}

// Bytes returns the mapped contents. The slice is invalid after Close.
func (r *Reader) Bytes() []byte {
	return r.data
}

// Len returns the file size
func (r *Reader) Len() int {
	return len(r.data)
}

// NewReader returns an io.Reader over the whole mapping
func (r *Reader) NewReader() io.Reader {
	return bytes.NewReader(r.data)
}

// ReadRange returns the mapped bytes in [offset, offset+length), clipped to
// the end of the file, and asks the kernel to fault them in
func (r *Reader) ReadRange(offset, length int) ([]byte, error) {
	if offset < 0 || offset >= len(r.data) || length < 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "range out of bounds").
			WithDetail("offset", offset).
			WithDetail("length", length).
			WithDetail("size", len(r.data))
	}
	end := offset + length
	if end > len(r.data) {
		end = len(r.data)
	}
	r.prefetch(offset, end)
	return r.data[offset:end], nil
}

// prefetch advises the kernel about the page-aligned span covering [start, end)
func (r *Reader) prefetch(start, end int) {
	start = start / r.pageSize * r.pageSize
	if end <= start {
		return
	}
	_ = madvise(r.data[start:end], madvWillneed)
}

// Close unmaps the file and closes it
func (r *Reader) Close() error {
	var err error
	if r.data != nil {
		err = munmap(r.data)
		r.data = nil
	}
	if r.file != nil {
		if closeErr := r.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		r.file = nil
	}
	return err
}

// CountLines returns the number of lines in data, counting a final line
// without a trailing newline. It is an upper bound on the rows a table
// needs to hold the file.
func CountLines(data []byte) int {
	n := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// CountFileLines maps path and counts its lines
func CountFileLines(path string) (int, error) {
	r, err := Open(path)
	if err != nil {
		return 0, err
	}
	n := CountLines(r.Bytes())
	return n, r.Close()
}
