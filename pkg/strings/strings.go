// Package strings provides zero-copy byte/string conversions and pooled
// formatting helpers used on the ingestion hot path.
package strings

import (
	"fmt"
	"unsafe"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/pool"
)

// BytesToString converts byte slice to string without allocation
// WARNING: The returned string shares memory with the byte slice.
// Do not modify the byte slice while the string is in use.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes converts string to byte slice without allocation
// WARNING: The returned byte slice shares memory with the string.
// Do not modify the returned slice.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Clone creates a copy of a string that owns its memory. Strings produced by
// BytesToString over staging buffers must be cloned before they are retained.
func Clone(s string) string {
	if len(s) == 0 {
		return ""
	}
	b := make([]byte, len(s))
	copy(b, s)
	return BytesToString(b)
}

// Builder provides efficient string building over a reusable byte buffer
type Builder struct {
	buf []byte
}

// NewBuilder creates a new string builder
func NewBuilder(capacity int) *Builder {
	return &Builder{
		buf: make([]byte, 0, capacity),
	}
}

// WriteString appends a string to the builder
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteByte appends a single byte
func (b *Builder) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Write implements io.Writer
func (b *Builder) Write(p []byte) (n int, err error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns a view of the built string. It is only valid until the
// builder is written to or reset.
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Len returns the number of bytes written
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset clears the builder for reuse
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

var builderPool = pool.New(
	func() *Builder { return NewBuilder(256) },
	func(b *Builder) { b.Reset() },
)

// GetBuilder retrieves a reset builder from the pool
func GetBuilder() *Builder {
	return builderPool.Get()
}

// PutBuilder returns a builder to the pool
func PutBuilder(builder *Builder) {
	if builder == nil {
		return
	}
	// Oversized buffers are left to the GC
	if cap(builder.buf) > 64*1024 {
		return
	}
	builderPool.Put(builder)
}

// Sprintf provides a pooled alternative to fmt.Sprintf
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	builder := GetBuilder()
	defer PutBuilder(builder)

	fmt.Fprintf(builder, format, args...)

	return Clone(builder.String())
}
