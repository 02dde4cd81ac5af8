package errors_test

import (
	"fmt"
	"io"

	"github.com/jackvial/processing-100-million-row-csv-in-memory/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeSchema, "unsupported column type").
		WithDetail("column", "shipped_at").
		WithDetail("type", "timestamp")

	fmt.Println(err.Error())

	// Output:
	// schema: unsupported column type
}

// ExampleWrap shows how source read failures are wrapped.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeIO, "failed to read input").
		WithDetail("bytes_read", 4096)

	if errors.IsType(err, errors.ErrorTypeIO) {
		fmt.Println("pipeline aborted by I/O error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("cause preserved")
	}

	// Output:
	// pipeline aborted by I/O error
	// cause preserved
}

// ExampleHasType shows matching a type anywhere in a wrapped chain.
func ExampleHasType() {
	inner := errors.Newf(errors.ErrorTypeMalformedLine, "expected %d fields, got %d", 4, 3)
	outer := errors.Wrap(inner, errors.ErrorTypeInternal, "worker 2 failed")

	fmt.Println(errors.IsType(outer, errors.ErrorTypeMalformedLine))
	fmt.Println(errors.HasType(outer, errors.ErrorTypeMalformedLine))

	// Output:
	// false
	// true
}
