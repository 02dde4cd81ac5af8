// Package columnar implements a fixed-width, zero-copy column store.
//
// # Layout
//
// Every column owns one contiguous byte buffer of rowCount*width bytes.
// Cells are little-endian:
//
//	int32, float32   4 bytes
//	int64, float64   8 bytes
//	bool             1 byte, 0 or 1
//	string           1 byte index into the column's Dictionary
//
// Nullable columns add one byte per row; a non-zero byte marks the cell null.
//
// # Lifecycle
//
// Allocate fixes the schema and row capacity before ingestion. Writers fill
// cells with the Set* methods, each at its own row index, so concurrent
// writers never touch the same bytes. Finalize trims the table to the rows
// actually written, drops rejected rows, renumbers dictionaries so indices
// follow first appearance in row order, and freezes the table.
//
// # Queries
//
//	groups, err := columnar.GroupBy(table, "color")
//	sums, err := columnar.Sum(groups, table, "amount")
//	for _, k := range groups.Keys() {
//	    fmt.Println(k, sums[k])
//	}
//
// Rows are materialized on demand with GetRow or an Iterator; nothing is
// stored row-wise.
package columnar
