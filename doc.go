// Package colframe loads large delimited text files into a compact,
// fixed-schema columnar table held in memory.
//
// A file is read in large chunks and split into lines. Lines are handed
// round-robin to a set of decoder workers through per-worker staging
// regions, and each worker writes its rows straight into preallocated
// column buffers at the row's position in the file. Numeric and boolean
// columns are stored as fixed-width little-endian values; string columns
// store a one-byte index into a per-column dictionary of at most 256
// distinct values.
//
// # Packages
//
//   - pkg/columnar: schema, table, column buffers, dictionaries, iteration,
//     group-by aggregation and Arrow conversion
//   - internal/pipeline: the chunk reader, staging regions, coordinator and
//     decoder workers
//   - pkg/linesplit: chunked line scanning and quoted field splitting
//   - pkg/formats: Parquet, Arrow IPC, Avro and JSON Lines export
//   - pkg/schema: schema inference from a sample of lines
//   - pkg/config: YAML configuration with environment overrides
//
// # Command line
//
// The colframe command loads, queries, exports and benchmarks files:
//
//	colframe load -f data.csv -s id:int32,amount:float32,flag:bool,color:string
//	colframe query -f data.csv -s ... --group-by color --sum amount
//	colframe export -f data.csv -s ... -o data.parquet
//	colframe infer -f data.csv --header --schema-only
//	colframe bench -f data.csv -s ... --worker-counts 1,2,4,8
package colframe
