// Package config loads the configuration of a colframe ingestion run.
//
// IngestConfig groups settings into sections:
//   - Source: input path, schema, row capacity, delimiter and quote
//   - Performance: workers, staging region sizes, overflow policy
//   - Reliability: malformed-line policy
//   - Observability: log level, metrics listener, tracing
//   - Advanced: compression and memory reporting after a load
//
// Files are YAML. ${VAR} and ${VAR:-default} are replaced from the
// environment before parsing:
//
//	name: nightly
//	source:
//	  path: ${DATA_DIR}/events.csv
//	  schema: id:int64,amount:float64,region:string
//	  header: true
//	performance:
//	  workers: ${WORKERS:-8}
//
// Load them with LoadIngestConfig, which applies NewIngestConfig defaults
// first and validates the result.
package config
