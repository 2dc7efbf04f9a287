// Package parquet implements Parquet file reading and writing for archived
// tier samples.
//
// The package provides:
//   - SampleWriter/SampleReader for metric tier samples
//   - Support for multiple compression algorithms (snappy, zstd, lz4, gzip)
//   - Type conversion between storage records and Parquet rows
package parquet
