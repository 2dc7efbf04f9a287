// Package archive keeps pruned log segments as Parquet files and runs SQL
// over them.
//
// The Archiver plugs into the retention manager: before a segment is deleted
// its samples are written to
//
//	<archive dir>/<metric>/t<tier>/<seq>-<firstTsMs>.parquet
//
// The Analyzer opens an in-memory DuckDB database and queries those files
// with read_parquet. It serves the operator shell and never touches the live
// logs.
package archive
