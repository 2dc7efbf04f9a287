package parquet

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Options configures the Parquet writer.
type Options struct {
	// Compression algorithm
	Compression CompressionType
}

// CompressionType represents a Parquet compression algorithm.
type CompressionType int

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// DefaultOptions returns default Parquet options.
func DefaultOptions() Options {
	return Options{
		Compression: CompressionZstd,
	}
}

// ParseCompressionType parses a compression type string.
func ParseCompressionType(s string) CompressionType {
	switch s {
	case "snappy":
		return CompressionSnappy
	case "zstd", "":
		return CompressionZstd
	case "lz4":
		return CompressionLZ4
	case "gzip":
		return CompressionGzip
	case "none":
		return CompressionNone
	default:
		return CompressionZstd
	}
}

// getCompression returns the parquet-go compression codec.
func getCompression(ct CompressionType) compress.Codec {
	switch ct {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// SampleRow represents a tier sample in Parquet format.
type SampleRow struct {
	Metric      string  `parquet:"metric,zstd"`
	Tier        int32   `parquet:"tier"`
	TimestampMs int64   `parquet:"timestamp_ms"`
	Value       float64 `parquet:"value"`
	Max         float64 `parquet:"max"`
}

// RecordToRow converts a Record to a SampleRow.
func RecordToRow(r *types.Record) SampleRow {
	return SampleRow{
		Metric:      r.Metric,
		Tier:        int32(r.Tier),
		TimestampMs: r.Sample.TimestampMs,
		Value:       r.Sample.Value,
		Max:         r.Sample.Max,
	}
}

// RowToRecord converts a SampleRow to a Record.
func RowToRecord(r *SampleRow) types.Record {
	return types.Record{
		Metric: r.Metric,
		Tier:   int(r.Tier),
		Sample: types.Sample{
			TimestampMs: r.TimestampMs,
			Value:       r.Value,
			Max:         r.Max,
		},
	}
}

// SampleWriter writes tier samples to a Parquet file.
type SampleWriter struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	writer   *parquet.GenericWriter[SampleRow]
	rowCount int64
	closed   bool
}

// NewSampleWriter creates a new sample Parquet writer.
func NewSampleWriter(path string, opts Options) (*SampleWriter, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	writer := parquet.NewGenericWriter[SampleRow](f,
		parquet.Compression(getCompression(opts.Compression)),
	)

	return &SampleWriter{
		path:   path,
		file:   f,
		writer: writer,
	}, nil
}

// Write writes samples of one metric tier to the Parquet file.
func (w *SampleWriter) Write(metric string, tier int, samples []types.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([]SampleRow, len(samples))
	for i, s := range samples {
		rows[i] = SampleRow{
			Metric:      metric,
			Tier:        int32(tier),
			TimestampMs: s.TimestampMs,
			Value:       s.Value,
			Max:         s.Max,
		}
	}
	return w.writeRows(rows)
}

// WriteRecords writes records to the Parquet file.
func (w *SampleWriter) WriteRecords(records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]SampleRow, len(records))
	for i := range records {
		rows[i] = RecordToRow(&records[i])
	}
	return w.writeRows(rows)
}

func (w *SampleWriter) writeRows(rows []SampleRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWriterClosed
	}

	n, err := w.writer.Write(rows)
	if err != nil {
		return fmt.Errorf("write rows: %w", err)
	}

	w.rowCount += int64(n)
	return nil
}

// Close closes the writer.
func (w *SampleWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close writer: %w", err)
	}

	return w.file.Close()
}

// RowCount returns the number of rows written.
func (w *SampleWriter) RowCount() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rowCount
}

// Path returns the file path.
func (w *SampleWriter) Path() string {
	return w.path
}

// ErrWriterClosed is returned when writing to a closed writer.
var ErrWriterClosed = fmt.Errorf("parquet writer is closed")
