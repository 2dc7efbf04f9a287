package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Reader reads samples from a WAL segment file.
type Reader struct {
	path   string
	file   *os.File
	r      *bufio.Reader
	offset int64

	// Statistics
	stats ReaderStats
}

// ReaderStats holds WAL reader statistics.
type ReaderStats struct {
	RecordsRead    int64
	BytesRead      int64
	CorruptRecords int64
}

// NewReader creates a new WAL reader for a segment file.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open segment: %w", err)
	}

	// Verify header
	var header [headerSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: read header: %v: %w", path, err, errors.ErrBadSegment)
	}

	magic := binary.LittleEndian.Uint64(header[0:8])
	if magic != walMagic {
		f.Close()
		return nil, fmt.Errorf("%s: invalid magic %x: %w", path, magic, errors.ErrBadSegment)
	}

	version := binary.LittleEndian.Uint32(header[8:12])
	if version != walVersion {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported version %d: %w", path, version, errors.ErrBadSegment)
	}

	return &Reader{
		path:   path,
		file:   f,
		r:      bufio.NewReader(f),
		offset: headerSize,
	}, nil
}

// ReadRecord reads the next record from the segment.
// Returns io.EOF when the segment ends cleanly on a record boundary, and an
// error matching errors.ErrCorruptRecord for a torn or damaged record.
func (r *Reader) ReadRecord() (types.Sample, error) {
	var header [recordHeaderSize]byte
	if n, err := io.ReadFull(r.r, header[:]); err != nil {
		if err == io.EOF {
			return types.Sample{}, io.EOF
		}
		return types.Sample{}, r.corrupt(fmt.Sprintf("short record header (%d bytes)", n))
	}

	length := binary.LittleEndian.Uint32(header[0:4])
	expectedCRC := binary.LittleEndian.Uint32(header[4:8])

	if length == 0 || length > maxPayloadSize {
		return types.Sample{}, r.corrupt(fmt.Sprintf("bad record length %d", length))
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r.r, payload); err != nil {
		return types.Sample{}, r.corrupt(fmt.Sprintf("short payload (%d of %d bytes)", n, length))
	}

	if actualCRC := crc32.ChecksumIEEE(payload); actualCRC != expectedCRC {
		return types.Sample{}, r.corrupt(fmt.Sprintf("CRC mismatch: expected %x, got %x", expectedCRC, actualCRC))
	}

	s, err := decodeSample(payload)
	if err != nil {
		return types.Sample{}, r.corrupt(fmt.Sprintf("decode: %v", err))
	}

	size := int64(recordHeaderSize) + int64(length)
	r.offset += size
	r.stats.RecordsRead++
	r.stats.BytesRead += size

	return s, nil
}

func (r *Reader) corrupt(reason string) error {
	r.stats.CorruptRecords++
	return errors.NewCorruption(r.path, r.offset, reason)
}

// ReadAll reads records until the end of the segment or the first corrupt
// record. The samples before the corruption are returned together with the
// corruption error; the rest of the file is not read.
func (r *Reader) ReadAll() ([]types.Sample, error) {
	var samples []types.Sample

	for {
		s, err := r.ReadRecord()
		if err == io.EOF {
			return samples, nil
		}
		if err != nil {
			return samples, err
		}
		samples = append(samples, s)
	}
}

// Close closes the reader.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Stats returns reader statistics.
func (r *Reader) Stats() ReaderStats {
	return r.stats
}

// Path returns the segment path.
func (r *Reader) Path() string {
	return r.path
}

// ReadSegment is a convenience function to read all samples from a segment file.
func ReadSegment(path string) ([]types.Sample, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}
