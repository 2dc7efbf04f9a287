package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Writer appends samples to the log of one metric tier.
// The log is a directory of segment files; each segment holds a sequence
// of self-delimited records with CRC checksums.
//
// File format:
//   - Header: 8 bytes magic + 4 bytes version
//   - Records: [4 bytes length][4 bytes crc32][payload]
//
// Segments are named "<seq>-<first timestamp ms>.log". A writer never
// appends to a segment created by an earlier process, so a torn record left
// by a crash is always the last record of its file.
type Writer struct {
	mu sync.Mutex

	dir            string
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	currentFirstTs int64
	segmentSeq     int64
	closed         bool

	buf []byte

	opts Options

	// Statistics
	stats WriterStats
}

// Options configures the WAL writer.
type Options struct {
	// MaxSegmentSize is the maximum size of a segment file before rotation.
	// Default: 4MB
	MaxSegmentSize int64

	// MaxSegmentSpan rotates a segment once its records span this much time.
	// Retention deletes whole segments, so this sets pruning granularity.
	// Zero disables time based rotation.
	MaxSegmentSpan time.Duration

	// SyncMode controls how writes reach the disk.
	// "async" - each record is one write call, fsync happens on Sync
	// "fsync" - fsync after every record
	SyncMode string
}

// DefaultOptions returns default WAL options.
func DefaultOptions() Options {
	return Options{
		MaxSegmentSize: 4 * 1024 * 1024, // 4MB
		SyncMode:       constants.SyncModeAsync,
	}
}

// WriterStats holds WAL writer statistics.
type WriterStats struct {
	SegmentsCreated int64
	RecordsWritten  int64
	BytesWritten    int64
	SyncsPerformed  int64
	Errors          int64
}

const (
	walMagic         = 0x564D53574C470001 // "VMSWLG" + version 1
	walVersion       = 1
	headerSize       = 12 // 8 bytes magic + 4 bytes version
	recordHeaderSize = 8  // 4 bytes length + 4 bytes crc

	segmentExt = ".log"
)

// NewWriter creates a new WAL writer for dir. The first segment is created
// lazily by the first Append.
func NewWriter(dir string, opts Options) (*Writer, error) {
	if opts.MaxSegmentSize <= 0 {
		opts.MaxSegmentSize = DefaultOptions().MaxSegmentSize
	}
	if opts.SyncMode == "" {
		opts.SyncMode = constants.SyncModeAsync
	}

	// Ensure directory exists
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create wal dir: %w", err)
	}

	w := &Writer{
		dir:  dir,
		opts: opts,
		buf:  make([]byte, 0, 64),
	}

	// Continue after the highest existing segment number
	segments, err := ListSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	if len(segments) > 0 {
		w.segmentSeq = segments[len(segments)-1].Seq + 1
	}

	return w, nil
}

// Append writes one sample as a single record using a single write call.
func (w *Writer) Append(s types.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errors.ErrStoreClosed
	}

	w.buf = appendRecord(w.buf[:0], s)
	recordSize := int64(len(w.buf))

	// Check if we need to rotate
	if w.currentSegment != nil && w.needsRotation(recordSize, s.TimestampMs) {
		if err := w.closeSegmentUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("rotate segment: %w", err)
		}
	}

	if w.currentSegment == nil {
		if err := w.openSegmentUnlocked(s.TimestampMs); err != nil {
			w.stats.Errors++
			return err
		}
	}

	n, err := w.currentSegment.Write(w.buf)
	if err != nil {
		w.stats.Errors++
		if n > 0 {
			// A torn record ends this segment; recovery drops it.
			_ = w.closeSegmentUnlocked()
		}
		return fmt.Errorf("write record: %w", err)
	}

	w.currentSize += recordSize
	w.stats.RecordsWritten++
	w.stats.BytesWritten += recordSize

	if w.opts.SyncMode == constants.SyncModeFsync {
		if err := w.syncUnlocked(); err != nil {
			w.stats.Errors++
			return fmt.Errorf("sync: %w", err)
		}
	}

	return nil
}

func (w *Writer) needsRotation(recordSize, tsMs int64) bool {
	if w.currentSize+recordSize > w.opts.MaxSegmentSize {
		return true
	}
	span := w.opts.MaxSegmentSpan.Milliseconds()
	return span > 0 && tsMs-w.currentFirstTs >= span
}

// Sync flushes written records to stable storage.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncUnlocked()
}

func (w *Writer) syncUnlocked() error {
	if w.currentSegment == nil {
		return nil
	}
	if err := w.currentSegment.Sync(); err != nil {
		return err
	}
	w.stats.SyncsPerformed++
	return nil
}

func (w *Writer) closeSegmentUnlocked() error {
	if w.currentSegment == nil {
		return nil
	}
	err := w.currentSegment.Sync()
	if cerr := w.currentSegment.Close(); err == nil {
		err = cerr
	}
	w.currentSegment = nil
	w.currentPath = ""
	w.currentSize = 0
	return err
}

func (w *Writer) openSegmentUnlocked(firstTs int64) error {
	segmentName := fmt.Sprintf("%016d-%d%s", w.segmentSeq, firstTs, segmentExt)
	segmentPath := filepath.Join(w.dir, segmentName)

	f, err := os.OpenFile(segmentPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create segment %s: %w", segmentPath, err)
	}

	// Write header
	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], walMagic)
	binary.LittleEndian.PutUint32(header[8:12], walVersion)

	if _, err := f.Write(header[:]); err != nil {
		f.Close()
		os.Remove(segmentPath)
		return fmt.Errorf("write header: %w", err)
	}

	w.currentSegment = f
	w.currentPath = segmentPath
	w.currentSize = headerSize
	w.currentFirstTs = firstTs
	w.segmentSeq++
	w.stats.SegmentsCreated++

	return nil
}

// Close closes the WAL writer.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.closeSegmentUnlocked()
}

// Stats returns writer statistics.
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Dir returns the log directory.
func (w *Writer) Dir() string {
	return w.dir
}

// CurrentSegment returns the path of the segment being written, or "".
func (w *Writer) CurrentSegment() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentPath
}

// Segments returns all segments of this log in order. The segment being
// written is flagged Active.
func (w *Writer) Segments() ([]SegmentInfo, error) {
	segments, err := ListSegments(w.dir)
	if err != nil {
		return nil, err
	}

	current := w.CurrentSegment()
	for i := range segments {
		segments[i].Active = segments[i].Path == current
	}
	return segments, nil
}

// DeleteSegment deletes a closed segment file.
func (w *Writer) DeleteSegment(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Don't delete current segment
	if path == w.currentPath {
		return fmt.Errorf("cannot delete active segment %s", filepath.Base(path))
	}

	return os.Remove(path)
}

// SegmentInfo holds information about a segment file.
type SegmentInfo struct {
	Path    string
	Seq     int64
	FirstTs int64
	Size    int64
	Active  bool
}

// LogInfo describes one metric tier log on disk.
type LogInfo struct {
	Metric   string
	Tier     int
	Dir      string
	Segments []SegmentInfo
}

// Bytes returns the total size of the log's segments.
func (l LogInfo) Bytes() int64 {
	var n int64
	for _, seg := range l.Segments {
		n += seg.Size
	}
	return n
}

// ListSegments returns all segment files in dir ordered by sequence.
// A missing directory has no segments.
func ListSegments(dir string) ([]SegmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var segments []SegmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		seq, firstTs, ok := parseSegmentName(entry.Name())
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		segments = append(segments, SegmentInfo{
			Path:    filepath.Join(dir, entry.Name()),
			Seq:     seq,
			FirstTs: firstTs,
			Size:    info.Size(),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Seq < segments[j].Seq
	})

	return segments, nil
}

func parseSegmentName(name string) (seq, firstTs int64, ok bool) {
	base, found := strings.CutSuffix(name, segmentExt)
	if !found {
		return 0, 0, false
	}
	seqStr, tsStr, found := strings.Cut(base, "-")
	if !found {
		return 0, 0, false
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	firstTs, err = strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return seq, firstTs, true
}
