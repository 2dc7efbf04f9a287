package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/parquet"
	"github.com/xtxerr/vmstats/internal/storage/wal"
)

var log = logging.Component("archive")

// Archiver converts log segments into Parquet files.
type Archiver struct {
	mu sync.Mutex

	dir  string
	opts parquet.Options

	stats ArchiverStats
}

// ArchiverStats holds archiver statistics.
type ArchiverStats struct {
	FilesWritten   int64
	RowsWritten    int64
	EmptySegments  int64
	CorruptRecords int64
	Errors         int64
}

// NewArchiver creates an archiver writing below the configured archive dir.
func NewArchiver(cfg *config.Config) *Archiver {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	return &Archiver{
		dir: cfg.ArchiveDir(),
		opts: parquet.Options{
			Compression: parquet.ParseCompressionType(cfg.Retention.Archive.Compression.Algorithm),
		},
	}
}

// Path returns the Parquet file a segment is archived to.
func (a *Archiver) Path(metric string, tier int, seg wal.SegmentInfo) string {
	name := strings.TrimSuffix(filepath.Base(seg.Path), filepath.Ext(seg.Path)) + ".parquet"
	return filepath.Join(a.dir, metric, config.TierDirName(tier), name)
}

// Archive writes the readable records of seg to Parquet. A torn tail is
// archived up to the damage. Segments without records produce no file.
func (a *Archiver) Archive(metric string, tier int, seg wal.SegmentInfo) error {
	samples, err := wal.ReadSegment(seg.Path)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrBadSegment):
		// Nothing readable; the segment was torn before its header landed.
		log.Warn("segment has no valid header, nothing to archive", "metric", metric, "tier", tier, "path", seg.Path)
	case !errors.IsCorruption(err):
		a.countError()
		return fmt.Errorf("read segment: %w", err)
	default:
		log.Warn("archiving damaged segment", "metric", metric, "tier", tier, "error", err)
		a.mu.Lock()
		a.stats.CorruptRecords++
		a.mu.Unlock()
	}

	if len(samples) == 0 {
		a.mu.Lock()
		a.stats.EmptySegments++
		a.mu.Unlock()
		return nil
	}

	path := a.Path(metric, tier, seg)
	tmp := path + ".tmp"

	w, err := parquet.NewSampleWriter(tmp, a.opts)
	if err != nil {
		a.countError()
		return err
	}
	if err := w.Write(metric, tier, samples); err != nil {
		w.Close()
		os.Remove(tmp)
		a.countError()
		return err
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		a.countError()
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		a.countError()
		return fmt.Errorf("rename archive: %w", err)
	}

	a.mu.Lock()
	a.stats.FilesWritten++
	a.stats.RowsWritten += int64(len(samples))
	a.mu.Unlock()

	log.Debug("segment archived", "metric", metric, "tier", tier, "rows", len(samples), "path", path)
	return nil
}

func (a *Archiver) countError() {
	a.mu.Lock()
	a.stats.Errors++
	a.mu.Unlock()
}

// Stats returns archiver statistics.
func (a *Archiver) Stats() ArchiverStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}
