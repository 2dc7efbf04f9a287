package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/storage/wal"
)

var log = logging.Component("store")

// Store persists tier samples as one append-only log per metric tier.
//
// Layout:
//
//	<dir>/.lock
//	<dir>/<metric>/t<tier>/<seq>-<firstTsMs>.log
//
// Writers are opened lazily on the first Append to a log. Every write is a
// single record so a crash leaves at most one torn record per log.
type Store struct {
	mu sync.Mutex

	config  *config.Config
	lock    *flock.Flock
	writers map[logKey]*wal.Writer
	spans   map[logKey]time.Duration
	closed  bool
}

type logKey struct {
	metric string
	tier   int
}

// Open opens the storage directory and takes its writer lock.
// A read-only store skips the lock and rejects appends.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil || cfg.MemoryOnly() {
		return nil, errors.NewMissingField("storage.dir")
	}

	if !cfg.ReadOnly {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, errors.NewPersistenceError("open", err)
		}
	}

	s := &Store{
		config:  cfg,
		writers: make(map[logKey]*wal.Writer),
		spans:   make(map[logKey]time.Duration),
	}

	if !cfg.ReadOnly {
		lock := flock.New(cfg.LockPath())
		locked, err := lock.TryLock()
		if err != nil {
			return nil, errors.NewPersistenceError("lock", err)
		}
		if !locked {
			return nil, fmt.Errorf("%s: %w", cfg.Dir, errors.ErrStoreLocked)
		}
		s.lock = lock
	}

	return s, nil
}

// Declare records the tier layout of a metric. Segments of a declared tier
// rotate once they span a quarter of the tier's coverage, which bounds how
// much expired data a log keeps before pruning can drop it.
func (s *Store) Declare(metric string, tiers []types.TierSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range tiers {
		s.spans[logKey{metric, i}] = t.Coverage() / 4
	}
}

// Append writes one sample to the log of a metric tier.
func (s *Store) Append(metric string, tier int, sample types.Sample) error {
	w, err := s.writer(metric, tier)
	if err != nil {
		return err
	}
	if err := w.Append(sample); err != nil {
		return errors.NewPersistenceError(fmt.Sprintf("append %s/t%d", metric, tier), err)
	}
	return nil
}

func (s *Store) writer(metric string, tier int) (*wal.Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrStoreClosed
	}
	if s.config.ReadOnly {
		return nil, errors.NewPersistenceError("append", errors.New("store is read-only"))
	}

	key := logKey{metric, tier}
	if w, ok := s.writers[key]; ok {
		return w, nil
	}

	w, err := wal.NewWriter(s.config.LogDir(metric, tier), wal.Options{
		MaxSegmentSize: s.config.WAL.MaxSegmentSize,
		MaxSegmentSpan: s.spans[key],
		SyncMode:       s.config.WAL.SyncMode,
	})
	if err != nil {
		return nil, errors.NewPersistenceError(fmt.Sprintf("open %s/t%d", metric, tier), err)
	}
	s.writers[key] = w
	return w, nil
}

// Sync flushes every open log to stable storage.
func (s *Store) Sync() error {
	s.mu.Lock()
	writers := make([]*wal.Writer, 0, len(s.writers))
	for _, w := range s.writers {
		writers = append(writers, w)
	}
	s.mu.Unlock()

	var errs []error
	for _, w := range writers {
		if err := w.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", w.Dir(), err))
		}
	}
	if len(errs) > 0 {
		return errors.NewPersistenceError("sync", errors.Join(errs...))
	}
	return nil
}

// Close closes all logs and releases the directory lock.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	for key, w := range s.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s/t%d: %w", key.metric, key.tier, err))
		}
	}
	s.writers = nil

	if s.lock != nil {
		if err := s.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("unlock: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Dir returns the storage directory.
func (s *Store) Dir() string {
	return s.config.Dir
}

// =============================================================================
// Recovery
// =============================================================================

// LoadedLog is the replayed content of one metric tier log.
type LoadedLog struct {
	Metric  string
	Tier    int
	Samples []types.Sample
	Files   int

	// Corrupt holds one error per segment whose replay stopped early.
	Corrupt []error
}

// LoadAll reads every log in the directory. Segments are read in sequence
// order; a corrupt record ends its segment and the remaining segments of the
// log are still read. Logs are read in parallel.
func (s *Store) LoadAll(ctx context.Context) ([]LoadedLog, error) {
	logs, err := s.Logs()
	if err != nil {
		return nil, err
	}

	out := make([]LoadedLog, len(logs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, l := range logs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			loaded := LoadedLog{Metric: l.Metric, Tier: l.Tier, Files: len(l.Segments)}
			for _, seg := range l.Segments {
				samples, err := wal.ReadSegment(seg.Path)
				loaded.Samples = append(loaded.Samples, samples...)
				if err != nil {
					if !errors.IsCorruption(err) {
						err = errors.NewCorruption(seg.Path, 0, err.Error())
					}
					loaded.Corrupt = append(loaded.Corrupt, err)
				}
			}
			out[i] = loaded
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Logs lists every metric tier log in the directory, ordered by metric and
// tier. Segments of logs with an open writer carry the Active flag.
func (s *Store) Logs() ([]wal.LogInfo, error) {
	metrics, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return nil, errors.NewPersistenceError("list", err)
	}

	var logs []wal.LogInfo
	for _, m := range metrics {
		if !m.IsDir() || strings.HasPrefix(m.Name(), ".") {
			continue
		}

		tiers, err := os.ReadDir(s.config.MetricDir(m.Name()))
		if err != nil {
			log.Warn("skipping metric directory", "metric", m.Name(), "error", err)
			continue
		}

		for _, t := range tiers {
			tier, ok := config.ParseTierDirName(t.Name())
			if !t.IsDir() || !ok {
				continue
			}

			dir := s.config.LogDir(m.Name(), tier)
			segments, err := s.segments(m.Name(), tier, dir)
			if err != nil {
				log.Warn("skipping log", "dir", dir, "error", err)
				continue
			}

			logs = append(logs, wal.LogInfo{
				Metric:   m.Name(),
				Tier:     tier,
				Dir:      dir,
				Segments: segments,
			})
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].Metric != logs[j].Metric {
			return logs[i].Metric < logs[j].Metric
		}
		return logs[i].Tier < logs[j].Tier
	})

	return logs, nil
}

// segments lists the segments of one log. An open writer flags its active
// segment.
func (s *Store) segments(metric string, tier int, dir string) ([]wal.SegmentInfo, error) {
	s.mu.Lock()
	w, ok := s.writers[logKey{metric, tier}]
	s.mu.Unlock()
	if !ok {
		return wal.ListSegments(dir)
	}
	return w.Segments()
}

// DeleteSegment removes a closed segment of a log.
// The active segment of an open writer is never deleted.
func (s *Store) DeleteSegment(metric string, tier int, path string) error {
	s.mu.Lock()
	if s.config.ReadOnly {
		s.mu.Unlock()
		return errors.NewPersistenceError("delete", errors.New("store is read-only"))
	}
	w, ok := s.writers[logKey{metric, tier}]
	s.mu.Unlock()

	if ok {
		return w.DeleteSegment(path)
	}
	return os.Remove(path)
}

// DiskUsage returns the number of bytes used by the storage directory.
func (s *Store) DiskUsage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total, err
}
