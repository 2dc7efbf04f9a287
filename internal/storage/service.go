package storage

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/storage/archive"
	"github.com/xtxerr/vmstats/internal/storage/backpressure"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/ingestion"
	"github.com/xtxerr/vmstats/internal/storage/retention"
	"github.com/xtxerr/vmstats/internal/storage/types"
	"github.com/xtxerr/vmstats/internal/storage/wal"
)

// Service is the statistics store as seen by the collector. It orchestrates
// the segment store, the persistence queue, backpressure and retention.
//
// Without a storage directory the service is memory-only: every call
// succeeds and nothing is written.
type Service struct {
	mu sync.RWMutex

	config *config.Config
	clock  clock.Clock

	// Components, nil when memory-only
	store        *Store
	ingestion    *ingestion.Service
	backpressure *backpressure.Controller
	retention    *retention.Manager
	archiver     *archive.Archiver

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	startTime time.Time
}

// New creates a new storage service. tiers describes the in-memory side of
// every log and is consulted by retention.
func New(cfg *config.Config, tiers retention.Tiers, clk clock.Clock) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		config: cfg,
		clock:  clk,
	}
	if cfg.MemoryOnly() {
		log.Info("no storage directory configured, statistics are memory-only")
		return s, nil
	}

	store, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	ing, err := ingestion.New(cfg, store, clk)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create persistence: %w", err)
	}

	s.store = store
	s.ingestion = ing
	s.backpressure = backpressure.New(cfg, ing, clk)
	s.retention = retention.New(cfg, store, tiers, clk)

	if cfg.Retention.Archive.Enabled {
		s.archiver = archive.NewArchiver(cfg)
		s.retention.SetArchiver(s.archiver)
	}

	s.backpressure.SetOnLevelChange(s.onBackpressureChange)

	return s, nil
}

// MemoryOnly reports whether the service persists nothing.
func (s *Service) MemoryOnly() bool {
	return s.store == nil
}

// Declare tells the store the tier layout of a metric. Segment rotation of
// each log follows its tier's coverage.
func (s *Service) Declare(metric string, tiers []types.TierSpec) {
	if s.store != nil {
		s.store.Declare(metric, tiers)
	}
}

// LoadAll reads every persisted log. Damaged records end their file and are
// reported in the result, never as an error.
func (s *Service) LoadAll(ctx context.Context) ([]LoadedLog, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.LoadAll(ctx)
}

// Start starts persistence and the background workers.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("service already running")
	}

	s.mu.Lock()
	s.startTime = s.clock.Now()
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}

	if err := s.ingestion.Start(); err != nil {
		s.running.Store(false)
		return fmt.Errorf("start persistence: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.backpressure.IsEnabled() && s.config.Persistence.Mode == constants.PersistenceModeAsync {
		s.wg.Add(1)
		go s.backpressureWorker()
	}

	if s.config.Retention.Enabled {
		s.wg.Add(1)
		go s.retentionWorker()
	}

	return nil
}

// Stop stops the workers, flushes queued records best effort until ctx is
// done and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.store == nil {
		return nil
	}

	s.cancel()
	s.wg.Wait()

	var errs []error

	if err := s.ingestion.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop persistence: %w", err))
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}

	return errors.Join(errs...)
}

// Submit hands new tier samples to persistence. Failures are persistence
// errors; the caller keeps collecting in memory.
func (s *Service) Submit(records []types.Record) error {
	if s.store == nil || len(records) == 0 {
		return nil
	}
	if !s.running.Load() {
		return errors.NewPersistenceError("submit", errors.ErrStoreClosed)
	}

	return s.ingestion.Submit(records)
}

// backpressureWorker periodically checks queue pressure.
func (s *Service) backpressureWorker() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkBackpressure()
		}
	}
}

func (s *Service) checkBackpressure() {
	s.backpressure.Check()

	if !s.backpressure.ShouldDrop() || s.config.Persistence.Durability != constants.DurabilityDrop {
		return
	}

	n := s.ingestion.Shed(s.config.Backpressure.Thresholds.Critical)
	if n > 0 {
		s.backpressure.RecordDrop(n)
		log.Warn("persistence queue shed", "records", n, "usage", s.ingestion.UsageRatio())
	}
}

// retentionWorker periodically prunes expired segments.
func (s *Service) retentionWorker() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.config.Retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.backpressure.ShouldPauseRetention() {
				log.Debug("retention paused", "level", s.backpressure.CurrentLevel())
				continue
			}
			if _, err := s.RunRetention(); err != nil {
				log.Warn("retention failed", "error", err)
			}
		}
	}
}

// onBackpressureChange logs backpressure level changes.
func (s *Service) onBackpressureChange(old, new backpressure.Level) {
	if new > old {
		log.Warn("backpressure raised", "from", old, "to", new)
		return
	}
	log.Info("backpressure lowered", "from", old, "to", new)
}

// RunRetention prunes expired segments now.
func (s *Service) RunRetention() ([]retention.CleanupResult, error) {
	if s.retention == nil {
		return nil, nil
	}

	results, err := s.retention.RunCleanup()
	if err != nil {
		return nil, err
	}

	var deleted int
	var freed int64
	for _, r := range results {
		deleted += r.SegmentsDeleted
		freed += r.BytesFreed
		for _, e := range r.Errors {
			log.Warn("retention error", "metric", r.Metric, "tier", r.Tier, "error", e)
		}
	}
	if deleted > 0 {
		log.Info("retention completed", "segments", deleted, "bytes", freed)
	}

	return results, nil
}

// DryRunRetention reports what RunRetention would delete.
func (s *Service) DryRunRetention() ([]retention.CleanupResult, error) {
	if s.retention == nil {
		return nil, nil
	}
	return s.retention.DryRun()
}

// DiskUsage returns the bytes used by the storage directory, 0 when
// memory-only.
func (s *Service) DiskUsage() int64 {
	if s.store == nil {
		return 0
	}
	n, err := s.store.DiskUsage()
	if err != nil {
		log.Debug("disk usage", "error", err)
	}
	return n
}

// GetDiskUsage returns disk usage per metric tier.
func (s *Service) GetDiskUsage() ([]retention.DiskUsage, error) {
	if s.retention == nil {
		return nil, nil
	}
	return s.retention.GetDiskUsage()
}

// Logs lists the logs on disk.
func (s *Service) Logs() ([]wal.LogInfo, error) {
	if s.store == nil {
		return nil, nil
	}
	return s.store.Logs()
}

// ForceFlush forces an immediate flush of queued records.
func (s *Service) ForceFlush() {
	if s.ingestion != nil {
		s.ingestion.ForceFlush()
	}
}

// BackpressureLevel returns the current backpressure level.
func (s *Service) BackpressureLevel() backpressure.Level {
	if s.backpressure == nil {
		return backpressure.LevelNormal
	}
	return s.backpressure.CurrentLevel()
}

// Config returns the current configuration.
func (s *Service) Config() *config.Config {
	return s.config
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// Stats returns combined statistics.
func (s *Service) Stats() ServiceStats {
	s.mu.RLock()
	startTime := s.startTime
	s.mu.RUnlock()

	stats := ServiceStats{
		Running:    s.running.Load(),
		MemoryOnly: s.store == nil,
	}
	if !startTime.IsZero() {
		stats.Uptime = s.clock.Since(startTime)
	}
	if s.store == nil {
		return stats
	}

	stats.Ingestion = s.ingestion.Stats()
	stats.Backpressure = s.backpressure.Stats()
	stats.Retention = s.retention.Stats()
	if s.archiver != nil {
		stats.Archive = s.archiver.Stats()
	}
	return stats
}

// ServiceStats holds combined statistics.
type ServiceStats struct {
	Running      bool
	MemoryOnly   bool
	Uptime       time.Duration
	Ingestion    ingestion.ServiceStats
	Backpressure backpressure.ControllerStats
	Retention    retention.ManagerStats
	Archive      archive.ArchiverStats
}
