package ingestion

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"

	"github.com/xtxerr/vmstats/internal/constants"
	"github.com/xtxerr/vmstats/internal/errors"
	"github.com/xtxerr/vmstats/internal/logging"
	"github.com/xtxerr/vmstats/internal/storage/buffer"
	"github.com/xtxerr/vmstats/internal/storage/config"
	"github.com/xtxerr/vmstats/internal/storage/types"
)

var log = logging.Component("persist")

// Appender writes records to durable storage.
type Appender interface {
	Append(metric string, tier int, s types.Sample) error
	Sync() error
}

// Service moves records from the collector to the store.
//
// In sync mode Submit writes on the caller's goroutine. In async mode Submit
// only enqueues; a worker drains the queue in batches. A failed record stays
// at the head of the queue ("buffer" durability) and is retried on the next
// flush, or is discarded after logging ("drop" durability).
type Service struct {
	config *config.Config
	store  Appender
	queue  *buffer.Queue
	clock  clock.Clock

	// flushMu serializes queue draining between the worker and Stop.
	flushMu sync.Mutex

	// State
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// Statistics
	stats Stats

	failLog rate.Sometimes

	// Channels
	flushCh chan struct{}
}

// Stats holds persistence statistics.
type Stats struct {
	RecordsSubmitted atomic.Int64
	RecordsWritten   atomic.Int64
	RecordsDropped   atomic.Int64
	RecordsShed      atomic.Int64
	WriteErrors      atomic.Int64
	FlushesCompleted atomic.Int64
}

// New creates a new persistence service writing to store. The async flush
// interval runs on clk, the wall clock when nil.
func New(cfg *config.Config, store Appender, clk clock.Clock) (*Service, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	if store == nil {
		return nil, errors.NewMissingField("store")
	}

	s := &Service{
		config:  cfg,
		store:   store,
		clock:   clk,
		failLog: rate.Sometimes{Interval: 10 * time.Second},
		flushCh: make(chan struct{}, 1),
	}

	if s.async() {
		s.queue = buffer.NewQueue(cfg.Persistence.QueueSize)
	}

	return s, nil
}

func (s *Service) async() bool {
	return s.config.Persistence.Mode == constants.PersistenceModeAsync
}

// Start starts the flush worker.
func (s *Service) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("service already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	if s.async() {
		ticker := s.clock.Ticker(s.config.Persistence.FlushInterval)
		s.wg.Add(1)
		go s.flushWorker(ticker)
	}

	return nil
}

// Stop stops the worker and flushes queued records until the queue is empty,
// a write fails, or ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancel()

	// Wait for workers
	s.wg.Wait()

	var errs []error

	if s.async() {
		for !s.queue.IsEmpty() {
			if err := ctx.Err(); err != nil {
				errs = append(errs, fmt.Errorf("final flush: %d records left: %w", s.queue.Len(), err))
				break
			}
			if _, err := s.flush(); err != nil {
				errs = append(errs, fmt.Errorf("final flush: %w", err))
				break
			}
		}

		if lost := s.queue.PopN(s.queue.Len()); len(lost) > 0 {
			s.stats.RecordsDropped.Add(int64(len(lost)))
			log.Warn("queued records lost at shutdown",
				"records", len(lost),
				"oldest", lost[0].Sample.TimestampMs,
				"newest", lost[len(lost)-1].Sample.TimestampMs)
		}
	}

	if err := s.store.Sync(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Submit hands records to persistence.
// In sync mode the records are written before Submit returns; the first
// write error is returned and the remaining records are still attempted.
// In async mode records that do not fit the queue are dropped and an error
// matching errors.ErrQueueFull is returned.
func (s *Service) Submit(records []types.Record) error {
	if len(records) == 0 {
		return nil
	}

	s.stats.RecordsSubmitted.Add(int64(len(records)))

	if !s.async() {
		var firstErr error
		for _, rec := range records {
			if err := s.store.Append(rec.Metric, rec.Tier, rec.Sample); err != nil {
				s.stats.WriteErrors.Add(1)
				s.stats.RecordsDropped.Add(1)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			s.stats.RecordsWritten.Add(1)
		}
		return firstErr
	}

	dropped := 0
	for _, rec := range records {
		if !s.queue.Push(rec) {
			dropped++
		}
	}

	if dropped > 0 {
		s.stats.RecordsDropped.Add(int64(dropped))
		return errors.NewPersistenceError("submit", fmt.Errorf("%d records: %w", dropped, errors.ErrQueueFull))
	}

	return nil
}

// flushWorker periodically drains the queue.
func (s *Service) flushWorker(ticker *clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.flushQueued()
		case <-s.flushCh:
			s.flushQueued()
		}
	}
}

// flushQueued drains the queue until it is empty or a write fails.
func (s *Service) flushQueued() {
	for !s.queue.IsEmpty() {
		if _, err := s.flush(); err != nil {
			s.failLog.Do(func() {
				log.Warn("persistence failed, collection continues in memory",
					"error", err,
					"queued", s.queue.Len(),
					"durability", s.config.Persistence.Durability)
			})
			return
		}
		if s.ctx.Err() != nil {
			return
		}
	}
}

// flush writes one batch from the head of the queue.
func (s *Service) flush() (int, error) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	batch := s.queue.PeekN(s.config.Persistence.BatchSize)
	if len(batch) == 0 {
		return 0, nil
	}

	written := 0
	var writeErr error
	for _, rec := range batch {
		if err := s.store.Append(rec.Metric, rec.Tier, rec.Sample); err != nil {
			writeErr = err
			break
		}
		written++
	}

	s.queue.Discard(written)
	s.stats.RecordsWritten.Add(int64(written))

	if writeErr != nil {
		s.stats.WriteErrors.Add(1)
		if s.config.Persistence.Durability == constants.DurabilityDrop {
			s.queue.Discard(1)
			s.stats.RecordsDropped.Add(1)
		}
		return written, writeErr
	}

	if s.config.WAL.SyncMode != constants.SyncModeFsync {
		if err := s.store.Sync(); err != nil {
			s.stats.WriteErrors.Add(1)
			return written, err
		}
	}

	s.stats.FlushesCompleted.Add(1)
	return written, nil
}

// Shed discards the oldest queued records until usage is at or below
// targetRatio. Returns the number of records discarded.
func (s *Service) Shed(targetRatio float64) int {
	if s.queue == nil {
		return 0
	}

	s.flushMu.Lock()
	n := s.queue.EvictToCapacity(targetRatio)
	s.flushMu.Unlock()

	s.stats.RecordsShed.Add(int64(n))
	return n
}

// ForceFlush triggers an immediate flush.
func (s *Service) ForceFlush() {
	select {
	case s.flushCh <- struct{}{}:
	default:
		// Flush already pending
	}
}

// UsageRatio returns the queue fill ratio. Always 0 in sync mode.
func (s *Service) UsageRatio() float64 {
	if s.queue == nil {
		return 0
	}
	return s.queue.UsageRatio()
}

// Pending returns the number of queued records.
func (s *Service) Pending() int {
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// Stats returns current statistics.
func (s *Service) Stats() ServiceStats {
	stats := ServiceStats{
		Running:          s.running.Load(),
		Mode:             s.config.Persistence.Mode,
		RecordsSubmitted: s.stats.RecordsSubmitted.Load(),
		RecordsWritten:   s.stats.RecordsWritten.Load(),
		RecordsDropped:   s.stats.RecordsDropped.Load(),
		RecordsShed:      s.stats.RecordsShed.Load(),
		WriteErrors:      s.stats.WriteErrors.Load(),
		FlushesCompleted: s.stats.FlushesCompleted.Load(),
	}
	if s.queue != nil {
		stats.QueueLen = s.queue.Len()
		stats.QueueCap = s.queue.Cap()
		stats.QueueUsage = s.queue.UsageRatio()
	}
	return stats
}

// ServiceStats holds combined service statistics.
type ServiceStats struct {
	Running          bool
	Mode             string
	RecordsSubmitted int64
	RecordsWritten   int64
	RecordsDropped   int64
	RecordsShed      int64
	WriteErrors      int64
	FlushesCompleted int64
	QueueLen         int
	QueueCap         int
	QueueUsage       float64
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}
