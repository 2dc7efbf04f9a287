package buffer

import (
	"sync"
	"sync/atomic"

	"github.com/xtxerr/vmstats/internal/storage/types"
)

// Queue is a thread-safe bounded FIFO of records waiting to be persisted.
// It sits between the collector and the store so a slow disk never stalls
// collection.
type Queue struct {
	mu       sync.RWMutex
	data     []types.Record
	head     int64 // Next write position
	tail     int64 // Oldest data position
	count    int64 // Current number of elements
	capacity int64

	// Statistics
	pushCount atomic.Int64
	popCount  atomic.Int64
	dropCount atomic.Int64
}

// NewQueue creates a new Queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		data:     make([]types.Record, capacity),
		capacity: int64(capacity),
	}
}

// Push adds a record to the queue.
// Returns false if the queue is full and the record was dropped.
func (q *Queue) Push(rec types.Record) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= q.capacity {
		q.dropCount.Add(1)
		return false
	}

	q.pushLocked(rec)
	return true
}

func (q *Queue) pushLocked(rec types.Record) {
	q.data[q.head%q.capacity] = rec
	q.head++
	q.count++
	q.pushCount.Add(1)
}

// PopN removes and returns up to n oldest records.
func (q *Queue) PopN(n int) []types.Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.peekLocked(n)
	q.discardLocked(len(out))
	return out
}

// PeekN returns up to n oldest records without removing them.
// Used together with Discard for write-then-acknowledge flushing.
func (q *Queue) PeekN(n int) []types.Record {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.peekLocked(n)
}

func (q *Queue) peekLocked(n int) []types.Record {
	if q.count == 0 || n <= 0 {
		return nil
	}

	count := int64(n)
	if count > q.count {
		count = q.count
	}

	result := make([]types.Record, count)
	for i := int64(0); i < count; i++ {
		result[i] = q.data[(q.tail+i)%q.capacity]
	}
	return result
}

// Discard removes up to n oldest records and returns how many were removed.
func (q *Queue) Discard(n int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.discardLocked(n)
}

func (q *Queue) discardLocked(n int) int {
	count := int64(n)
	if count > q.count {
		count = q.count
	}
	for i := int64(0); i < count; i++ {
		q.data[(q.tail+i)%q.capacity] = types.Record{} // Clear for GC
	}
	q.tail += count
	q.count -= count
	q.popCount.Add(count)
	return int(count)
}

// Len returns the current number of records in the queue.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return int(q.count)
}

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int {
	return int(q.capacity)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue) IsEmpty() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.count == 0
}

// UsageRatio returns the current usage as a ratio (0.0 - 1.0).
func (q *Queue) UsageRatio() float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return float64(q.count) / float64(q.capacity)
}

// EvictToCapacity drops oldest records until usage is at or below the target
// ratio. Returns the number of records dropped.
func (q *Queue) EvictToCapacity(targetRatio float64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	targetCount := int64(float64(q.capacity) * targetRatio)
	if q.count <= targetCount {
		return 0
	}
	evicted := q.count - targetCount
	for i := int64(0); i < evicted; i++ {
		q.data[(q.tail+i)%q.capacity] = types.Record{}
	}
	q.tail += evicted
	q.count -= evicted
	q.dropCount.Add(evicted)

	return int(evicted)
}

// Stats returns queue statistics.
func (q *Queue) Stats() QueueStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return QueueStats{
		Capacity:   int(q.capacity),
		Count:      int(q.count),
		UsageRatio: float64(q.count) / float64(q.capacity),
		PushCount:  q.pushCount.Load(),
		PopCount:   q.popCount.Load(),
		DropCount:  q.dropCount.Load(),
	}
}

// QueueStats holds queue statistics.
type QueueStats struct {
	Capacity   int
	Count      int
	UsageRatio float64
	PushCount  int64
	PopCount   int64
	DropCount  int64
}
