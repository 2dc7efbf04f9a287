package buffer

import (
	"iter"
	"sort"
	"sync/atomic"

	"github.com/xtxerr/vmstats/internal/storage/types"
)

// maxChunkSize bounds the slot arena each tier allocates at once.
const maxChunkSize = 64

// chunk is a fixed block of sample slots. A slot is written once by the
// writer before it is published and is never written again.
type chunk struct {
	samples []types.Sample
}

// RingBuffer holds one tier of a metric: a fixed-capacity, time-ordered
// window of samples where each append beyond capacity evicts the oldest.
//
// RingBuffer is single-writer: Append and Load must only be called from one
// goroutine. Readers call View from any goroutine without locking; each
// View is an immutable snapshot published with an atomic pointer swap, so a
// reader never sees a partial update and never blocks the writer.
type RingBuffer struct {
	capacity  int
	chunkSize int

	// Writer-owned state.
	chunks []*chunk
	off    int // index of the oldest sample in chunks[0]
	n      int // number of live samples
	newest int64

	view atomic.Pointer[View]

	// Statistics
	appendCount atomic.Int64
	evictCount  atomic.Int64
	rejectCount atomic.Int64
}

// NewRing creates a RingBuffer retaining up to capacity samples.
func NewRing(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	cs := capacity
	if cs > maxChunkSize {
		cs = maxChunkSize
	}
	r := &RingBuffer{
		capacity:  capacity,
		chunkSize: cs,
	}
	r.view.Store(&View{chunkSize: cs})
	return r
}

// Append inserts a sample, evicting the oldest one when the buffer is full.
// Samples must arrive in strictly increasing timestamp order; an out of
// order sample is rejected and false is returned.
func (r *RingBuffer) Append(s types.Sample) bool {
	if r.n > 0 && s.TimestampMs <= r.newest {
		r.rejectCount.Add(1)
		return false
	}

	pos := r.off + r.n
	ci, si := pos/r.chunkSize, pos%r.chunkSize
	if ci == len(r.chunks) {
		r.chunks = append(r.chunks, &chunk{samples: make([]types.Sample, r.chunkSize)})
	}
	r.chunks[ci].samples[si] = s
	r.n++
	r.newest = s.TimestampMs
	r.appendCount.Add(1)

	if r.n > r.capacity {
		r.off++
		r.n--
		r.evictCount.Add(1)
		if r.off == r.chunkSize {
			// Published views may still reference the dropped chunk.
			r.chunks = r.chunks[1:]
			r.off = 0
		}
	}

	r.view.Store(&View{
		chunks:    r.chunks[:len(r.chunks):len(r.chunks)],
		off:       r.off,
		n:         r.n,
		chunkSize: r.chunkSize,
	})
	return true
}

// Load appends samples in order, skipping any that are not newer than the
// current newest sample. It returns the number of samples accepted.
func (r *RingBuffer) Load(samples []types.Sample) int {
	accepted := 0
	for _, s := range samples {
		if r.Append(s) {
			accepted++
		}
	}
	return accepted
}

// View returns the latest published snapshot.
func (r *RingBuffer) View() *View {
	return r.view.Load()
}

// Cap returns the capacity of the buffer.
func (r *RingBuffer) Cap() int {
	return r.capacity
}

// Stats returns buffer statistics.
func (r *RingBuffer) Stats() RingStats {
	v := r.View()
	return RingStats{
		Capacity:    r.capacity,
		Count:       v.Len(),
		AppendCount: r.appendCount.Load(),
		EvictCount:  r.evictCount.Load(),
		RejectCount: r.rejectCount.Load(),
	}
}

// RingStats holds tier buffer statistics.
type RingStats struct {
	Capacity    int
	Count       int
	AppendCount int64
	EvictCount  int64
	RejectCount int64
}

// View is an immutable, time-ordered snapshot of a RingBuffer.
type View struct {
	chunks    []*chunk
	off       int
	n         int
	chunkSize int
}

// Len returns the number of samples in the view.
func (v *View) Len() int {
	return v.n
}

// At returns the i-th oldest sample. It panics if i is out of range.
func (v *View) At(i int) types.Sample {
	if i < 0 || i >= v.n {
		panic("buffer: index out of range")
	}
	pos := v.off + i
	return v.chunks[pos/v.chunkSize].samples[pos%v.chunkSize]
}

// Oldest returns the oldest sample. Returns false if the view is empty.
func (v *View) Oldest() (types.Sample, bool) {
	if v.n == 0 {
		return types.Sample{}, false
	}
	return v.At(0), true
}

// Newest returns the newest sample. Returns false if the view is empty.
func (v *View) Newest() (types.Sample, bool) {
	if v.n == 0 {
		return types.Sample{}, false
	}
	return v.At(v.n - 1), true
}

// TimeRange returns the timestamps of the oldest and newest samples.
// Returns (0, 0) if the view is empty.
func (v *View) TimeRange() (oldest, newest int64) {
	if v.n == 0 {
		return 0, 0
	}
	return v.At(0).TimestampMs, v.At(v.n - 1).TimestampMs
}

// bounds returns the index range [lo, hi) of samples within [fromMs, toMs].
func (v *View) bounds(fromMs, toMs int64) (int, int) {
	if v.n == 0 || fromMs > toMs {
		return 0, 0
	}
	lo := sort.Search(v.n, func(i int) bool { return v.At(i).TimestampMs >= fromMs })
	hi := sort.Search(v.n, func(i int) bool { return v.At(i).TimestampMs > toMs })
	return lo, hi
}

// Count returns the number of samples with timestamps in [fromMs, toMs].
func (v *View) Count(fromMs, toMs int64) int {
	lo, hi := v.bounds(fromMs, toMs)
	return hi - lo
}

// Range returns a lazy, time-ordered sequence of samples with timestamps in
// [fromMs, toMs]. The sequence can be iterated any number of times.
func (v *View) Range(fromMs, toMs int64) iter.Seq[types.Sample] {
	return func(yield func(types.Sample) bool) {
		lo, hi := v.bounds(fromMs, toMs)
		for i := lo; i < hi; i++ {
			if !yield(v.At(i)) {
				return
			}
		}
	}
}

// Decimate returns a lazy sequence of at most maxPoints samples from
// [fromMs, toMs], picked at evenly spaced indexes. The newest sample in range
// is always included.
func (v *View) Decimate(fromMs, toMs int64, maxPoints int) iter.Seq[types.Sample] {
	return func(yield func(types.Sample) bool) {
		lo, hi := v.bounds(fromMs, toMs)
		total := hi - lo
		if maxPoints <= 0 || total == 0 {
			return
		}
		if total <= maxPoints {
			for i := lo; i < hi; i++ {
				if !yield(v.At(i)) {
					return
				}
			}
			return
		}
		if maxPoints == 1 {
			yield(v.At(hi - 1))
			return
		}
		// Index k maps to lo + k*(total-1)/(maxPoints-1): first and last kept.
		for k := 0; k < maxPoints; k++ {
			idx := lo + k*(total-1)/(maxPoints-1)
			if !yield(v.At(idx)) {
				return
			}
		}
	}
}

// All returns every sample in the view, oldest first.
func (v *View) All() iter.Seq[types.Sample] {
	return func(yield func(types.Sample) bool) {
		for i := 0; i < v.n; i++ {
			if !yield(v.At(i)) {
				return
			}
		}
	}
}
