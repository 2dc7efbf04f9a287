package buffer

import (
	"sync"
	"testing"

	"github.com/xtxerr/vmstats/internal/storage/types"
)

func rec(i int) types.Record {
	return types.Record{Metric: "heapUsed", Tier: 0, Sample: types.NewSample(int64(i), float64(i))}
}

func TestQueue_PushPop(t *testing.T) {
	q := NewQueue(5)

	for i := 0; i < 5; i++ {
		if !q.Push(rec(i)) {
			t.Errorf("push %d should succeed", i)
		}
	}

	if q.UsageRatio() != 1 {
		t.Error("queue should be full")
	}

	// Push to full queue should fail
	if q.Push(rec(99)) {
		t.Error("push to full queue should fail")
	}

	got := q.PopN(3)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	for i, r := range got {
		if r.Sample.Value != float64(i) {
			t.Errorf("record %d: expected value %d, got %v", i, i, r.Sample.Value)
		}
	}
	if q.Len() != 2 {
		t.Errorf("expected len=2, got %d", q.Len())
	}
}

func TestQueue_PeekDiscard(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 6; i++ {
		q.Push(rec(i))
	}

	batch := q.PeekN(4)
	if q.Len() != 6 {
		t.Errorf("peek must not remove, len=%d", q.Len())
	}

	// Two of the four written before a failure.
	if n := q.Discard(2); n != 2 {
		t.Errorf("expected 2 discarded, got %d", n)
	}

	next := q.PeekN(1)
	if next[0].Sample.Value != batch[2].Sample.Value {
		t.Errorf("expected retry to start at %v, got %v", batch[2].Sample.Value, next[0].Sample.Value)
	}

	if n := q.Discard(100); n != 4 {
		t.Errorf("expected remaining 4 discarded, got %d", n)
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty")
	}
}

func TestQueue_EvictToCapacity(t *testing.T) {
	q := NewQueue(10)
	for i := 0; i < 10; i++ {
		q.Push(rec(i))
	}

	if n := q.EvictToCapacity(0.5); n != 5 {
		t.Errorf("expected 5 evicted, got %d", n)
	}
	if q.UsageRatio() != 0.5 {
		t.Errorf("expected usage 0.5, got %v", q.UsageRatio())
	}
	if first := q.PeekN(1); first[0].Sample.Value != 5 {
		t.Errorf("expected oldest=5, got %v", first[0].Sample.Value)
	}
	if n := q.EvictToCapacity(0.8); n != 0 {
		t.Errorf("expected nothing evicted, got %d", n)
	}
}

func TestQueue_PopEmpty(t *testing.T) {
	q := NewQueue(4)
	q.Push(rec(1))
	q.Push(rec(2))

	if got := q.PopN(10); len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
	if !q.IsEmpty() {
		t.Error("queue should be empty after popping everything")
	}
	if q.PopN(1) != nil {
		t.Error("pop on empty queue should return nil")
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := NewQueue(1000)

	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Push(rec(id*1000 + i))
			}
		}(w)
	}
	for r := 0; r < 5; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.PeekN(10)
				q.UsageRatio()
			}
		}()
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected len=1000, got %d", q.Len())
	}
}
