// Package testing provides test utilities for vmstats packages.
//
// It holds fixtures for tier samples and storage directories, and the error
// channel pattern for checks made from goroutines. Import it under an alias:
//
//	import vmtest "github.com/xtxerr/vmstats/internal/testing"
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Error Channel Pattern
// =============================================================================

// GoroutineTest runs checks in goroutines and reports their errors on the
// test goroutine. t.Fatal must not be called from other goroutines; return
// an error instead.
//
//	gt := vmtest.NewGoroutineTest(t)
//	for i := 0; i < 8; i++ {
//	    gt.Go(func() error {
//	        _, err := engine.Query("heapUsed", from, to, 100)
//	        return err
//	    })
//	}
//	gt.Wait()
type GoroutineTest struct {
	t      testing.TB
	wg     sync.WaitGroup
	mu     sync.Mutex
	errs   []error
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGoroutineTest creates a GoroutineTest whose context ends with the test.
func NewGoroutineTest(t testing.TB) *GoroutineTest {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &GoroutineTest{t: t, ctx: ctx, cancel: cancel}
}

// Go runs fn in a goroutine and records its error.
func (g *GoroutineTest) Go(fn func() error) {
	g.GoWithContext(func(context.Context) error { return fn() })
}

// GoWithContext runs fn with the test context, which Cancel ends.
func (g *GoroutineTest) GoWithContext(fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(g.ctx); err != nil {
			g.mu.Lock()
			g.errs = append(g.errs, err)
			g.mu.Unlock()
		}
	}()
}

// Cancel ends the context passed to GoWithContext.
func (g *GoroutineTest) Cancel() {
	g.cancel()
}

// Wait waits for all goroutines and fails the test for each recorded error.
func (g *GoroutineTest) Wait() {
	g.t.Helper()
	g.wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	for _, err := range g.errs {
		g.t.Errorf("goroutine: %v", err)
	}
}

// =============================================================================
// Waiting
// =============================================================================

// Eventually polls condition until it holds or timeout passes.
func Eventually(timeout, interval time.Duration, condition func() bool) error {
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("condition not met within %v", timeout)
		}
		time.Sleep(interval)
	}
}
