package pncp

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquire_RespectsCeiling(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	// 50 permits/s with a burst of 50: 100 acquisitions must take at
	// least ~1s of replenishment.
	limiter := NewRateLimiter(50)
	ctx := context.Background()

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if err := limiter.Acquire(ctx); err != nil {
					t.Errorf("acquire failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)
	if elapsed < 900*time.Millisecond {
		t.Fatalf("100 permits at 50/s granted in %v, ceiling not enforced", elapsed)
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	limiter := NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.Acquire(ctx); err == nil {
		t.Fatalf("expected error from cancelled context")
	}
}
