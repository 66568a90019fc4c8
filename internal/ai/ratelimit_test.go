package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRateLimiterBurstThenThrottle(t *testing.T) {
	t.Parallel()
	// 1 rps, burst = max(ceil(2), 5) = 5: five immediate acquisitions,
	// the sixth waits roughly a second for a refill.
	l := NewRateLimiter(1, 10, 10*time.Second)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		release, err := l.Acquire(ctx)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		release()
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("burst acquisitions took %v, want nearly immediate", elapsed)
	}

	start = time.Now()
	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("throttled acquire: %v", err)
	}
	release()
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("throttled acquire took %v, want ~1s wait", elapsed)
	}
}

func TestRateLimiterConcurrencyCap(t *testing.T) {
	t.Parallel()
	// Plenty of tokens, one slot: the second acquire must time out while
	// the first holds the semaphore.
	l := NewRateLimiter(100, 1, 300*time.Millisecond)
	ctx := context.Background()

	release, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	_, err = l.Acquire(ctx)
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("second acquire err = %v, want ErrQueueTimeout", err)
	}

	release()
	release2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	release2()
}

func TestRateLimiterContextCancel(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(100, 1, 10*time.Second)

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err = l.Acquire(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRateLimiterReleaseIdempotent(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(100, 1, time.Second)

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()
	release() // second call must not free a slot twice

	r1, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	defer r1()

	// Only one slot exists; a double release would have made this succeed.
	_, err = l.Acquire(context.Background())
	if !errors.Is(err, ErrQueueTimeout) {
		t.Fatalf("err = %v, want ErrQueueTimeout", err)
	}
}

func TestRateLimiterStats(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(5, 2, time.Second)

	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	release()

	stats := l.Stats()
	if stats.TotalAcquired != 1 {
		t.Errorf("TotalAcquired = %d, want 1", stats.TotalAcquired)
	}
	if stats.QueueDepth != 0 {
		t.Errorf("QueueDepth = %d, want 0", stats.QueueDepth)
	}
}

func TestRateLimiterUpdateConfig(t *testing.T) {
	t.Parallel()
	l := NewRateLimiter(1, 1, time.Second)

	// Raise everything; the old in-flight holder keeps its own channel.
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	l.UpdateConfig(100, 4, 2*time.Second)
	release()

	for i := 0; i < 4; i++ {
		r, err := l.Acquire(context.Background())
		if err != nil {
			t.Fatalf("acquire %d after update: %v", i, err)
		}
		defer r()
	}
}
