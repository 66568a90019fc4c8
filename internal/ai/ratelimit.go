// Package ai gates whale mirroring behind an external market analyzer:
// a rate limiter bounds the request flow, a per-token cache and request
// budget bound spend, and a circuit breaker stops hammering a failing
// upstream. Every failure degrades to a blocking verdict, never an approval.
package ai

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrQueueTimeout is returned when an acquisition waited longer than the
// configured queue timeout. Callers treat it as an analyzer failure.
var ErrQueueTimeout = errors.New("rate limiter queue timeout")

const (
	minBurst            = 5
	maxPollSleep        = 100 * time.Millisecond
	defaultQueueTimeout = 120 * time.Second
)

// RateLimiter combines a continuously-refilled token bucket (requests per
// second) with a concurrency semaphore (simultaneous in-flight calls).
// Acquire consumes one token, then one semaphore slot; the returned release
// frees only the slot — tokens stay consumed.
type RateLimiter struct {
	mu           sync.Mutex
	rps          float64
	burst        float64
	tokens       float64
	lastRefill   time.Time
	queueTimeout time.Duration
	sem          chan struct{}

	queueDepth    int
	totalAcquired uint64
	totalTimeouts uint64
}

// RateLimiterStats is a point-in-time metrics snapshot.
type RateLimiterStats struct {
	QueueDepth      int
	TotalAcquired   uint64
	TotalTimeouts   uint64
	AvailableTokens float64
}

// NewRateLimiter creates a limiter with burst = max(ceil(2*rps), 5).
func NewRateLimiter(rps float64, maxConcurrent int, queueTimeout time.Duration) *RateLimiter {
	if rps <= 0 {
		rps = 1
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	if queueTimeout <= 0 {
		queueTimeout = defaultQueueTimeout
	}
	burst := burstFor(rps)
	return &RateLimiter{
		rps:          rps,
		burst:        burst,
		tokens:       burst,
		lastRefill:   time.Now(),
		queueTimeout: queueTimeout,
		sem:          make(chan struct{}, maxConcurrent),
	}
}

func burstFor(rps float64) float64 {
	b := math.Ceil(2 * rps)
	if b < minBurst {
		b = minBurst
	}
	return b
}

// Acquire blocks until one token and one concurrency slot are held, or
// fails with ErrQueueTimeout when the combined wait exceeds the queue
// timeout. The release func must be called exactly once.
func (l *RateLimiter) Acquire(ctx context.Context) (release func(), err error) {
	l.mu.Lock()
	deadline := time.Now().Add(l.queueTimeout)
	l.queueDepth++
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.queueDepth--
		l.mu.Unlock()
	}()

	if err := l.waitForToken(ctx, deadline); err != nil {
		return nil, err
	}

	// Snapshot the semaphore: a concurrent reconfiguration swaps l.sem,
	// and this holder must release into the channel it acquired from.
	l.mu.Lock()
	sem := l.sem
	l.mu.Unlock()

	remaining := time.Until(deadline)
	if remaining <= 0 {
		l.recordTimeout()
		return nil, ErrQueueTimeout
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		l.mu.Lock()
		l.totalAcquired++
		l.mu.Unlock()
		var once sync.Once
		return func() { once.Do(func() { <-sem }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		l.recordTimeout()
		return nil, ErrQueueTimeout
	}
}

// waitForToken polls the bucket, sleeping the smaller of the projected
// refill time, the remaining budget, and 100ms.
func (l *RateLimiter) waitForToken(ctx context.Context, deadline time.Time) error {
	for {
		l.mu.Lock()
		l.refillLocked(time.Now())
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		needed := 1 - l.tokens
		rps := l.rps
		l.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			l.recordTimeout()
			return ErrQueueTimeout
		}

		sleep := time.Duration(needed / rps * float64(time.Second))
		if sleep > remaining {
			sleep = remaining
		}
		if sleep > maxPollSleep {
			sleep = maxPollSleep
		}
		if sleep <= 0 {
			sleep = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// refillLocked requires l.mu held.
func (l *RateLimiter) refillLocked(now time.Time) {
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.rps
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.lastRefill = now
}

func (l *RateLimiter) recordTimeout() {
	l.mu.Lock()
	l.totalTimeouts++
	l.mu.Unlock()
}

// UpdateConfig applies new limits. Non-positive values leave the current
// setting unchanged. Changing max concurrency swaps in a fresh semaphore;
// in-flight holders keep releasing into the channel they acquired from.
func (l *RateLimiter) UpdateConfig(rps float64, maxConcurrent int, queueTimeout time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rps > 0 && rps != l.rps {
		l.refillLocked(time.Now())
		l.rps = rps
		l.burst = burstFor(rps)
		if l.tokens > l.burst {
			l.tokens = l.burst
		}
	}
	if maxConcurrent > 0 && maxConcurrent != cap(l.sem) {
		l.sem = make(chan struct{}, maxConcurrent)
		log.Info().Int("max_concurrent", maxConcurrent).Msg("🤖 AI concurrency limit replaced")
	}
	if queueTimeout > 0 {
		l.queueTimeout = queueTimeout
	}
}

// Stats returns current limiter metrics.
func (l *RateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillLocked(time.Now())
	return RateLimiterStats{
		QueueDepth:      l.queueDepth,
		TotalAcquired:   l.totalAcquired,
		TotalTimeouts:   l.totalTimeouts,
		AvailableTokens: l.tokens,
	}
}
