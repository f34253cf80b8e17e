package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// initialPenalty is the adaptive delay applied after the first
	// throttling response.
	initialPenalty = 250 * time.Millisecond

	// maxPenalty caps adaptive growth.
	maxPenalty = 30 * time.Second
)

// limiter paces upstream calls: a minimum inter-request interval, an
// adaptive penalty that doubles on throttling responses and decays on
// sustained success, and an optional bounded-concurrency semaphore with
// FIFO waiting.
type limiter struct {
	pacer *rate.Limiter       // nil when no interval is configured
	sem   *semaphore.Weighted // nil when concurrency is uncapped

	mu      sync.Mutex
	penalty time.Duration
}

// newLimiter builds a limiter. A zero interval disables pacing, a zero
// maxConcurrent disables the semaphore.
func newLimiter(interval time.Duration, maxConcurrent int64) *limiter {
	l := &limiter{}
	if interval > 0 {
		l.pacer = rate.NewLimiter(rate.Every(interval), 1)
	}
	if maxConcurrent > 0 {
		l.sem = semaphore.NewWeighted(maxConcurrent)
	}
	return l
}

// acquire blocks until a request slot is available, the pacing interval
// has elapsed, and any adaptive penalty has been served. The returned
// release must be called when the upstream call finishes.
func (l *limiter) acquire(ctx context.Context) (release func(), err error) {
	if l.sem != nil {
		if err := l.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}

	release = func() {
		if l.sem != nil {
			l.sem.Release(1)
		}
	}

	if l.pacer != nil {
		if err := l.pacer.Wait(ctx); err != nil {
			release()
			return nil, err
		}
	}

	if delay := l.currentPenalty(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}

// onThrottled doubles the adaptive penalty, starting from
// initialPenalty and capped at maxPenalty. Called on 429/503 responses.
func (l *limiter) onThrottled() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.penalty == 0 {
		l.penalty = initialPenalty
		return
	}
	l.penalty *= 2
	if l.penalty > maxPenalty {
		l.penalty = maxPenalty
	}
}

// onSuccess decays the penalty multiplicatively so sustained success
// restores full speed.
func (l *limiter) onSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.penalty /= 2
	if l.penalty < 10*time.Millisecond {
		l.penalty = 0
	}
}

func (l *limiter) currentPenalty() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.penalty
}
