package providers

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_PenaltyDoublesAndDecays(t *testing.T) {
	l := newLimiter(0, 0)

	if l.currentPenalty() != 0 {
		t.Fatal("fresh limiter should carry no penalty")
	}

	l.onThrottled()
	if got := l.currentPenalty(); got != initialPenalty {
		t.Errorf("penalty after first throttle = %v, want %v", got, initialPenalty)
	}
	l.onThrottled()
	if got := l.currentPenalty(); got != 2*initialPenalty {
		t.Errorf("penalty after second throttle = %v, want %v", got, 2*initialPenalty)
	}

	// Success halves the penalty until it bottoms out at zero.
	for i := 0; i < 10; i++ {
		l.onSuccess()
	}
	if got := l.currentPenalty(); got != 0 {
		t.Errorf("penalty after sustained success = %v, want 0", got)
	}
}

func TestLimiter_PenaltyCapped(t *testing.T) {
	l := newLimiter(0, 0)
	for i := 0; i < 20; i++ {
		l.onThrottled()
	}
	if got := l.currentPenalty(); got != maxPenalty {
		t.Errorf("penalty = %v, want cap %v", got, maxPenalty)
	}
}

func TestLimiter_AcquireWithoutConstraints(t *testing.T) {
	l := newLimiter(0, 0)
	release, err := l.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()
}

func TestLimiter_AcquireRespectsCancellation(t *testing.T) {
	// With the single concurrency slot held, a second acquire must
	// unblock on context cancellation.
	l := newLimiter(0, 1)
	release, err := l.acquire(context.Background())
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.acquire(ctx); err == nil {
		t.Error("second acquire should fail while the slot is held")
	}
}

func TestLimiter_ConcurrencySlotReleased(t *testing.T) {
	l := newLimiter(0, 1)

	release, err := l.acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	release()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release2, err := l.acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}
