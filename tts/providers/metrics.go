package providers

import (
	"sync"
	"time"

	"github.com/dgnsrekt/ttscache/tts"
)

const (
	// recentWindow bounds the sliding window used for the recent error
	// rate.
	recentWindow = 5 * time.Minute

	// degradedErrorRate marks a provider degraded when more than half of
	// recent requests failed.
	degradedErrorRate = 0.5

	// degradedLatency marks a provider degraded when the mean response
	// time crosses it.
	degradedLatency = 5 * time.Second
)

// outcome is one completed request in the sliding window.
type outcome struct {
	at time.Time
	ok bool
}

// tracker records per-instance request counters and a sliding window of
// recent outcomes for health classification.
type tracker struct {
	mu        sync.Mutex
	total     int64
	succeeded int64
	failed    int64
	totalTime time.Duration
	recent    []outcome

	now func() time.Time // test hook
}

func newTracker() *tracker {
	return &tracker{now: time.Now}
}

// record adds one completed request.
func (t *tracker) record(ok bool, took time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total++
	if ok {
		t.succeeded++
	} else {
		t.failed++
	}
	t.totalTime += took

	t.prune()
	t.recent = append(t.recent, outcome{at: t.now(), ok: ok})
}

// prune drops window entries older than recentWindow. Caller holds mu.
func (t *tracker) prune() {
	cutoff := t.now().Add(-recentWindow)
	i := 0
	for i < len(t.recent) && t.recent[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.recent = append(t.recent[:0], t.recent[i:]...)
	}
}

// errorRate is the failure fraction over the sliding window. Zero when
// the window is empty.
func (t *tracker) errorRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.prune()
	if len(t.recent) == 0 {
		return 0
	}
	var failed int
	for _, o := range t.recent {
		if !o.ok {
			failed++
		}
	}
	return float64(failed) / float64(len(t.recent))
}

// snapshot returns the counters as a Metrics value.
func (t *tracker) snapshot() tts.Metrics {
	rate := t.errorRate()

	t.mu.Lock()
	defer t.mu.Unlock()
	return tts.Metrics{
		TotalRequests:      t.total,
		SuccessfulRequests: t.succeeded,
		FailedRequests:     t.failed,
		TotalResponseTime:  t.totalTime,
		RecentErrorRate:    rate,
	}
}

// classify rolls metrics and the availability probe into a health
// status. An unavailable provider is unhealthy regardless of metrics.
func classify(avail tts.Availability, m tts.Metrics, now time.Time) tts.HealthStatus {
	status := tts.HealthStatus{
		State:           tts.HealthHealthy,
		RecentErrorRate: m.RecentErrorRate,
		AvgResponseTime: m.AvgResponseTime(),
		LastChecked:     now,
	}

	switch {
	case !avail.Available:
		status.State = tts.HealthUnhealthy
		status.Reason = avail.Reason
		if status.Reason == "" {
			status.Reason = "provider unavailable"
		}
	case m.RecentErrorRate > degradedErrorRate:
		status.State = tts.HealthDegraded
		status.Reason = "elevated recent error rate"
	case status.AvgResponseTime > degradedLatency:
		status.State = tts.HealthDegraded
		status.Reason = "slow average response time"
	}
	return status
}
