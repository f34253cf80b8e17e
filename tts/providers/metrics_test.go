package providers

import (
	"testing"
	"time"

	"github.com/dgnsrekt/ttscache/tts"
)

func TestTracker_WindowPrunesOldOutcomes(t *testing.T) {
	now := time.Now()
	tr := newTracker()
	tr.now = func() time.Time { return now }

	// Two early failures, then the clock moves past the window and a
	// success lands.
	tr.record(false, time.Millisecond)
	tr.record(false, time.Millisecond)
	now = now.Add(recentWindow + time.Second)
	tr.record(true, time.Millisecond)

	if rate := tr.errorRate(); rate != 0 {
		t.Errorf("errorRate = %v, want 0 after old failures aged out", rate)
	}

	// Lifetime counters are unaffected by the window.
	m := tr.snapshot()
	if m.TotalRequests != 3 || m.FailedRequests != 2 {
		t.Errorf("counters = %d total / %d failed, want 3/2", m.TotalRequests, m.FailedRequests)
	}
}

func TestTracker_ErrorRate(t *testing.T) {
	tr := newTracker()
	tr.record(true, time.Millisecond)
	tr.record(false, time.Millisecond)
	tr.record(false, time.Millisecond)
	tr.record(false, time.Millisecond)

	if rate := tr.errorRate(); rate != 0.75 {
		t.Errorf("errorRate = %v, want 0.75", rate)
	}
}

func TestClassify(t *testing.T) {
	now := time.Now()
	available := tts.Availability{Available: true}

	tests := []struct {
		name  string
		avail tts.Availability
		m     tts.Metrics
		want  tts.HealthState
	}{
		{
			name:  "healthy",
			avail: available,
			m:     tts.Metrics{TotalRequests: 10, TotalResponseTime: time.Second, RecentErrorRate: 0.1},
			want:  tts.HealthHealthy,
		},
		{
			name:  "degraded by error rate",
			avail: available,
			m:     tts.Metrics{TotalRequests: 10, RecentErrorRate: 0.6},
			want:  tts.HealthDegraded,
		},
		{
			name:  "degraded by latency",
			avail: available,
			m:     tts.Metrics{TotalRequests: 2, TotalResponseTime: 20 * time.Second},
			want:  tts.HealthDegraded,
		},
		{
			name:  "unhealthy when probe fails",
			avail: tts.Availability{Available: false, Reason: "no key"},
			m:     tts.Metrics{},
			want:  tts.HealthUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := classify(tt.avail, tt.m, now)
			if status.State != tt.want {
				t.Errorf("State = %s, want %s (reason: %s)", status.State, tt.want, status.Reason)
			}
		})
	}
}
