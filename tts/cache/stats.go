package cache

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// counters are the cache's running in-memory tallies. They reset on
// process restart and on Clear; everything else in Stats is recomputed
// from a directory scan.
type counters struct {
	requests  atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
	sets      atomic.Int64
	getNanos  atomic.Int64
	setNanos  atomic.Int64
}

func (c *counters) recordRequest()        { c.requests.Add(1) }
func (c *counters) recordHit()            { c.hits.Add(1) }
func (c *counters) recordMiss()           { c.misses.Add(1) }
func (c *counters) recordEvictions(n int) { c.evictions.Add(int64(n)) }

func (c *counters) recordGetTime(took time.Duration) { c.getNanos.Add(int64(took)) }

func (c *counters) recordSetTime(took time.Duration) {
	c.sets.Add(1)
	c.setNanos.Add(int64(took))
}

func (c *counters) reset() {
	c.requests.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
	c.sets.Store(0)
	c.getNanos.Store(0)
	c.setNanos.Store(0)
}

// Stats is an aggregate snapshot of the cache. It is derived state,
// recomputed on demand from a directory scan plus the running counters,
// and may race with concurrent writes; treat it as eventually consistent.
type Stats struct {
	EntryCount     int
	TotalSizeBytes int64

	Requests      int64
	Hits          int64
	Misses        int64
	HitRate       float64
	APICallsSaved int64

	OldestEntry      time.Time
	NewestEntry      time.Time
	AverageEntrySize int64

	// DiskUsage is TotalSizeBytes rendered for humans.
	DiskUsage string

	// FreeDiskBytes is the free space on the volume holding the cache,
	// or -1 when it cannot be determined.
	FreeDiskBytes int64

	Evictions int64

	Performance Performance
}

// Performance summarizes observed cache operation latencies.
type Performance struct {
	// AvgGetTime and AvgSetTime are running means over the life of the
	// process, including waits on coalesced pending writes.
	AvgGetTime time.Duration
	AvgSetTime time.Duration

	// ScanTime is how long this snapshot's directory scan took.
	ScanTime time.Duration
}

// Stats computes a snapshot of the cache state.
func (c *AudioCache) Stats() (Stats, error) {
	stats := Stats{
		Requests:      c.counters.requests.Load(),
		Hits:          c.counters.hits.Load(),
		Misses:        c.counters.misses.Load(),
		Evictions:     c.counters.evictions.Load(),
		FreeDiskBytes: -1,
	}
	// Every hit is one upstream synthesis call that did not happen.
	stats.APICallsSaved = stats.Hits
	if stats.Requests > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Requests)
		stats.Performance.AvgGetTime = time.Duration(c.counters.getNanos.Load() / stats.Requests)
	}
	if sets := c.counters.sets.Load(); sets > 0 {
		stats.Performance.AvgSetTime = time.Duration(c.counters.setNanos.Load() / sets)
	}

	if !c.config.Enabled {
		return stats, nil
	}

	scanStart := time.Now()
	entries, err := c.store.list()
	if err != nil {
		return stats, err
	}
	stats.Performance.ScanTime = time.Since(scanStart)

	stats.EntryCount = len(entries)
	for _, e := range entries {
		stats.TotalSizeBytes += e.size
		if stats.OldestEntry.IsZero() || e.modTime.Before(stats.OldestEntry) {
			stats.OldestEntry = e.modTime
		}
		if e.modTime.After(stats.NewestEntry) {
			stats.NewestEntry = e.modTime
		}
	}
	if stats.EntryCount > 0 {
		stats.AverageEntrySize = stats.TotalSizeBytes / int64(stats.EntryCount)
	}
	stats.DiskUsage = humanize.Bytes(uint64(stats.TotalSizeBytes))
	stats.FreeDiskBytes = freeDiskBytes(c.config.Dir)

	return stats, nil
}
