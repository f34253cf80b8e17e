package cache

import (
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// HealthReport is the result of a read-only cache diagnostic.
type HealthReport struct {
	Healthy             bool
	DirectoryAccessible bool
	FreeDiskBytes       int64
	LowDiskSpace        bool
	ValidEntries        int
	InvalidEntries      int
	CorruptedEntries    int
	CheckedAt           time.Time
	Issues              []string
}

// HealthCheck probes directory accessibility and free disk space, and
// scans the store counting valid, invalid, and corrupted entries. The
// only mutation it may perform is a single attempt to create a missing
// cache directory.
func (c *AudioCache) HealthCheck(correlationID string) HealthReport {
	report := HealthReport{
		Healthy:   true,
		CheckedAt: time.Now(),
	}

	if !c.config.Enabled {
		report.Issues = append(report.Issues, "cache disabled")
		return report
	}

	if _, err := os.Stat(c.store.entriesDir()); err != nil {
		// One recreation attempt; a second failure is reported, not retried.
		if err := c.store.init(); err != nil {
			report.Healthy = false
			report.Issues = append(report.Issues, "cache directory inaccessible: "+err.Error())
			c.logger.Warn("cache health check failed",
				"dir", c.config.Dir, "correlation_id", correlationID, "error", err)
			return report
		}
	}
	report.DirectoryAccessible = true

	report.FreeDiskBytes = freeDiskBytes(c.config.Dir)
	if report.FreeDiskBytes >= 0 && report.FreeDiskBytes < c.config.MinFreeDiskBytes {
		report.LowDiskSpace = true
		report.Healthy = false
		report.Issues = append(report.Issues,
			"low disk space: "+humanize.Bytes(uint64(report.FreeDiskBytes))+" free")
	}

	valid, invalid, corrupted := c.scanEntries()
	report.ValidEntries = valid
	report.InvalidEntries = invalid
	report.CorruptedEntries = corrupted
	if corrupted > 0 {
		report.Issues = append(report.Issues, "corrupted entries present")
	}

	return report
}

// Validate is the structural scan half of the health check, exposed on
// its own for diagnostics. It never mutates the store.
func (c *AudioCache) Validate() (valid, invalid, corrupted int) {
	return c.scanEntries()
}

func (c *AudioCache) scanEntries() (valid, invalid, corrupted int) {
	entries, err := c.store.list()
	if err != nil {
		return 0, 0, 0
	}

	for _, e := range entries {
		entry, err := c.store.readEntry(e.key)
		if err != nil {
			corrupted++
			continue
		}
		if _, err := os.Stat(c.store.audioPath(entry.AudioFile)); err != nil {
			invalid++
			continue
		}
		valid++
	}
	return valid, invalid, corrupted
}
