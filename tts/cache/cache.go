// Package cache implements the on-disk audio result cache: deterministic
// key derivation from synthesis parameters, a metadata+payload content
// store, limit-driven eviction, and coalescing of concurrent writes so
// readers never observe a half-written entry.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
)

// Config holds audio cache configuration.
type Config struct {
	// Enabled toggles the whole cache. A disabled cache is always a miss
	// on Get and a no-op on Set, with no I/O either way.
	Enabled bool

	// Dir is the root of the cache tree. entries/ and audio/ live under it.
	Dir string

	// MaxSizeBytes bounds the total size of all entries.
	MaxSizeBytes int64

	// MaxEntries bounds the number of entries.
	MaxEntries int

	// MaxAge bounds entry lifetime. Entries older than this are treated
	// as misses and removed.
	MaxAge time.Duration

	// MinFreeDiskBytes is the free-space threshold the health check
	// reports against.
	MinFreeDiskBytes int64

	FileMode os.FileMode
	DirMode  os.FileMode

	// EnableHitLogging logs each hit and miss at debug level.
	EnableHitLogging bool

	// CleanupInterval is how often the owning client sweeps expired
	// entries. Zero disables the periodic sweep.
	CleanupInterval time.Duration

	// Normalization controls key derivation.
	Normalization NormalizeOptions
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	dir := filepath.Join(os.TempDir(), "ttscache")
	if home, err := homedir.Dir(); err == nil {
		dir = filepath.Join(home, ".cache", "ttscache")
	}

	return Config{
		Enabled:          true,
		Dir:              dir,
		MaxSizeBytes:     1 << 30, // 1GiB
		MaxEntries:       10000,
		MaxAge:           30 * 24 * time.Hour,
		MinFreeDiskBytes: 100 << 20, // 100MiB
		FileMode:         0644,
		DirMode:          0755,
		EnableHitLogging: true,
		CleanupInterval:  time.Hour,
		Normalization:    DefaultNormalizeOptions(),
	}
}

// pendingWrite tracks one in-flight Set. Readers and writers for the
// same key subscribe by waiting on done; result and err are valid only
// after done is closed.
type pendingWrite struct {
	done   chan struct{}
	result *Entry
	err    error
}

// AudioCache stores synthesized audio on disk keyed by normalized
// synthesis parameters. It is safe for concurrent use within a single
// process; concurrent processes sharing one directory are not supported.
type AudioCache struct {
	config Config
	store  *contentStore
	logger *log.Logger

	// initOnce guards lazy directory creation; initErr caches the
	// outcome so every caller observes the same result.
	initOnce sync.Once
	initErr  error

	// clearGate serializes Clear against in-flight writes: every Set
	// holds a read lock for its full duration, Clear takes the write
	// lock before sweeping.
	clearGate sync.RWMutex

	// pending holds at most one in-flight write per key.
	mu      sync.Mutex
	pending map[string]*pendingWrite

	counters counters
}

// New creates an AudioCache rooted at config.Dir. Directories are not
// created until first use.
func New(config Config, logger *log.Logger) *AudioCache {
	if logger == nil {
		logger = log.Default()
	}
	return &AudioCache{
		config:  config,
		store:   newContentStore(config.Dir, config.FileMode, config.DirMode),
		logger:  logger,
		pending: make(map[string]*pendingWrite),
	}
}

// Enabled reports whether the cache is active.
func (c *AudioCache) Enabled() bool { return c.config.Enabled }

// DeriveKey derives the cache key for the given synthesis parameters
// using this cache's normalization options.
func (c *AudioCache) DeriveKey(params KeyParams) NormalizationResult {
	return DeriveKey(params, c.config.Normalization)
}

// ensureInit lazily creates the cache directories exactly once.
func (c *AudioCache) ensureInit() error {
	c.initOnce.Do(func() {
		c.initErr = c.store.init()
		if c.initErr != nil {
			c.logger.Error("cache directory initialization failed",
				"dir", c.config.Dir, "error", c.initErr)
		}
	})
	return c.initErr
}

// Get returns the cached entry for key, or nil on a miss. Misses,
// expired entries, and corrupt entries are never errors; corruption is
// healed by deletion. A Get racing an in-flight Set for the same key
// waits for that write and returns its outcome, error included.
func (c *AudioCache) Get(key, correlationID string) (*Entry, error) {
	if !c.config.Enabled {
		return nil, nil
	}
	if err := c.ensureInit(); err != nil {
		return nil, nil
	}

	c.counters.recordRequest()
	start := time.Now()
	defer func() { c.counters.recordGetTime(time.Since(start)) }()

	c.mu.Lock()
	pw := c.pending[key]
	c.mu.Unlock()

	if pw != nil {
		<-pw.done
		if pw.err != nil {
			// The awaited write failed; its error reaches every
			// waiter, not just the writer.
			return nil, pw.err
		}
		c.counters.recordHit()
		c.logHit(key, correlationID, "pending-write")
		return pw.result, nil
	}

	entry, err := c.store.readEntry(key)
	if err != nil {
		if os.IsNotExist(err) {
			c.counters.recordMiss()
			c.logMiss(key, correlationID, "absent")
			return nil, nil
		}
		// Unparseable or structurally invalid: heal by deletion.
		c.store.remove(key)
		c.counters.recordMiss()
		c.logMiss(key, correlationID, "corrupt")
		return nil, nil
	}

	if c.expired(entry) {
		c.store.remove(key)
		c.counters.recordMiss()
		c.logMiss(key, correlationID, "expired")
		return nil, nil
	}

	data, err := c.store.readAudio(entry)
	if err != nil {
		// Orphaned metadata without a payload is a corrupt pair.
		c.store.remove(key)
		c.counters.recordMiss()
		c.logMiss(key, correlationID, "orphan")
		return nil, nil
	}

	c.counters.recordHit()
	c.logHit(key, correlationID, "disk")
	return &Entry{Data: data, Metadata: entry.Metadata}, nil
}

// Set stores data under key. The pending write is registered before any
// I/O so concurrent Get and Set calls for the same key await it instead
// of racing the filesystem. Write failures propagate to the caller and
// to every waiter.
func (c *AudioCache) Set(key string, data []byte, meta Metadata, correlationID string) error {
	if !c.config.Enabled {
		return nil
	}

	start := time.Now()
	defer func() { c.counters.recordSetTime(time.Since(start)) }()

	c.clearGate.RLock()
	defer c.clearGate.RUnlock()

	pw := &pendingWrite{done: make(chan struct{})}

	c.mu.Lock()
	if existing, ok := c.pending[key]; ok {
		// Another write for this key is already in flight; wait for it
		// rather than issuing a second overlapping write.
		c.mu.Unlock()
		<-existing.done
		return existing.err
	}
	c.pending[key] = pw
	c.mu.Unlock()

	pw.result, pw.err = c.write(key, data, meta, correlationID)

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	close(pw.done)

	return pw.err
}

func (c *AudioCache) write(key string, data []byte, meta Metadata, correlationID string) (*Entry, error) {
	if err := c.ensureInit(); err != nil {
		return nil, err
	}

	// Limits are checked against the state before this write, so a new
	// entry is never a candidate for its own eviction pass.
	if err := c.enforceLimits(correlationID); err != nil {
		c.logger.Warn("cache limit enforcement failed",
			"correlation_id", correlationID, "error", err)
	}

	if meta.CreatedAt == 0 {
		meta.CreatedAt = time.Now().UnixMilli()
	}
	meta.SizeBytes = int64(len(data))
	if meta.CorrelationID == "" {
		meta.CorrelationID = correlationID
	}

	if err := c.store.writeEntry(key, data, meta); err != nil {
		return nil, err
	}

	if c.config.EnableHitLogging {
		c.logger.Debug("cache write",
			"key", shortKey(key), "bytes", len(data), "correlation_id", correlationID)
	}
	return &Entry{Data: data, Metadata: meta}, nil
}

// enforceLimits deletes oldest-by-mtime entries until both the entry
// count and total size limits are satisfied.
func (c *AudioCache) enforceLimits(correlationID string) error {
	entries, err := c.store.list()
	if err != nil {
		return err
	}

	count := len(entries)
	var total int64
	for _, e := range entries {
		total += e.size
	}

	evicted := 0
	for _, e := range entries {
		overCount := c.config.MaxEntries > 0 && count >= c.config.MaxEntries
		overSize := c.config.MaxSizeBytes > 0 && total >= c.config.MaxSizeBytes
		if !overCount && !overSize {
			break
		}
		c.store.remove(e.key)
		count--
		total -= e.size
		evicted++
	}

	if evicted > 0 {
		c.counters.recordEvictions(evicted)
		c.logger.Debug("cache eviction",
			"evicted", evicted, "remaining", count, "correlation_id", correlationID)
	}
	return nil
}

// expired reports whether an entry's age exceeds the configured max age.
func (c *AudioCache) expired(entry *entryFile) bool {
	if c.config.MaxAge <= 0 {
		return false
	}
	created := time.UnixMilli(entry.Metadata.CreatedAt)
	if entry.Metadata.CreatedAt == 0 {
		created = time.UnixMilli(entry.Timestamp)
	}
	return time.Since(created) > c.config.MaxAge
}

// Cleanup sweeps the store: expired entries and entries whose metadata
// fails to parse are removed regardless of size and count limits, then
// limit enforcement runs once more.
func (c *AudioCache) Cleanup(correlationID string) error {
	if !c.config.Enabled {
		return nil
	}
	if err := c.ensureInit(); err != nil {
		return err
	}

	entries, err := c.store.list()
	if err != nil {
		return fmt.Errorf("cleanup scan failed: %w", err)
	}

	removed := 0
	for _, e := range entries {
		entry, err := c.store.readEntry(e.key)
		if err != nil || c.expired(entry) {
			c.store.remove(e.key)
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("cache cleanup",
			"removed", removed, "correlation_id", correlationID)
	}

	return c.enforceLimits(correlationID)
}

// Clear removes every entry. It waits for all in-flight writes to
// settle and blocks new ones for the duration of the sweep, so Clear
// never races a Set for any key.
func (c *AudioCache) Clear() error {
	if !c.config.Enabled {
		return nil
	}

	c.clearGate.Lock()
	defer c.clearGate.Unlock()

	if err := c.store.removeAll(); err != nil {
		return err
	}
	c.counters.reset()
	return c.store.init()
}

func (c *AudioCache) logHit(key, correlationID, source string) {
	if c.config.EnableHitLogging {
		c.logger.Debug("cache hit",
			"key", shortKey(key), "source", source, "correlation_id", correlationID)
	}
}

func (c *AudioCache) logMiss(key, correlationID, reason string) {
	if c.config.EnableHitLogging {
		c.logger.Debug("cache miss",
			"key", shortKey(key), "reason", reason, "correlation_id", correlationID)
	}
}

// shortKey truncates a key for log output.
func shortKey(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
