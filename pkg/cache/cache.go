package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/komastudios/unity-mcp/pkg/logging"
)

// ErrNotFound indicates the requested entry is absent or expired.
var ErrNotFound = errors.New("cache entry not found or expired")

// Config holds per-cache limits.
type Config struct {
	// MaxBytes is the global size ceiling for the sum of all live
	// entries' serialized sizes.
	MaxBytes int64

	// Expiration is the per-entry expiration window, applied at store
	// time.
	Expiration time.Duration

	// FilterCacheThreshold is the serialized size above which a
	// filtered result is re-cached instead of returned inline.
	FilterCacheThreshold int
}

// DefaultConfig returns the standard cache limits: 100 MB ceiling,
// 30 minute expiry, 100 KB filter re-cache threshold.
func DefaultConfig() Config {
	return Config{
		MaxBytes:             100 * 1024 * 1024,
		Expiration:           30 * time.Minute,
		FilterCacheThreshold: 100 * 1024,
	}
}

// Cache is a keyed in-memory store of documents with size accounting,
// lazy expiry and LRU eviction. All operations are safe for concurrent
// use; every mutation happens under a single mutex so the size counter
// stays exact. Expiry and eviction are both evaluated at call time,
// never by a background sweeper.
type Cache struct {
	name   string
	cfg    Config
	logger zerolog.Logger

	mu         sync.Mutex
	entries    map[string]*Entry
	totalBytes int64
}

// New creates a cache with the given name and limits. The name labels
// log lines and metrics only; entry IDs are globally unique regardless.
func New(name string, cfg Config) *Cache {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultConfig().MaxBytes
	}
	if cfg.FilterCacheThreshold <= 0 {
		cfg.FilterCacheThreshold = DefaultConfig().FilterCacheThreshold
	}
	return &Cache{
		name:    name,
		cfg:     cfg,
		logger:  logging.NewLogger("cache").With().Str("cache", name).Logger(),
		entries: make(map[string]*Entry),
	}
}

// Store serializes the payload, makes room under the size ceiling and
// inserts a new entry, returning its id. Expired entries are purged
// first; then least-recently-used entries are evicted one at a time
// until the new entry fits or the cache is empty.
func (c *Cache) Store(payload any, metadata map[string]any) (string, error) {
	serialized, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	size := len(serialized)
	if metadata == nil {
		metadata = map[string]any{}
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(now)
	c.makeRoomLocked(int64(size))

	id := uuid.NewString()
	c.entries[id] = &Entry{
		ID:             id,
		Payload:        payload,
		Serialized:     serialized,
		SizeBytes:      size,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.cfg.Expiration),
		LastAccessedAt: now,
		Metadata:       metadata,
	}
	c.totalBytes += int64(size)
	c.updateGaugesLocked()
	storesTotal.WithLabelValues(c.name).Inc()

	c.logger.Debug().
		Str("cache_id", id).
		Int("size_bytes", size).
		Int64("total_bytes", c.totalBytes).
		Msg("Stored entry")

	return id, nil
}

// Fetch returns the stored payload and bumps access bookkeeping.
// An expired entry is removed and reported as a miss.
func (c *Cache) Fetch(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(id, time.Now())
	if !ok {
		missesTotal.WithLabelValues(c.name).Inc()
		return nil, false
	}
	e.AccessCount++
	e.LastAccessedAt = time.Now()
	hitsTotal.WithLabelValues(c.name).Inc()
	return e.Payload, true
}

// FetchSerialized returns the precomputed serialized form with the
// same expiry semantics as Fetch, without touching access bookkeeping.
func (c *Cache) FetchSerialized(id string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(id, time.Now())
	if !ok {
		return nil, false
	}
	return e.Serialized, true
}

// Info describes an entry without touching access bookkeeping.
// Expired entries are treated as absent.
func (c *Cache) Info(id string) (*EntryInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(id, time.Now())
	if !ok {
		return nil, false
	}
	return e.info(), true
}

// List describes all live entries, newest-created first.
func (c *Cache) List() []*EntryInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked(time.Now())

	live := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		live = append(live, e)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].CreatedAt.After(live[j].CreatedAt)
	})

	infos := make([]*EntryInfo, len(live))
	for i, e := range live {
		infos[i] = e.info()
	}
	return infos
}

// Remove deletes an entry explicitly. It reports whether an entry was
// removed.
func (c *Cache) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[id]; !ok {
		return false
	}
	c.removeLocked(id)
	c.updateGaugesLocked()
	return true
}

// TotalBytes returns the current sum of live entries' serialized
// sizes.
func (c *Cache) TotalBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalBytes
}

// Len returns the number of live entries, counting entries that have
// expired but not yet been reclaimed.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// lookupLocked resolves an id with purge-if-expired-then-miss
// semantics.
func (c *Cache) lookupLocked(id string, now time.Time) (*Entry, bool) {
	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	if e.expiredAt(now) {
		c.removeLocked(id)
		c.updateGaugesLocked()
		expirationsTotal.WithLabelValues(c.name).Inc()
		return nil, false
	}
	return e, true
}

func (c *Cache) purgeExpiredLocked(now time.Time) {
	for id, e := range c.entries {
		if e.expiredAt(now) {
			c.removeLocked(id)
			expirationsTotal.WithLabelValues(c.name).Inc()
		}
	}
	c.updateGaugesLocked()
}

// makeRoomLocked evicts least-recently-used entries until newSize fits
// under the ceiling or the cache is empty.
func (c *Cache) makeRoomLocked(newSize int64) {
	for c.totalBytes+newSize > c.cfg.MaxBytes && len(c.entries) > 0 {
		var victim *Entry
		for _, e := range c.entries {
			if victim == nil || e.LastAccessedAt.Before(victim.LastAccessedAt) {
				victim = e
			}
		}
		c.logger.Debug().
			Str("cache_id", victim.ID).
			Int("size_bytes", victim.SizeBytes).
			Msg("Evicting entry")
		c.removeLocked(victim.ID)
		evictionsTotal.WithLabelValues(c.name).Inc()
	}
	c.updateGaugesLocked()
}

// removeLocked deletes an entry and decrements the size counter
// exactly once.
func (c *Cache) removeLocked(id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.totalBytes -= int64(e.SizeBytes)
	delete(c.entries, id)
}

func (c *Cache) updateGaugesLocked() {
	sizeBytes.WithLabelValues(c.name).Set(float64(c.totalBytes))
	entriesGauge.WithLabelValues(c.name).Set(float64(len(c.entries)))
}
