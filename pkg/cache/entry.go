package cache

import (
	"time"
)

// Entry is one cached document. The payload is stored alongside its
// serialized form so size checks and pagination never re-serialize.
type Entry struct {
	// ID is the opaque 128-bit random identifier, in textual form.
	ID string

	// Payload is the stored document: an arbitrary tree of maps,
	// sequences and scalars as produced by decoding the bridge's JSON.
	Payload any

	// Serialized is the JSON form of Payload, computed once at store
	// time.
	Serialized []byte

	// SizeBytes is len(Serialized).
	SizeBytes int

	// CreatedAt is the store time; ExpiresAt is CreatedAt plus the
	// cache's expiration window.
	CreatedAt time.Time
	ExpiresAt time.Time

	// LastAccessedAt is updated on every successful fetch and is the
	// eviction recency signal. It starts equal to CreatedAt.
	LastAccessedAt time.Time

	// AccessCount counts successful fetches.
	AccessCount int64

	// Metadata describes provenance (originating command, filter
	// lineage, size). The cache never interprets it.
	Metadata map[string]any
}

// IsExpired reports whether the entry has passed its expiry time.
func (e *Entry) IsExpired() bool {
	return e.expiredAt(time.Now())
}

func (e *Entry) expiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// TTL returns the remaining time until expiry, or 0 if already
// expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// EntryInfo is the externally visible description of a cache entry.
// Timestamps are ISO-8601 strings so the info block can be returned to
// callers verbatim.
type EntryInfo struct {
	CacheID     string         `json:"cache_id"`
	SizeBytes   int            `json:"size_bytes"`
	SizeMB      float64        `json:"size_mb"`
	CreatedAt   string         `json:"created_at"`
	ExpiresAt   string         `json:"expires_at"`
	AccessCount int64          `json:"access_count"`
	Metadata    map[string]any `json:"metadata"`
}

// info builds the EntryInfo view without touching access bookkeeping.
func (e *Entry) info() *EntryInfo {
	sizeMB := float64(e.SizeBytes) / (1024 * 1024)
	return &EntryInfo{
		CacheID:     e.ID,
		SizeBytes:   e.SizeBytes,
		SizeMB:      roundTo2(sizeMB),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		ExpiresAt:   e.ExpiresAt.Format(time.RFC3339),
		AccessCount: e.AccessCount,
		Metadata:    e.Metadata,
	}
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
