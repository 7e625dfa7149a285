package cache

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEntry_Expiry(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		expiresAt time.Time
		expired   bool
	}{
		{"in the future", now.Add(time.Minute), false},
		{"in the past", now.Add(-time.Minute), true},
		{"far future", now.Add(24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Entry{ExpiresAt: tt.expiresAt}
			if got := e.expiredAt(now); got != tt.expired {
				t.Errorf("expiredAt = %v, want %v", got, tt.expired)
			}
		})
	}
}

func TestEntry_TTL(t *testing.T) {
	e := &Entry{ExpiresAt: time.Now().Add(time.Hour)}
	ttl := e.TTL()
	if ttl <= 0 || ttl > time.Hour {
		t.Errorf("TTL = %v, want within (0, 1h]", ttl)
	}

	expired := &Entry{ExpiresAt: time.Now().Add(-time.Minute)}
	if got := expired.TTL(); got != 0 {
		t.Errorf("expired TTL = %v, want 0", got)
	}
}

func TestEntryInfo_JSONShape(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		ID:          "abc-123",
		SizeBytes:   3 * 1024 * 1024,
		CreatedAt:   created,
		ExpiresAt:   created.Add(30 * time.Minute),
		AccessCount: 4,
		Metadata:    map[string]any{"tool": "manage_scene"},
	}

	raw, err := json.Marshal(e.info())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	for _, key := range []string{"cache_id", "size_bytes", "size_mb", "created_at", "expires_at", "access_count", "metadata"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("info JSON missing %q", key)
		}
	}
	if decoded["cache_id"] != "abc-123" {
		t.Errorf("cache_id = %v", decoded["cache_id"])
	}
	if decoded["size_mb"] != 3.0 {
		t.Errorf("size_mb = %v, want 3", decoded["size_mb"])
	}
	if decoded["created_at"] != "2025-03-01T12:00:00Z" {
		t.Errorf("created_at = %v", decoded["created_at"])
	}
}
