package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// FilterError indicates a filter expression failed to parse or
// evaluate. It is distinct from ErrNotFound so callers can tell a bad
// filter from a missing entry.
type FilterError struct {
	Expr string
	Err  error
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("filter %q: %v", e.Expr, e.Err)
}

func (e *FilterError) Unwrap() error {
	return e.Err
}

// FilterResult is the outcome of ApplyFilter: either the filtered
// value inline, or the id of a freshly cached entry when the value was
// too large to hand back directly.
type FilterResult struct {
	Cached  bool
	CacheID string
	Value   any
}

// ApplyFilter evaluates a jq-compatible expression against the stored
// payload. All produced results are collected into a sequence; a
// single result is unwrapped to the bare value, matching the common
// expectation that a scalar filter yields a scalar. Results whose
// serialized size exceeds the filter re-cache threshold are stored as
// a new entry (recording the source id and expression in its metadata)
// when cacheResult is true, so filter chains never materialize a huge
// value at the call boundary.
func (c *Cache) ApplyFilter(id, expr string, cacheResult bool) (*FilterResult, error) {
	payload, sourceTool, ok := c.fetchForFilter(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, &FilterError{Expr: expr, Err: err}
	}

	results := []any{}
	iter := query.Run(payload)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if evalErr, isErr := v.(error); isErr {
			return nil, &FilterError{Expr: expr, Err: evalErr}
		}
		results = append(results, v)
	}

	var filtered any = results
	if len(results) == 1 {
		filtered = results[0]
	}

	serialized, err := json.Marshal(filtered)
	if err != nil {
		return nil, &FilterError{Expr: expr, Err: err}
	}

	if cacheResult && len(serialized) > c.cfg.FilterCacheThreshold {
		newID, err := c.Store(filtered, map[string]any{
			"source_cache_id": id,
			"jq_filter":       expr,
			"filtered_from":   sourceTool,
		})
		if err != nil {
			return nil, err
		}
		c.logger.Debug().
			Str("source_cache_id", id).
			Str("cache_id", newID).
			Int("size_bytes", len(serialized)).
			Msg("Cached large filter result")
		return &FilterResult{Cached: true, CacheID: newID}, nil
	}

	return &FilterResult{Value: filtered}, nil
}

// fetchForFilter returns the payload plus the originating command name
// from the source entry's metadata, bumping access bookkeeping.
func (c *Cache) fetchForFilter(id string) (any, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(id, time.Now())
	if !ok {
		missesTotal.WithLabelValues(c.name).Inc()
		return nil, "", false
	}
	e.AccessCount++
	e.LastAccessedAt = time.Now()
	hitsTotal.WithLabelValues(c.name).Inc()

	sourceTool := "unknown"
	if tool, ok := e.Metadata["tool"].(string); ok && tool != "" {
		sourceTool = tool
	}
	return e.Payload, sourceTool, true
}
