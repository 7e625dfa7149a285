// Package retrieval implements the cached-response retrieval surface:
// the command collaborators call to pull diverted responses back out
// of the cache, whole, by page or through a jq filter.
package retrieval

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/komastudios/unity-mcp/pkg/cache"
	"github.com/komastudios/unity-mcp/pkg/logging"
)

// Action selects the cache operation to perform.
type Action string

const (
	ActionGet     Action = "get"
	ActionGetPage Action = "get_page"
	ActionFilter  Action = "filter"
	ActionInfo    Action = "info"
	ActionList    Action = "list"
)

// DirectReturnLimitBytes is the human-facing size ceiling for
// ActionGet: payloads still over it are refused even though they were
// small enough to stay out of the cache divert path, nudging the
// caller toward pagination or filtering.
const DirectReturnLimitBytes = 100 * 1024

// Request describes one retrieval operation. Use NewRequest to get
// the standard defaults (page 1, 1 MB pages, filter results cached).
type Request struct {
	Action  Action
	CacheID string

	// Page and PageSizeKB apply to ActionGetPage.
	Page       int
	PageSizeKB int

	// Filter and CacheFilteredResult apply to ActionFilter.
	Filter              string
	CacheFilteredResult bool
}

// NewRequest builds a request with default pagination and filter
// caching settings.
func NewRequest(action Action, cacheID string) Request {
	return Request{
		Action:              action,
		CacheID:             cacheID,
		Page:                1,
		PageSizeKB:          1024,
		CacheFilteredResult: true,
	}
}

// Result is the structured outcome handed back to the collaborator:
// never an error, always a success flag with a message and optional
// data.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Handler serves retrieval requests against one cache.
type Handler struct {
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewHandler creates a handler bound to the given cache.
func NewHandler(c *cache.Cache) *Handler {
	return &Handler{
		cache:  c,
		logger: logging.NewLogger("retrieval"),
	}
}

// Handle dispatches a retrieval request. Cache misses and filter
// errors are reported as structured failures, never as Go errors.
func (h *Handler) Handle(req Request) Result {
	if req.Action == ActionList {
		return h.list()
	}

	if req.CacheID == "" {
		return Result{
			Success: false,
			Message: fmt.Sprintf("cache_id is required for action %q", req.Action),
		}
	}

	switch req.Action {
	case ActionGet:
		return h.get(req.CacheID)
	case ActionGetPage:
		return h.getPage(req)
	case ActionFilter:
		return h.filter(req)
	case ActionInfo:
		return h.info(req.CacheID)
	default:
		return Result{
			Success: false,
			Message: fmt.Sprintf("unknown action %q; valid actions: get, get_page, filter, info, list", req.Action),
		}
	}
}

func (h *Handler) get(cacheID string) Result {
	data, ok := h.cache.Fetch(cacheID)
	if !ok {
		return notFound(cacheID)
	}

	// The stored entry keeps its serialized form, so the size check
	// costs a lookup, not a re-serialization.
	serialized, _ := h.cache.FetchSerialized(cacheID)
	sizeKB := float64(len(serialized)) / 1024
	if len(serialized) > DirectReturnLimitBytes {
		return Result{
			Success: false,
			Message: fmt.Sprintf("Cached data is still too large (%.1f KB). Use pagination or filtering.", sizeKB),
			Data: map[string]any{
				"cache_id": cacheID,
				"size_kb":  sizeKB,
				"suggestions": map[string]any{
					"use_pagination": "Set action=get_page with an appropriate page size",
					"use_filter":     "Set action=filter with a jq expression to extract specific data",
				},
			},
		}
	}

	return Result{Success: true, Message: "Cached data retrieved", Data: data}
}

func (h *Handler) getPage(req Request) Result {
	page, ok := h.cache.FetchPage(req.CacheID, req.Page, req.PageSizeKB*1024)
	if !ok {
		return notFound(req.CacheID)
	}
	return Result{
		Success: true,
		Message: fmt.Sprintf("Retrieved page %d of %d", page.Page, page.TotalPages),
		Data:    page,
	}
}

func (h *Handler) filter(req Request) Result {
	if req.Filter == "" {
		return Result{Success: false, Message: "filter expression is required for filter action"}
	}

	res, err := h.cache.ApplyFilter(req.CacheID, req.Filter, req.CacheFilteredResult)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return notFound(req.CacheID)
		}
		h.logger.Debug().Err(err).Str("cache_id", req.CacheID).Msg("Filter failed")
		return Result{
			Success: false,
			Message: err.Error(),
			Data: map[string]any{
				"cache_id":  req.CacheID,
				"jq_filter": req.Filter,
			},
		}
	}

	if res.Cached {
		return Result{
			Success: true,
			Message: "Filtered result was large and has been cached",
			Data: map[string]any{
				"cached":    true,
				"cache_id":  res.CacheID,
				"jq_filter": req.Filter,
				"hint":      "Use the returned cache_id to fetch the filtered data",
			},
		}
	}
	return Result{
		Success: true,
		Message: "Filter applied successfully",
		Data: map[string]any{
			"cached":    false,
			"result":    res.Value,
			"jq_filter": req.Filter,
		},
	}
}

func (h *Handler) info(cacheID string) Result {
	info, ok := h.cache.Info(cacheID)
	if !ok {
		return notFound(cacheID)
	}
	return Result{Success: true, Message: "Cache info retrieved", Data: info}
}

func (h *Handler) list() Result {
	items := h.cache.List()

	var totalMB float64
	for _, item := range items {
		totalMB += item.SizeMB
	}

	return Result{
		Success: true,
		Message: fmt.Sprintf("Found %d cached items", len(items)),
		Data: map[string]any{
			"count":         len(items),
			"total_size_mb": totalMB,
			"items":         items,
		},
	}
}

func notFound(cacheID string) Result {
	return Result{
		Success: false,
		Message: fmt.Sprintf("Cache ID %s not found or expired", cacheID),
	}
}
