package cache

import (
	"sort"
	"time"
)

// DefaultPageSizeBytes is used when a caller passes a non-positive
// page size.
const DefaultPageSizeBytes = 1024 * 1024

// notPaginableMessage is returned as the page data for payloads with
// no structure to slice.
const notPaginableMessage = "Data structure not suitable for pagination"

// PageResult is one page of a cached document plus the pagination
// bookkeeping callers need to walk the rest.
type PageResult struct {
	CacheID       string `json:"cache_id"`
	Page          int    `json:"page"`
	TotalPages    int    `json:"total_pages"`
	PageSizeBytes int    `json:"page_size_bytes"`
	TotalBytes    int    `json:"total_bytes"`
	TotalItems    int    `json:"total_items"`
	ItemsPerPage  int    `json:"items_per_page"`
	HasNext       bool   `json:"has_next"`
	HasPrevious   bool   `json:"has_previous"`
	Data          any    `json:"data"`
	IsComplete    bool   `json:"is_complete"`
}

// FetchPage returns one page of the stored payload. Sequences are
// sliced by an items-per-page estimate derived from the average item
// size; maps are paginated through their first sequence-valued field
// (first in sorted key order, so repeated requests slice identically);
// anything else is returned whole when it fits on page one. Access
// bookkeeping is bumped like Fetch.
func (c *Cache) FetchPage(id string, page, pageSizeBytes int) (*PageResult, bool) {
	if page < 1 {
		page = 1
	}
	if pageSizeBytes <= 0 {
		pageSizeBytes = DefaultPageSizeBytes
	}

	c.mu.Lock()
	e, ok := c.lookupLocked(id, time.Now())
	if !ok {
		missesTotal.WithLabelValues(c.name).Inc()
		c.mu.Unlock()
		return nil, false
	}
	e.AccessCount++
	e.LastAccessedAt = time.Now()
	hitsTotal.WithLabelValues(c.name).Inc()
	payload := e.Payload
	totalBytes := e.SizeBytes
	c.mu.Unlock()

	return paginate(id, payload, totalBytes, page, pageSizeBytes), true
}

func paginate(id string, payload any, totalBytes, page, pageSizeBytes int) *PageResult {
	res := &PageResult{
		CacheID:       id,
		Page:          page,
		TotalPages:    1,
		PageSizeBytes: pageSizeBytes,
		TotalBytes:    totalBytes,
	}

	switch v := payload.(type) {
	case []any:
		slice, p := sliceSequence(v, totalBytes, page, pageSizeBytes)
		res.Data = slice
		res.TotalItems = p.totalItems
		res.ItemsPerPage = p.itemsPerPage
		res.TotalPages = p.totalPages

	case map[string]any:
		field, seq, found := firstSequenceField(v)
		if !found {
			res.Data = wholeOrPlaceholder(payload, totalBytes, page, pageSizeBytes)
			break
		}
		slice, p := sliceSequence(seq, totalBytes, page, pageSizeBytes)
		// Shallow copy with the sequence field replaced by the page
		// slice plus a marker describing which span was taken.
		paged := make(map[string]any, len(v)+1)
		for k, val := range v {
			if k != field {
				paged[k] = val
			}
		}
		paged[field] = slice
		paged["_pagination"] = map[string]any{
			"field":       field,
			"start_index": p.start,
			"end_index":   p.end,
		}
		res.Data = paged
		res.TotalItems = p.totalItems
		res.ItemsPerPage = p.itemsPerPage
		res.TotalPages = p.totalPages

	default:
		res.Data = wholeOrPlaceholder(payload, totalBytes, page, pageSizeBytes)
	}

	res.HasNext = page < res.TotalPages
	res.HasPrevious = page > 1
	res.IsComplete = res.TotalPages == 1
	return res
}

type pageSpan struct {
	totalItems   int
	itemsPerPage int
	totalPages   int
	start, end   int
}

// sliceSequence slices one page out of a sequence. Items per page is
// estimated from the average serialized item size; an empty sequence
// counts as a single complete page.
func sliceSequence(items []any, totalBytes, page, pageSizeBytes int) ([]any, pageSpan) {
	n := len(items)

	avgItemSize := float64(totalBytes)
	if n > 0 {
		avgItemSize = float64(totalBytes) / float64(n)
	}
	itemsPerPage := int(float64(pageSizeBytes) / avgItemSize)
	if itemsPerPage < 1 {
		itemsPerPage = 1
	}

	totalPages := 1
	if n > 0 {
		totalPages = (n + itemsPerPage - 1) / itemsPerPage
	}

	start := (page - 1) * itemsPerPage
	end := start + itemsPerPage
	if start > n {
		start = n
	}
	if end > n {
		end = n
	}

	return items[start:end], pageSpan{
		totalItems:   n,
		itemsPerPage: itemsPerPage,
		totalPages:   totalPages,
		start:        start,
		end:          end,
	}
}

// firstSequenceField returns the first sequence-valued field of the
// map in sorted key order. Sorting pins down "first": Go maps do not
// preserve the document's key order.
func firstSequenceField(m map[string]any) (string, []any, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if seq, ok := m[k].([]any); ok {
			return k, seq, true
		}
	}
	return "", nil, false
}

// wholeOrPlaceholder returns the payload unpaginated when it fits in a
// single page and page one was requested, and a placeholder otherwise.
func wholeOrPlaceholder(payload any, totalBytes, page, pageSizeBytes int) any {
	if totalBytes <= pageSizeBytes && page == 1 {
		return payload
	}
	return map[string]any{"message": notPaginableMessage}
}
