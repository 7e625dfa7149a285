// Package integration exercises the full flow: a command against the
// bridge whose response is too large, diverted into the cache, then
// pulled back out page by page and through filters.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komastudios/unity-mcp/internal/testutil"
	"github.com/komastudios/unity-mcp/pkg/bridge"
	"github.com/komastudios/unity-mcp/pkg/cache"
	"github.com/komastudios/unity-mcp/pkg/protocol"
	"github.com/komastudios/unity-mcp/pkg/retrieval"
)

// hierarchyResponse builds a scene-hierarchy result large enough to
// trip the default divert threshold.
func hierarchyResponse(objectCount int) map[string]any {
	objects := make([]any, objectCount)
	for i := range objects {
		objects[i] = map[string]any{
			"name":      fmt.Sprintf("GameObject_%05d", i),
			"path":      fmt.Sprintf("/Root/Env/Section_%03d/GameObject_%05d", i/100, i),
			"active":    i%3 != 0,
			"component": []any{"Transform", "MeshRenderer", "BoxCollider"},
		}
	}
	return map[string]any{
		"success": true,
		"data":    map[string]any{"objects": objects, "count": objectCount},
	}
}

func TestLargeResponseRoundTrip(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)
	defer mock.Close()

	const objectCount = 10000
	mock.SetResponse("manage_scene", protocol.StatusSuccess, hierarchyResponse(objectCount), "")

	host, port := mock.Addr()
	store := cache.New("responses", cache.DefaultConfig())
	cfg := bridge.DefaultConfig(host, port, store)
	cfg.ReadTimeout = 10 * time.Second

	connector := bridge.NewConnector(cfg)
	defer connector.Close()

	conn, err := connector.Acquire(context.Background())
	require.NoError(t, err)

	// The response is ~2 MB, far past the 15000-token divert line, so
	// the caller only sees the reference result.
	result, err := conn.Send(context.Background(), "manage_scene", map[string]any{"action": "get_hierarchy"})
	require.NoError(t, err)
	require.Equal(t, true, result["cached"], "oversized response was not diverted")
	cacheID := result["cache_id"].(string)

	h := retrieval.NewHandler(store)

	// Whole retrieval is refused at this size.
	whole := h.Handle(retrieval.NewRequest(retrieval.ActionGet, cacheID))
	require.False(t, whole.Success)
	assert.Contains(t, whole.Message, "too large")

	// Info shows provenance.
	infoRes := h.Handle(retrieval.NewRequest(retrieval.ActionInfo, cacheID))
	require.True(t, infoRes.Success)
	info := infoRes.Data.(*cache.EntryInfo)
	assert.Equal(t, "manage_scene", info.Metadata["tool"])

	// Walk every page of the objects sequence and reassemble it.
	pageReq := retrieval.NewRequest(retrieval.ActionGetPage, cacheID)
	pageReq.PageSizeKB = 256

	var collected []any
	var marker map[string]any
	for page := 1; ; page++ {
		pageReq.Page = page
		res := h.Handle(pageReq)
		require.True(t, res.Success, "page %d failed: %s", page, res.Message)
		pr := res.Data.(*cache.PageResult)
		assert.Equal(t, page, pr.Page)

		// The container's non-sequence fields ride along with each
		// page, sequence replaced by the page slice.
		body := pr.Data.(map[string]any)
		collected = append(collected, body["objects"].([]any)...)
		marker, _ = body["_pagination"].(map[string]any)
		require.NotNil(t, marker)
		assert.Equal(t, objectCount, int(body["count"].(float64)))

		// Multiple pages means no single page carries everything.
		assert.False(t, pr.IsComplete)

		if !pr.HasNext {
			assert.Equal(t, pr.TotalPages, page)
			break
		}
	}
	require.Len(t, collected, objectCount)

	first := collected[0].(map[string]any)
	last := collected[objectCount-1].(map[string]any)
	assert.Equal(t, "GameObject_00000", first["name"])
	assert.Equal(t, fmt.Sprintf("GameObject_%05d", objectCount-1), last["name"])

	// A narrowing filter comes back inline.
	countReq := retrieval.NewRequest(retrieval.ActionFilter, cacheID)
	countReq.Filter = ".objects | length"
	countRes := h.Handle(countReq)
	require.True(t, countRes.Success)
	assert.Equal(t, objectCount, countRes.Data.(map[string]any)["result"])

	// A wide filter is re-cached, and the chain continues from the new
	// entry.
	namesReq := retrieval.NewRequest(retrieval.ActionFilter, cacheID)
	namesReq.Filter = "[.objects[].name]"
	namesRes := h.Handle(namesReq)
	require.True(t, namesRes.Success)
	namesData := namesRes.Data.(map[string]any)
	require.Equal(t, true, namesData["cached"], "filtered name list should exceed the re-cache threshold")
	namesID := namesData["cache_id"].(string)

	chainReq := retrieval.NewRequest(retrieval.ActionFilter, namesID)
	chainReq.Filter = ".[0]"
	chainRes := h.Handle(chainReq)
	require.True(t, chainRes.Success)
	assert.Equal(t, "GameObject_00000", chainRes.Data.(map[string]any)["result"])

	chainInfo := h.Handle(retrieval.NewRequest(retrieval.ActionInfo, namesID))
	require.True(t, chainInfo.Success)
	assert.Equal(t, cacheID, chainInfo.Data.(*cache.EntryInfo).Metadata["source_cache_id"])

	// Both entries show up in the listing.
	listRes := h.Handle(retrieval.Request{Action: retrieval.ActionList})
	require.True(t, listRes.Success)
	assert.Equal(t, 2, listRes.Data.(map[string]any)["count"])
}

func TestSmallResponsePassesThrough(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)
	defer mock.Close()
	mock.SetResponse("manage_editor", protocol.StatusSuccess, map[string]any{
		"success": true,
		"data":    map[string]any{"is_playing": false},
	}, "")

	host, port := mock.Addr()
	store := cache.New("responses", cache.DefaultConfig())
	conn, err := bridge.New(bridge.DefaultConfig(host, port, store))
	require.NoError(t, err)
	defer conn.Disconnect()

	result, err := conn.Send(context.Background(), "manage_editor", map[string]any{"action": "get_state"})
	require.NoError(t, err)
	assert.Nil(t, result["cached"])
	assert.Equal(t, 0, store.Len())

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "is_playing")
}
