package bridge

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/komastudios/unity-mcp/internal/testutil"
	"github.com/komastudios/unity-mcp/pkg/cache"
)

func newTestConnector(t *testing.T, mock *testutil.MockBridge) *Connector {
	t.Helper()

	host, port := mock.Addr()
	cfg := DefaultConfig(host, port, cache.New("test", cache.DefaultConfig()))
	cfg.ConnectTimeout = 2 * time.Second
	cfg.ReadTimeout = 2 * time.Second

	cn := NewConnector(cfg)
	t.Cleanup(cn.Close)
	return cn
}

func TestConnector_AcquireVerifies(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)
	defer mock.Close()

	cn := newTestConnector(t, mock)

	conn, err := cn.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateConnected, conn.State())
	// Establishing runs the keepalive exchange before publishing.
	assert.Equal(t, 1, mock.Pings())
}

func TestConnector_AcquireReusesVerifiedConnection(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)
	defer mock.Close()

	cn := newTestConnector(t, mock)

	first, err := cn.Acquire(context.Background())
	require.NoError(t, err)
	second, err := cn.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	// One probe for establish, one for reuse verification.
	assert.Equal(t, 2, mock.Pings())
}

func TestConnector_RebuildsAfterPeerGone(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)

	cn := newTestConnector(t, mock)

	first, err := cn.Acquire(context.Background())
	require.NoError(t, err)

	// With the peer gone the reuse probe fails, the stale connection
	// is discarded, and the rebuild fails too.
	mock.Close()
	_, err = cn.Acquire(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, first.State())
}

func TestConnector_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	// A port with no listener refuses every dial.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	cfg := DefaultConfig(addr.IP.String(), addr.Port, cache.New("test", cache.DefaultConfig()))
	cfg.ConnectTimeout = time.Second
	cn := NewConnector(cfg)
	defer cn.Close()

	for i := 0; i < 3; i++ {
		_, err := cn.Acquire(context.Background())
		require.ErrorIs(t, err, ErrConnectionRefused)
	}

	_, err = cn.Acquire(context.Background())
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestConnector_CloseDiscardsConnection(t *testing.T) {
	mock, err := testutil.NewMockBridge()
	require.NoError(t, err)
	defer mock.Close()

	cn := newTestConnector(t, mock)

	conn, err := cn.Acquire(context.Background())
	require.NoError(t, err)

	cn.Close()
	assert.Equal(t, StateDisconnected, conn.State())
}
