package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/komastudios/unity-mcp/pkg/logging"
)

// Connector keeps a single shared Connection and hands it out only
// after verifying it with a keepalive probe. A reused connection that
// fails the probe is discarded and rebuilt, so callers never observe a
// connection that cannot currently communicate - subject to TOCTOU,
// it can still fail on the very next send.
//
// Concurrent acquisitions deduplicate through a singleflight group,
// and the connect-and-verify step sits behind a circuit breaker so a
// down bridge fast-fails instead of re-dialing on every call.
type Connector struct {
	cfg     Config
	logger  zerolog.Logger
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker[*Connection]

	mu   sync.Mutex
	conn *Connection
}

// NewConnector creates a connector for the given connection
// configuration.
func NewConnector(cfg Config) *Connector {
	breaker := gobreaker.NewCircuitBreaker[*Connection](gobreaker.Settings{
		Name: "bridge-connect",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Connector{
		cfg:     cfg,
		logger:  logging.NewLogger("bridge-connector"),
		breaker: breaker,
	}
}

// Acquire returns the shared, verified connection, establishing a new
// one if necessary.
func (cn *Connector) Acquire(ctx context.Context) (*Connection, error) {
	cn.mu.Lock()
	existing := cn.conn
	cn.mu.Unlock()

	if existing != nil {
		if _, err := existing.Send(ctx, KeepaliveCommand, nil); err == nil {
			cn.logger.Debug().Msg("Reusing existing bridge connection")
			return existing, nil
		} else {
			cn.logger.Warn().Err(err).Msg("Existing connection failed verification")
		}
		existing.Disconnect()
		cn.mu.Lock()
		if cn.conn == existing {
			cn.conn = nil
		}
		cn.mu.Unlock()
	}

	v, err, _ := cn.group.Do("connect", func() (any, error) {
		return cn.breaker.Execute(func() (*Connection, error) {
			return cn.establish(ctx)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.(*Connection), nil
}

// establish dials a fresh connection and verifies it before it is
// published as the shared one.
func (cn *Connector) establish(ctx context.Context) (*Connection, error) {
	cn.logger.Info().Msg("Creating new bridge connection")

	conn, err := New(cn.cfg)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	if _, err := conn.Send(ctx, KeepaliveCommand, nil); err != nil {
		conn.Disconnect()
		return nil, err
	}

	cn.mu.Lock()
	cn.conn = conn
	cn.mu.Unlock()

	cn.logger.Info().Msg("Established verified bridge connection")
	return conn, nil
}

// Close discards the shared connection, if any.
func (cn *Connector) Close() {
	cn.mu.Lock()
	conn := cn.conn
	cn.conn = nil
	cn.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
}
