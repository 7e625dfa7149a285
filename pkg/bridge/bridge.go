// Package bridge manages the persistent TCP connection to the Unity
// editor bridge: framing and sending commands, keepalive verification,
// and diverting oversized responses into the response cache.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/komastudios/unity-mcp/pkg/cache"
	"github.com/komastudios/unity-mcp/pkg/logging"
	"github.com/komastudios/unity-mcp/pkg/protocol"
)

// Prometheus metrics for bridge operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unity_bridge_requests_total",
		Help: "Total bridge commands by command name and status",
	}, []string{"command", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "unity_bridge_request_duration_seconds",
		Help:    "Bridge command round-trip duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"command"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unity_bridge_errors_total",
		Help: "Total bridge errors by class",
	}, []string{"class"})

	dropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unity_bridge_connection_drops_total",
		Help: "Total times the bridge connection was invalidated",
	})

	cachedResponsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unity_bridge_cached_responses_total",
		Help: "Total responses diverted into the cache for being oversized",
	})
)

// Error classes for the errors_total metric.
const (
	errClassTimeout      = "timeout"
	errClassClosed       = "closed"
	errClassRefused      = "refused"
	errClassRemote       = "remote"
	errClassInvalid      = "invalid"
	errClassIO           = "io"
	errClassVerification = "verification"
)

// KeepaliveCommand is the command name that triggers the fixed
// keepalive exchange instead of the general envelope.
const KeepaliveCommand = "ping"

// State describes where the connection is in its lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Config holds the connection configuration.
type Config struct {
	// Host and Port locate the bridge.
	Host string
	Port int

	// ConnectTimeout bounds the connect phase; ReadTimeout bounds the
	// per-response read phase. They are independent.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	// BufferSize is the per-read chunk size hint for frame assembly.
	BufferSize int

	// TokenThreshold is the estimated-token count above which a
	// successful response's data payload is diverted into the cache.
	// BytesPerToken is the estimation heuristic, an approximation tied
	// to the consumer's context budget rather than a precise measure.
	TokenThreshold int
	BytesPerToken  int

	// Cache receives diverted oversized responses.
	Cache *cache.Cache
}

// DefaultConfig returns a safe default configuration pointing at the
// given bridge address.
func DefaultConfig(host string, port int, c *cache.Cache) Config {
	return Config{
		Host:           host,
		Port:           port,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    30 * time.Second,
		BufferSize:     protocol.DefaultBufferSize,
		TokenThreshold: 15000,
		BytesPerToken:  4,
		Cache:          c,
	}
}

// Connection owns one stream socket to the bridge. The protocol has no
// request correlation ids, so a Connection must not carry overlapping
// sends; all operations serialize on an internal mutex and callers
// treat it as an exclusively owned resource.
type Connection struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	conn  net.Conn
	state State
}

// New creates a connection in the Disconnected state.
func New(cfg Config) (*Connection, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("bridge host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid bridge port %d", cfg.Port)
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = protocol.DefaultBufferSize
	}
	if cfg.TokenThreshold <= 0 {
		cfg.TokenThreshold = 15000
	}
	if cfg.BytesPerToken <= 0 {
		cfg.BytesPerToken = 4
	}

	return &Connection{
		cfg:    cfg,
		logger: logging.NewLogger("bridge").With().Str("addr", cfg.addr()).Logger(),
		state:  StateDisconnected,
	}, nil
}

func (cfg Config) addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the stream socket. On failure the connection stays
// Disconnected and the cause (timeout vs refused vs other) is
// distinguishable via errors.Is.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked(ctx)
}

func (c *Connection) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	addr := c.cfg.addr()
	c.state = StateConnecting
	c.logger.Info().Msg("Connecting to bridge")

	dialer := &net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		c.state = StateDisconnected
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			c.logger.Error().Msg("Connect timeout - bridge not responding")
			errorsTotal.WithLabelValues(errClassTimeout).Inc()
			return fmt.Errorf("connect to %s: %w", addr, ErrConnectTimeout)
		case errors.Is(err, syscall.ECONNREFUSED):
			c.logger.Error().Msg("Connection refused - bridge not listening")
			errorsTotal.WithLabelValues(errClassRefused).Inc()
			return fmt.Errorf("connect to %s: %w", addr, ErrConnectionRefused)
		default:
			c.logger.Error().Err(err).Msg("Connect failed")
			errorsTotal.WithLabelValues(errClassIO).Inc()
			return fmt.Errorf("connect to %s: %w", addr, err)
		}
	}

	c.conn = conn
	c.state = StateConnected
	c.logger.Info().
		Str("local", conn.LocalAddr().String()).
		Str("remote", conn.RemoteAddr().String()).
		Msg("Connected to bridge")
	return nil
}

// Disconnect closes the socket best-effort. The internal handle is
// cleared even if close fails.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("Error closing bridge connection")
	}
	c.conn = nil
	c.state = StateDisconnected
	c.logger.Info().Msg("Disconnected from bridge")
}

// Send issues one command and returns the bridge's result object.
// A disconnected connection is connected first. The keepalive command
// is special-cased to the fixed probe exchange. Successful results
// whose data payload exceeds the token threshold are stored in the
// cache and replaced by a small reference result.
func (c *Connection) Send(ctx context.Context, commandName string, params map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(ctx); err != nil {
			requestsTotal.WithLabelValues(commandName, "not_connected").Inc()
			return nil, fmt.Errorf("%w: %v", ErrNotConnected, err)
		}
	}

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(commandName).Observe(time.Since(start).Seconds())
	}()

	if commandName == KeepaliveCommand {
		return c.keepaliveLocked()
	}
	return c.commandLocked(commandName, params)
}

// keepaliveLocked runs the two-state liveness exchange: the bare probe
// payload out, the fixed pong body back. Any deviation drops the
// connection.
func (c *Connection) keepaliveLocked() (map[string]any, error) {
	c.logger.Debug().Msg("Sending keepalive probe")

	if _, err := c.conn.Write(protocol.PingProbe); err != nil {
		c.dropLocked()
		errorsTotal.WithLabelValues(errClassVerification).Inc()
		requestsTotal.WithLabelValues(KeepaliveCommand, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	raw, err := protocol.ReadResponse(c.conn, c.cfg.BufferSize, c.cfg.ReadTimeout)
	if err != nil {
		c.dropLocked()
		errorsTotal.WithLabelValues(errClassVerification).Inc()
		requestsTotal.WithLabelValues(KeepaliveCommand, "error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Status != protocol.StatusSuccess {
		c.dropLocked()
		errorsTotal.WithLabelValues(errClassVerification).Inc()
		requestsTotal.WithLabelValues(KeepaliveCommand, "error").Inc()
		return nil, ErrVerificationFailed
	}

	requestsTotal.WithLabelValues(KeepaliveCommand, "success").Inc()
	return map[string]any{"message": "pong"}, nil
}

func (c *Connection) commandLocked(commandName string, params map[string]any) (map[string]any, error) {
	payload, err := protocol.EncodeRequest(commandName, params)
	if err != nil {
		requestsTotal.WithLabelValues(commandName, "error").Inc()
		return nil, err
	}

	if len(payload) > c.cfg.BufferSize/2 {
		c.logger.Warn().
			Str("command", commandName).
			Int("size_bytes", len(payload)).
			Msg("Large command payload")
	}

	c.logger.Info().
		Str("command", commandName).
		Int("size_bytes", len(payload)).
		Msg("Sending command")

	if _, err := c.conn.Write(payload); err != nil {
		c.dropLocked()
		errorsTotal.WithLabelValues(errClassIO).Inc()
		requestsTotal.WithLabelValues(commandName, "error").Inc()
		return nil, &CommunicationError{Op: "send", Err: err}
	}

	raw, err := protocol.ReadResponse(c.conn, c.cfg.BufferSize, c.cfg.ReadTimeout)
	if err != nil {
		c.dropLocked()
		requestsTotal.WithLabelValues(commandName, "error").Inc()
		switch {
		case errors.Is(err, protocol.ErrTimeout):
			errorsTotal.WithLabelValues(errClassTimeout).Inc()
		case errors.Is(err, protocol.ErrConnectionClosed):
			errorsTotal.WithLabelValues(errClassClosed).Inc()
		default:
			errorsTotal.WithLabelValues(errClassIO).Inc()
		}
		return nil, &CommunicationError{Op: "read", Err: err}
	}

	var resp protocol.Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		// A frame that assembled but does not deserialize means the
		// stream position is unknown; it is not resumable.
		c.dropLocked()
		errorsTotal.WithLabelValues(errClassInvalid).Inc()
		requestsTotal.WithLabelValues(commandName, "error").Inc()
		c.logger.Error().
			Err(err).
			Str("partial", truncate(raw, 500)).
			Msg("Invalid response from bridge")
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	if resp.Status == protocol.StatusError {
		msg := resp.Error
		if msg == "" {
			msg = "unknown bridge error"
		}
		errorsTotal.WithLabelValues(errClassRemote).Inc()
		requestsTotal.WithLabelValues(commandName, "remote_error").Inc()
		c.logger.Error().Str("command", commandName).Str("error", msg).Msg("Bridge reported error")
		return nil, &RemoteError{Message: msg}
	}

	result := resp.Result
	if result == nil {
		result = map[string]any{}
	}

	requestsTotal.WithLabelValues(commandName, "success").Inc()
	return c.divertIfLarge(commandName, params, result), nil
}

// divertIfLarge stores an oversized successful data payload in the
// cache and returns a small reference result in its place.
func (c *Connection) divertIfLarge(commandName string, params, result map[string]any) map[string]any {
	success, _ := result["success"].(bool)
	data, hasData := result["data"]
	if !success || !hasData || data == nil {
		return result
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		// Size estimate only; hand the result back untouched.
		return result
	}
	estimatedTokens := len(serialized) / c.cfg.BytesPerToken
	if estimatedTokens <= c.cfg.TokenThreshold {
		return result
	}

	cacheID, err := c.cfg.Cache.Store(data, map[string]any{
		"tool":             commandName,
		"params":           params,
		"size_bytes":       len(serialized),
		"estimated_tokens": estimatedTokens,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("command", commandName).Msg("Failed to cache large response")
		return result
	}

	cachedResponsesTotal.Inc()
	c.logger.Info().
		Str("command", commandName).
		Str("cache_id", cacheID).
		Int("estimated_tokens", estimatedTokens).
		Msg("Large response diverted into cache")

	return map[string]any{
		"success":  true,
		"cached":   true,
		"cache_id": cacheID,
		"message":  fmt.Sprintf("Response too large (%d tokens). Data has been cached.", estimatedTokens),
		"data": map[string]any{
			"cache_id":         cacheID,
			"size_kb":          len(serialized) / 1024,
			"estimated_tokens": estimatedTokens,
			"usage_hint":       "Use the fetch_cached_response command to retrieve the data",
		},
	}
}

// dropLocked invalidates the connection after a transport fault.
// Partial or garbled frames are not resumable, so the next send must
// reconnect.
func (c *Connection) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	dropsTotal.Inc()
	c.logger.Warn().Msg("Bridge connection dropped")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
