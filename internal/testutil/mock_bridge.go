// Package testutil provides testing utilities for the bridge client.
package testutil

import (
	"bytes"
	"encoding/json"
	"net"
	"sync"
	"time"
)

// PongBody is the fixed keepalive success reply the mock sends for a
// bare "ping" probe.
var PongBody = []byte(`{"status":"success","result":{"message":"pong"}}`)

// HandlerFunc produces the raw response bytes for one received
// command request.
type HandlerFunc func(commandName string, params map[string]any) []byte

// MockBridge is a configurable in-process stand-in for the Unity-side
// bridge host: a TCP listener speaking the JSON envelope, with
// per-command handlers and optional chunked or delayed writes for
// framing tests.
type MockBridge struct {
	listener net.Listener

	mu         sync.Mutex
	handlers   map[string]HandlerFunc
	chunkSize  int
	chunkDelay time.Duration
	closed     bool

	// Tracking
	RequestCount int
	PingCount    int
	LastCommand  string
}

// NewMockBridge starts a mock bridge on an ephemeral localhost port.
func NewMockBridge() (*MockBridge, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	m := &MockBridge{
		listener: listener,
		handlers: make(map[string]HandlerFunc),
	}
	go m.acceptLoop()
	return m, nil
}

// Addr returns the host and port the mock listens on.
func (m *MockBridge) Addr() (string, int) {
	addr := m.listener.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

// Close shuts down the listener. Established connections are closed
// as their serve loops notice.
func (m *MockBridge) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.listener.Close()
}

// SetHandler installs a handler for a command name.
func (m *MockBridge) SetHandler(commandName string, fn HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[commandName] = fn
}

// SetResponse installs a fixed envelope response for a command name.
func (m *MockBridge) SetResponse(commandName string, status string, result any, errMsg string) {
	m.SetHandler(commandName, func(string, map[string]any) []byte {
		body := map[string]any{"status": status}
		if result != nil {
			body["result"] = result
		}
		if errMsg != "" {
			body["error"] = errMsg
		}
		raw, _ := json.Marshal(body)
		return raw
	})
}

// SetRawResponse installs a handler that replies with exactly the
// given bytes, valid JSON or not.
func (m *MockBridge) SetRawResponse(commandName string, raw []byte) {
	m.SetHandler(commandName, func(string, map[string]any) []byte {
		return raw
	})
}

// SetChunking makes every response get written in chunks of size
// bytes with delay between them, simulating slow irregular frames. A
// size of 0 restores single-write responses.
func (m *MockBridge) SetChunking(size int, delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkSize = size
	m.chunkDelay = delay
}

// Reset clears tracking counters.
func (m *MockBridge) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.PingCount = 0
	m.LastCommand = ""
}

// Requests returns the number of command requests served (keepalive
// probes excluded).
func (m *MockBridge) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// Pings returns the number of keepalive probes served.
func (m *MockBridge) Pings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PingCount
}

func (m *MockBridge) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.serve(conn)
	}
}

func (m *MockBridge) serve(conn net.Conn) {
	defer conn.Close()
	for {
		raw, isPing, err := readRequest(conn)
		if err != nil {
			return
		}

		if isPing {
			m.mu.Lock()
			m.PingCount++
			m.mu.Unlock()
			if err := m.write(conn, PongBody); err != nil {
				return
			}
			continue
		}

		var req struct {
			Type   string         `json:"type"`
			Params map[string]any `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return
		}

		m.mu.Lock()
		m.RequestCount++
		m.LastCommand = req.Type
		handler := m.handlers[req.Type]
		m.mu.Unlock()

		var resp []byte
		if handler != nil {
			resp = handler(req.Type, req.Params)
		} else {
			resp = defaultResponse(req.Type)
		}
		if err := m.write(conn, resp); err != nil {
			return
		}
	}
}

// readRequest accumulates bytes until they form the bare ping probe or
// a complete JSON request.
func readRequest(conn net.Conn) ([]byte, bool, error) {
	var acc []byte
	chunk := make([]byte, 4096)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
			if bytes.Equal(acc, []byte("ping")) {
				return nil, true, nil
			}
			if json.Valid(acc) {
				return acc, false, nil
			}
		}
		if err != nil {
			return nil, false, err
		}
	}
}

func (m *MockBridge) write(conn net.Conn, resp []byte) error {
	m.mu.Lock()
	size := m.chunkSize
	delay := m.chunkDelay
	m.mu.Unlock()

	if size <= 0 {
		_, err := conn.Write(resp)
		return err
	}

	for off := 0; off < len(resp); off += size {
		end := off + size
		if end > len(resp) {
			end = len(resp)
		}
		if _, err := conn.Write(resp[off:end]); err != nil {
			return err
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

func defaultResponse(commandName string) []byte {
	raw, _ := json.Marshal(map[string]any{
		"status": "success",
		"result": map[string]any{
			"success": true,
			"message": "ok",
			"data":    map[string]any{"command": commandName},
		},
	})
	return raw
}
