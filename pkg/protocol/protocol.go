// Package protocol implements the wire protocol spoken with the Unity
// editor bridge: UTF-8 JSON envelopes over a raw TCP stream with no
// length prefix. Completeness of a response is detected by attempting
// to parse the accumulated bytes as a JSON document after every read.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

var (
	// ErrConnectionClosed indicates the stream closed before any data
	// arrived for the current response.
	ErrConnectionClosed = errors.New("protocol: connection closed before receiving data")

	// ErrTimeout indicates no complete response was assembled within
	// the read timeout.
	ErrTimeout = errors.New("protocol: timeout receiving response")

	// ErrFrameTooLarge indicates the accumulated response exceeded
	// MaxFrameSize without parsing as a complete document.
	ErrFrameTooLarge = errors.New("protocol: response frame too large")
)

const (
	// DefaultBufferSize is the per-read chunk size used when no hint
	// is given.
	DefaultBufferSize = 16 * 1024

	// MaxFrameSize bounds a single response frame. The
	// attempt-to-parse framing cannot distinguish a truncated document
	// from one that never terminates, so reads past this limit fail
	// instead of accumulating forever.
	MaxFrameSize = 64 << 20
)

// PingProbe is the literal keepalive probe payload. It is sent bare,
// not wrapped in the request envelope.
var PingProbe = []byte("ping")

// pongPrefix is the fixed start of the keepalive success body. It is
// matched as a prefix rather than fully parsed: the pong reply is
// always exactly one message.
var pongPrefix = []byte(`{"status":"success","result":{"message":"pong"`)

// IsPong reports whether the buffer starts with the keepalive success
// marker.
func IsPong(buf []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(buf), pongPrefix)
}

// ReadResponse reads one complete response frame from conn.
//
// Bytes are read in chunks of up to bufferSize and accumulated. After
// each read the accumulated bytes are checked for completeness: the
// keepalive pong prefix short-circuits immediately, otherwise the
// buffer must parse as a complete JSON document. A stream that closes
// mid-response yields whatever was accumulated; a stream that closes
// before any data arrived yields ErrConnectionClosed. The whole call
// is bounded by timeout, surfacing ErrTimeout.
func ReadResponse(conn net.Conn, bufferSize int, timeout time.Duration) ([]byte, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	var acc []byte
	chunk := make([]byte, bufferSize)
	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			acc = append(acc, chunk[:n]...)
			if len(acc) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
			if isCompleteResponse(acc) {
				return acc, nil
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				if len(acc) == 0 {
					return nil, ErrConnectionClosed
				}
				// Stream ended mid-frame: what we have is final.
				return acc, nil
			case isTimeout(err):
				return nil, fmt.Errorf("%w after %s", ErrTimeout, timeout)
			case len(acc) == 0:
				return nil, fmt.Errorf("%w: %v", ErrConnectionClosed, err)
			default:
				return nil, fmt.Errorf("read response: %w", err)
			}
		}
	}
}

// isCompleteResponse reports whether buf holds a full response frame.
// A partially received frame with an embedded "content" text field may
// contain escaped quotes that make a naive parse misidentify the
// terminating quote, so when the raw bytes do not validate the check
// is retried with those quotes unescaped. The caller always receives
// the raw accumulated bytes, never the normalized form.
func isCompleteResponse(buf []byte) bool {
	if IsPong(buf) {
		return true
	}
	if json.Valid(buf) {
		return true
	}
	if bytes.Contains(buf, contentKey) {
		return json.Valid(normalizeContentQuotes(buf))
	}
	return false
}

var contentKey = []byte(`"content":`)

// normalizeContentQuotes unescapes quotes inside the value of an
// embedded "content" field. The field value is taken to span from the
// first byte after the key to the last quote in the buffer.
func normalizeContentQuotes(buf []byte) []byte {
	start := bytes.Index(buf, contentKey)
	if start < 0 {
		return buf
	}
	start += len(contentKey)
	end := bytes.LastIndexByte(buf, '"')
	if end <= start {
		return buf
	}

	fixed := make([]byte, 0, len(buf))
	fixed = append(fixed, buf[:start]...)
	fixed = append(fixed, bytes.ReplaceAll(buf[start:end], []byte(`\"`), []byte(`"`))...)
	fixed = append(fixed, buf[end:]...)
	return fixed
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
