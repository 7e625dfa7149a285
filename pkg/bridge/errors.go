package bridge

import (
	"errors"
	"fmt"
)

// Common errors returned by the connection layer.
var (
	// ErrNotConnected is returned when a send cannot establish a
	// connection to the bridge.
	ErrNotConnected = errors.New("not connected to bridge")

	// ErrConnectTimeout is returned when the bridge does not accept
	// the connection within the connect timeout.
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConnectionRefused is returned when the bridge actively
	// refuses the connection.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrVerificationFailed is returned when the keepalive probe does
	// not produce the expected pong reply.
	ErrVerificationFailed = errors.New("connection verification failed")

	// ErrInvalidResponse is returned when the bridge's response bytes
	// do not deserialize into the response envelope.
	ErrInvalidResponse = errors.New("invalid response from bridge")
)

// RemoteError is a failure the bridge itself reported: the frame was
// well-formed, the host rejected the command. The connection stays
// usable.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge error: %s", e.Message)
}

// CommunicationError is any I/O fault while exchanging a command. It
// always invalidates the connection; the caller is expected to retry,
// which triggers reconnection.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("bridge communication failed during %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}
