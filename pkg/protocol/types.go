package protocol

import (
	"encoding/json"
	"fmt"
)

// Response status values reported by the bridge.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is the command envelope sent to the bridge.
type Request struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params"`
}

// Response is the envelope the bridge answers with. Result carries the
// command outcome on success; Error carries a human-readable message
// when Status is "error".
type Response struct {
	Status string         `json:"status"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// EncodeRequest serializes a command envelope. A nil params map is
// encoded as an empty object, which is what the bridge expects.
func EncodeRequest(commandName string, params map[string]any) ([]byte, error) {
	if params == nil {
		params = map[string]any{}
	}
	payload, err := json.Marshal(Request{Type: commandName, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode request %q: %w", commandName, err)
	}
	return payload, nil
}
