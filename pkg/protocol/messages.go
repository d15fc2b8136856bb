// ABOUTME: Bridge protocol message type definitions
// ABOUTME: JSON envelope plus discover request, result and error payloads
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/aaxion/aaxion-discovery/pkg/discovery"
)

// Path is the websocket endpoint served by the bridge
const Path = "/aaxion"

// Message types
const (
	TypeDiscover = "client/discover"
	TypeServers  = "server/servers"
	TypeError    = "server/error"
)

// Error codes carried by server/error
const (
	CodeDaemonUnavailable  = "daemon_unavailable"
	CodeSubscriptionFailed = "subscription_failed"
	CodeBadRequest         = "bad_request"
	CodeInternal           = "internal"
)

// Message is the top-level wrapper for all protocol messages. ID pairs a
// reply with its request.
type Message struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Decode unmarshals the payload into v
func (m Message) Decode(v interface{}) error {
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", m.Type, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s payload: %w", m.Type, err)
	}
	return nil
}

// DiscoverResult is the server/servers payload
type DiscoverResult struct {
	Servers   []discovery.ServiceRecord `json:"servers"`
	ElapsedMs int64                     `json:"elapsed_ms"`
}

// ErrorPayload is the server/error payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns the remote error as a Go error
func (e ErrorPayload) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
