package fanout

import (
	"encoding/json"

	"whatsbridge/internal/domain"
)

// Event names on the wire.
const (
	EventHistory      = "history"
	EventMessage      = "message"
	EventQR           = "qr"
	EventReady        = "ready"
	EventAuthFailure  = "auth_failure"
	EventDisconnected = "disconnected"
	EventState        = "state"
	EventSendResult   = "sendResult"

	// client to server
	EventSendMessage = "sendMessage"
)

// Envelope is the JSON frame for every event in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ReasonPayload struct {
	Reason string `json:"reason"`
}

type StatePayload struct {
	State domain.ConnectionState `json:"state"`
	Since int64                  `json:"since,omitempty"` // unix millis of the transition
}

// SendRequest is the payload of a client's sendMessage event.
type SendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendResult reports the outcome of a SendRequest to the client that made it.
type SendResult struct {
	To       string `json:"to"`
	OK       bool   `json:"ok"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// encode builds a frame. A nil data produces an event with no payload.
func encode(eventType string, data any) ([]byte, error) {
	env := Envelope{Type: eventType}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		env.Data = raw
	}
	return json.Marshal(env)
}
