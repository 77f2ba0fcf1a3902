package domain

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// EventConnected is sent to every client right after the websocket upgrade.
const EventConnected = "connected"

// ConnectedMessage is the payload message of the greeting envelope.
const ConnectedMessage = "Connected to tournament WebSocket server"

// Envelope is the unit of broadcastable data. Payload is kept as raw JSON so
// the hub relays it without interpreting tournament data.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope builds an envelope from an arbitrary payload value.
func NewEnvelope(event string, payload any) (Envelope, error) {
	if event == "" {
		return Envelope{}, fmt.Errorf("%w: empty event", ErrInvalidEnvelope)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: marshal payload: %w", ErrInvalidEnvelope, err)
	}
	return Envelope{Event: event, Payload: data}, nil
}

// ConnectedEnvelope is the greeting each client receives first.
func ConnectedEnvelope() Envelope {
	env, _ := NewEnvelope(EventConnected, map[string]string{"message": ConnectedMessage})
	return env
}

// DecodeEnvelope parses wire or spool bytes. Anything that is not a JSON
// object with a non-empty string "event" is rejected as a whole, and so is
// invalid UTF-8, which browsers treat as a fatal text frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if !utf8.Valid(data) {
		return Envelope{}, fmt.Errorf("%w: invalid UTF-8", ErrInvalidEnvelope)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrInvalidEnvelope)
	}
	if len(env.Payload) == 0 {
		env.Payload = json.RawMessage("null")
	}
	return env, nil
}

// Encode serializes the envelope in wire format.
func (e Envelope) Encode() ([]byte, error) {
	if e.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrInvalidEnvelope)
	}
	out := e
	if len(out.Payload) == 0 {
		out.Payload = json.RawMessage("null")
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}
