package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors
var (
	ErrMissingEvent = errors.New("message has no event or type field")
	ErrEmptyMessage = errors.New("empty message")
)

// Envelope is the wire shape shared by both transports.
// Type is accepted as an alias for Event on inbound messages.
type Envelope struct {
	Event string          `json:"event,omitempty"`
	Type  string          `json:"type,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded inbound message.
type Event struct {
	Name string          // Lookup key, e.g. "roomUpdate:42"
	Data json.RawMessage // Payload; the whole message when no data field was sent
}

// Decode parses a raw message into an Event.
func Decode(raw []byte) (Event, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Event{}, ErrEmptyMessage
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	name := env.Event
	if name == "" {
		name = env.Type
	}
	if name == "" {
		return Event{}, ErrMissingEvent
	}

	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage(append([]byte(nil), raw...))
	}

	return Event{Name: name, Data: data}, nil
}

// Encode builds an outbound {event, data} frame. A nil data omits the field.
func Encode(name string, data any) ([]byte, error) {
	frame := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{
		Event: name,
		Data:  data,
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return b, nil
}

// Key composes a topic-scoped event key.
func Key(name, topic string) string {
	if topic == "" {
		return name
	}
	return name + ":" + topic
}

// SplitKey splits a key on its last colon. ok is false for keys without a
// topic suffix.
func SplitKey(key string) (name, topic string, ok bool) {
	i := strings.LastIndexByte(key, ':')
	if i <= 0 || i == len(key)-1 {
		return key, "", false
	}
	return key[:i], key[i+1:], true
}
