package protocol

import (
	"encoding/json"
	"fmt"
)

// Envelope is one message on the wire.
type Envelope struct {
	Channel       Channel         `json:"channel"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope encodes payload onto channel. A nil payload encodes as {}.
func NewEnvelope(channel Channel, correlationID string, payload any) (Envelope, error) {
	env := Envelope{Channel: channel, CorrelationID: correlationID}
	if payload == nil {
		env.Payload = json.RawMessage("{}")
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", channel, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Channel, err)
	}
	return nil
}
