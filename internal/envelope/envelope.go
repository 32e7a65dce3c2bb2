// Package envelope implements the gateway's wire unit: a JSON object with a
// module name, an event type, and an opaque payload that is only interpreted
// by the handler that owns the module.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed reports a frame that could not be decoded into an Envelope.
var ErrMalformed = errors.New("malformed envelope")

// Envelope is one {module, type, payload} message exchanged over a connection.
type Envelope struct {
	Module  string  `json:"module"`
	Type    string  `json:"type"`
	Payload Payload `json:"payload"`
}

// Payload holds the raw JSON of an envelope payload. It is decoded lazily
// into a module-specific type by Decode.
type Payload json.RawMessage

// MarshalJSON emits the raw payload, or null when it is empty.
func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON stores a copy of the raw payload.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if p == nil {
		return errors.New("envelope: UnmarshalJSON on nil Payload")
	}
	*p = append((*p)[:0], data...)
	return nil
}

// Decode unmarshals the payload into v. A missing payload decodes as null.
func (p Payload) Decode(v any) error {
	raw := []byte(p)
	if len(raw) == 0 {
		raw = []byte("null")
	}
	return json.Unmarshal(raw, v)
}

// New builds an envelope, marshalling payload eagerly.
func New(module, typ string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s/%s payload: %w", module, typ, err)
	}
	return Envelope{Module: module, Type: typ, Payload: raw}, nil
}

// Decode parses one text frame. Unknown fields are ignored; a missing module
// or type is an error wrapping ErrMalformed. The payload is not inspected.
func Decode(raw []byte) (Envelope, error) {
	var wire struct {
		Module  *string `json:"module"`
		Type    *string `json:"type"`
		Payload Payload `json:"payload"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Module == nil {
		return Envelope{}, fmt.Errorf("%w: missing module", ErrMalformed)
	}
	if wire.Type == nil {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return Envelope{Module: *wire.Module, Type: *wire.Type, Payload: wire.Payload}, nil
}

// Encode renders an envelope as a text frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s/%s: %w", env.Module, env.Type, err)
	}
	return data, nil
}

// String is used in log lines.
func (e Envelope) String() string {
	return e.Module + "/" + e.Type
}
