package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Codec converts between JSON text and a generic value tree. The tree uses
// map[string]any for objects, []any for arrays, string, bool, nil, and
// json.Number for numbers so numeric precision survives a round trip.
//
// Deserialize must not panic on malformed input; it reports the failure as
// an error value which the wire parser turns into a -32700 response.
type Codec interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

type jsonCodec struct{}

// NewJSONCodec returns the default codec backed by encoding/json.
func NewJSONCodec() Codec { return jsonCodec{} }

func (jsonCodec) Serialize(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return b, nil
}

func (jsonCodec) Deserialize(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	// Trailing non-whitespace after the first value is malformed input.
	var trailing any
	if err := dec.Decode(&trailing); err == nil {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return v, nil
}

// bindParams converts a generic params value into a typed params struct.
// The field-name mapping between wire names and Go fields is carried by the
// struct's json tags, so a marshal/unmarshal round trip is the conversion.
func bindParams(params any, dst any) error {
	if params == nil {
		return nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	// Keep numbers as json.Number inside any-typed fields, matching the
	// value tree the wire parser produces.
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("failed to unmarshal params: %w", err)
	}
	return nil
}
