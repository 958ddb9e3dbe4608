package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Codec converts between model values and wire bytes. The engine treats
// bytes as opaque until they are handed to the codec, so any wire
// format can be plugged in per descriptor.
type Codec interface {
	// Encode serializes a body payload.
	Encode(v any) ([]byte, error)
	// Decode deserializes a response body into v, which must be a
	// pointer. Decoding an empty payload must succeed without touching
	// v, supporting endpoints that return no body on success.
	Decode(ctx context.Context, data []byte, v any) error
}

// JSONCodec is the default [Codec], backed by encoding/json.
type JSONCodec struct {
	// UseNumber preserves number precision as [json.Number] instead of
	// float64 when decoding into untyped destinations.
	UseNumber bool
}

func (c JSONCodec) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	return data, nil
}

func (c JSONCodec) Decode(_ context.Context, data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	d := json.NewDecoder(bytes.NewReader(data))
	if c.UseNumber {
		d.UseNumber()
	}

	if err := d.Decode(v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}

	return nil
}
