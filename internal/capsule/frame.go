package capsule

import (
	"bytes"
	"fmt"
	"io"
)

// Encode encodes a Capsule into bytes.
func Encode(cap *Capsule) ([]byte, error) {
	if cap == nil {
		return nil, fmt.Errorf("capsule is nil")
	}
	if uint64(len(cap.Value)) != cap.Length {
		return nil, fmt.Errorf("capsule length mismatch: Length=%d, Value=%d bytes", cap.Length, len(cap.Value))
	}

	var buf bytes.Buffer

	typeBytes, _ := EncodeVarint(uint64(cap.Type))
	buf.Write(typeBytes)

	lengthBytes, _ := EncodeVarint(cap.Length)
	buf.Write(lengthBytes)

	buf.Write(cap.Value)

	return buf.Bytes(), nil
}

// Decode decodes a single Capsule from an io.Reader.
//
// Decoders preserve the raw bytes of any type they don't recognize
// (capsule.Value is always populated verbatim), so a session can forward or
// re-encode an unknown capsule without understanding it — Encode writes it
// back out byte-for-byte.
func Decode(r io.Reader) (*Capsule, error) {
	capType, _, err := DecodeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode capsule type: %w", err)
	}

	length, _, err := DecodeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode capsule length: %w", err)
	}

	value := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("read capsule value (%d bytes): %w", length, err)
		}
	}

	return &Capsule{
		Type:   Type(capType),
		Length: length,
		Value:  value,
	}, nil
}
