// Package capsule implements Toppy's tunnel control-stream wire format: a
// QUIC-varint-framed capsule (type, length, value), adapted from the
// teacher's RFC 9297 implementation in pkg/capsule.
package capsule

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EncodeVarint encodes a uint64 as a QUIC variable-length integer.
// RFC 9000 Section 16.
func EncodeVarint(value uint64) ([]byte, int) {
	switch {
	case value <= 0x3F:
		return []byte{byte(value)}, 1

	case value <= 0x3FFF:
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(value)|0x4000)
		return buf, 2

	case value <= 0x3FFFFFFF:
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(value)|0x80000000)
		return buf, 4

	default:
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, value|0xC000000000000000)
		return buf, 8
	}
}

// DecodeVarint decodes a QUIC variable-length integer from an io.Reader.
func DecodeVarint(r io.Reader) (uint64, int, error) {
	firstByte := make([]byte, 1)
	if _, err := io.ReadFull(r, firstByte); err != nil {
		return 0, 0, fmt.Errorf("read first byte: %w", err)
	}

	prefix := firstByte[0] >> 6

	switch prefix {
	case 0x00:
		return uint64(firstByte[0] & 0x3F), 1, nil

	case 0x01:
		buf := make([]byte, 2)
		buf[0] = firstByte[0]
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return 0, 1, fmt.Errorf("read 2-byte varint: %w", err)
		}
		value := binary.BigEndian.Uint16(buf) & 0x3FFF
		return uint64(value), 2, nil

	case 0x02:
		buf := make([]byte, 4)
		buf[0] = firstByte[0]
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return 0, 1, fmt.Errorf("read 4-byte varint: %w", err)
		}
		value := binary.BigEndian.Uint32(buf) & 0x3FFFFFFF
		return uint64(value), 4, nil

	case 0x03:
		buf := make([]byte, 8)
		buf[0] = firstByte[0]
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return 0, 1, fmt.Errorf("read 8-byte varint: %w", err)
		}
		value := binary.BigEndian.Uint64(buf) & 0x3FFFFFFFFFFFFFFF
		return value, 8, nil

	default:
		return 0, 1, fmt.Errorf("invalid varint prefix: %d", prefix)
	}
}
