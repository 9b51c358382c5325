package capsule

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundtrip(t *testing.T) {
	values := []uint64{0, 1, 0x3F, 0x40, 1300, 0x3FFF, 0x4000, 0x3FFFFFFF, 0x40000000, 0x3FFFFFFFFFFFFFFF}
	for _, v := range values {
		encoded, n := EncodeVarint(v)
		assert.Len(t, encoded, n)

		decoded, read, err := DecodeVarint(bytes.NewReader(encoded))
		require.NoError(t, err)
		assert.Equal(t, n, read)
		assert.Equal(t, v, decoded)
	}
}

func TestFrameRoundtrip(t *testing.T) {
	in := &Capsule{Type: TypePing, Length: 3, Value: []byte{1, 2, 3}}

	encoded, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameRejectsLengthMismatch(t *testing.T) {
	_, err := Encode(&Capsule{Type: TypePing, Length: 5, Value: []byte{1, 2, 3}})
	assert.Error(t, err)
}

// TestFramePreservesUnknownType ensures a capsule whose type this binary
// doesn't recognize still round-trips byte-for-byte: a session must be able
// to decode, and later re-encode or forward, a capsule from a peer running a
// newer protocol revision.
func TestFramePreservesUnknownType(t *testing.T) {
	in := &Capsule{Type: Type(0xBEEF), Length: 4, Value: []byte("xxxx")}

	encoded, err := Encode(in)
	require.NoError(t, err)

	out, err := Decode(bytes.NewReader(encoded))
	require.NoError(t, err)
	assert.Equal(t, in, out)

	reencoded, err := Encode(out)
	require.NoError(t, err)
	assert.Equal(t, encoded, reencoded)
}

func TestReaderWriterRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	in := &Capsule{Type: TypeOpen, Length: 7, Value: []byte("payload")}
	require.NoError(t, w.WriteCapsule(in))

	r := NewReader(&buf)
	out, err := r.ReadCapsule()
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReaderReturnsEOFOnEmptyStream(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, err := r.ReadCapsule()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPingPongRoundtrip(t *testing.T) {
	ping := &Ping{Nonce: 42}
	cap, err := ping.Encode()
	require.NoError(t, err)
	decoded, err := DecodePing(cap)
	require.NoError(t, err)
	assert.Equal(t, ping, decoded)

	pong := &Pong{Nonce: 42}
	cap, err = pong.Encode()
	require.NoError(t, err)
	decodedPong, err := DecodePong(cap)
	require.NoError(t, err)
	assert.Equal(t, pong, decodedPong)

	_, err = DecodePong(&Capsule{Type: TypePing})
	assert.Error(t, err)
}

func TestOpenRoundtrip(t *testing.T) {
	open := &Open{TargetAddr: "example.internal:443"}
	cap, err := open.Encode()
	require.NoError(t, err)
	decoded, err := DecodeOpen(cap)
	require.NoError(t, err)
	assert.Equal(t, open, decoded)
}

func TestOpenOkRoundtrip(t *testing.T) {
	ok := &OpenOk{StreamID: 7}
	cap, err := ok.Encode()
	require.NoError(t, err)
	decoded, err := DecodeOpenOk(cap)
	require.NoError(t, err)
	assert.Equal(t, ok, decoded)
}

func TestOpenErrRoundtrip(t *testing.T) {
	oe := &OpenErr{Code: "policy-denied", Msg: "destination not allowed by policy"}
	cap, err := oe.Encode()
	require.NoError(t, err)
	decoded, err := DecodeOpenErr(cap)
	require.NoError(t, err)
	assert.Equal(t, oe, decoded)
}

func TestOpenErrRoundtripWithEmptyMessage(t *testing.T) {
	oe := &OpenErr{Code: "token.expired", Msg: ""}
	cap, err := oe.Encode()
	require.NoError(t, err)
	decoded, err := DecodeOpenErr(cap)
	require.NoError(t, err)
	assert.Equal(t, oe, decoded)
}

func TestCloseRoundtrip(t *testing.T) {
	c := &Close{StreamID: 3, Reason: "peer-closed"}
	cap, err := c.Encode()
	require.NoError(t, err)
	decoded, err := DecodeClose(cap)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestCloseRoundtripWholeConnection(t *testing.T) {
	c := &Close{StreamID: 0, Reason: "shutdown"}
	cap, err := c.Encode()
	require.NoError(t, err)
	decoded, err := DecodeClose(cap)
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeRejectsWrongType(t *testing.T) {
	cap := &Capsule{Type: TypeClose}
	_, err := DecodeOpen(cap)
	assert.Error(t, err)
}
