package capsule

import (
	"bytes"
	"fmt"
	"io"
)

// Ping{nonce} / Pong{nonce} — liveness probe exchanged on the control
// stream, used by doctor's h3.connect check (tunnel.Probe).
type Ping struct {
	Nonce uint64
}

func (p *Ping) Encode() (*Capsule, error) {
	value, _ := EncodeVarint(p.Nonce)
	return &Capsule{Type: TypePing, Length: uint64(len(value)), Value: value}, nil
}

func DecodePing(cap *Capsule) (*Ping, error) {
	if cap.Type != TypePing {
		return nil, fmt.Errorf("expected PING (type %d), got type %d", TypePing, cap.Type)
	}
	nonce, _, err := DecodeVarint(bytes.NewReader(cap.Value))
	if err != nil {
		return nil, fmt.Errorf("decode ping nonce: %w", err)
	}
	return &Ping{Nonce: nonce}, nil
}

type Pong struct {
	Nonce uint64
}

func (p *Pong) Encode() (*Capsule, error) {
	value, _ := EncodeVarint(p.Nonce)
	return &Capsule{Type: TypePong, Length: uint64(len(value)), Value: value}, nil
}

func DecodePong(cap *Capsule) (*Pong, error) {
	if cap.Type != TypePong {
		return nil, fmt.Errorf("expected PONG (type %d), got type %d", TypePong, cap.Type)
	}
	nonce, _, err := DecodeVarint(bytes.NewReader(cap.Value))
	if err != nil {
		return nil, fmt.Errorf("decode pong nonce: %w", err)
	}
	return &Pong{Nonce: nonce}, nil
}

// Open{target_addr} — request to open a logical stream to target_addr
// ("host:port"), sent after the control stream is ready.
type Open struct {
	TargetAddr string
}

func (o *Open) Encode() (*Capsule, error) {
	value := []byte(o.TargetAddr)
	return &Capsule{Type: TypeOpen, Length: uint64(len(value)), Value: value}, nil
}

func DecodeOpen(cap *Capsule) (*Open, error) {
	if cap.Type != TypeOpen {
		return nil, fmt.Errorf("expected OPEN (type %d), got type %d", TypeOpen, cap.Type)
	}
	return &Open{TargetAddr: string(cap.Value)}, nil
}

// OpenOk{stream_id} — the gateway's affirmative reply to Open.
type OpenOk struct {
	StreamID uint64
}

func (o *OpenOk) Encode() (*Capsule, error) {
	value, _ := EncodeVarint(o.StreamID)
	return &Capsule{Type: TypeOpenOk, Length: uint64(len(value)), Value: value}, nil
}

func DecodeOpenOk(cap *Capsule) (*OpenOk, error) {
	if cap.Type != TypeOpenOk {
		return nil, fmt.Errorf("expected OPEN_OK (type %d), got type %d", TypeOpenOk, cap.Type)
	}
	id, _, err := DecodeVarint(bytes.NewReader(cap.Value))
	if err != nil {
		return nil, fmt.Errorf("decode open-ok stream id: %w", err)
	}
	return &OpenOk{StreamID: id}, nil
}

// OpenErr{code, msg} — the gateway's negative reply to Open. Code is a
// stable machine-readable reason (e.g. "policy-denied"); Msg is a
// human-readable detail.
type OpenErr struct {
	Code string
	Msg  string
}

func (o *OpenErr) Encode() (*Capsule, error) {
	var buf bytes.Buffer
	codeBytes := []byte(o.Code)
	lenBytes, _ := EncodeVarint(uint64(len(codeBytes)))
	buf.Write(lenBytes)
	buf.Write(codeBytes)
	buf.WriteString(o.Msg)
	return &Capsule{Type: TypeOpenErr, Length: uint64(buf.Len()), Value: buf.Bytes()}, nil
}

func DecodeOpenErr(cap *Capsule) (*OpenErr, error) {
	if cap.Type != TypeOpenErr {
		return nil, fmt.Errorf("expected OPEN_ERR (type %d), got type %d", TypeOpenErr, cap.Type)
	}
	r := bytes.NewReader(cap.Value)
	codeLen, _, err := DecodeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode open-err code length: %w", err)
	}
	codeBytes := make([]byte, codeLen)
	if _, err := io.ReadFull(r, codeBytes); err != nil {
		return nil, fmt.Errorf("read open-err code: %w", err)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read open-err message: %w", err)
	}
	return &OpenErr{Code: string(codeBytes), Msg: string(rest)}, nil
}

// Close{stream_id, reason} — graceful teardown of a single logical stream
// or, with stream_id 0, the whole tunnel connection.
type Close struct {
	StreamID uint64
	Reason   string
}

func (c *Close) Encode() (*Capsule, error) {
	var buf bytes.Buffer
	idBytes, _ := EncodeVarint(c.StreamID)
	buf.Write(idBytes)
	buf.WriteString(c.Reason)
	return &Capsule{Type: TypeClose, Length: uint64(buf.Len()), Value: buf.Bytes()}, nil
}

func DecodeClose(cap *Capsule) (*Close, error) {
	if cap.Type != TypeClose {
		return nil, fmt.Errorf("expected CLOSE (type %d), got type %d", TypeClose, cap.Type)
	}
	r := bytes.NewReader(cap.Value)
	id, _, err := DecodeVarint(r)
	if err != nil {
		return nil, fmt.Errorf("decode close stream id: %w", err)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read close reason: %w", err)
	}
	return &Close{StreamID: id, Reason: string(rest)}, nil
}
