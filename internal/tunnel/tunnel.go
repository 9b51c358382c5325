// Package tunnel implements Toppy's client-side half of the authenticated
// HTTP/3 MASQUE-style tunnel: a Dialer resolves the gateway and dials QUIC
// with ALPN h3 once, then OpenStream presents a bearer token and exchanges
// Open/OpenOk/OpenErr capsules on a fresh, independently multiplexed HTTP/3
// request for each logical stream.
//
// Grounded on the teacher's agent/main.go HTTP/3 client-transport setup
// (http3.Transport, mTLS cert loading), generalized from mTLS client-cert
// auth to bearer/JWT auth, and from a single-stream connection to a Dialer
// multiplexing many logical streams per spec.md §4.3.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/quic-go/quic-go/http3"

	"github.com/toppy-project/toppy/internal/capsule"
	"github.com/toppy-project/toppy/internal/config"
)

// HandshakeTimeout bounds DNS resolution of the gateway in resolveGateway.
// The QUIC/HTTP3 handshake in OpenStream and Probe is not bounded by this
// constant.
const HandshakeTimeout = 5 * time.Second

// ReasonHeader carries a machine-readable rejection reason on a
// non-2xx CONNECT response, so the client can distinguish token.invalid
// from token.expired without parsing prose.
const ReasonHeader = "X-Toppy-Reason"

// Conn is one logical stream within a Dialer's tunnel: its own
// Extended-CONNECT request/response pair, multiplexed by http3.RoundTripper
// over the Dialer's single underlying QUIC connection per spec.md §4.3
// ("for each accepted connection … a newly opened logical stream"). Callers
// relay bytes directly over it via Read/Write once OpenStream succeeds.
type Conn struct {
	resp       *http.Response
	bodyWriter io.WriteCloser

	reader *capsule.Reader
	writer *capsule.Writer

	TargetAddr string
	StreamID   uint64
}

// Read reads relayed bytes from the gateway.
func (c *Conn) Read(p []byte) (int, error) { return c.resp.Body.Read(p) }

// Write writes relayed bytes to the gateway.
func (c *Conn) Write(p []byte) (int, error) { return c.bodyWriter.Write(p) }

// Close sends a Close capsule for this stream and tears down this stream's
// request/response body only — the Dialer's shared transport, and any other
// logical stream multiplexed over it, are unaffected. Errors sending Close
// are not fatal — the body is closed regardless.
func (c *Conn) Close(reason string) error {
	closeCap, _ := (&capsule.Close{StreamID: c.StreamID, Reason: reason}).Encode()
	_ = c.writer.WriteCapsule(closeCap)

	bodyErr := c.bodyWriter.Close()
	respErr := c.resp.Body.Close()

	if respErr != nil {
		return fmt.Errorf("close response body: %w", respErr)
	}
	return bodyErr
}

// resolveGateway performs the explicit DNS step spec.md §4.2 calls out
// before dialing; a resolver failure is fatal and not retried.
func resolveGateway(ctx context.Context, host string) error {
	if net.ParseIP(host) != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()
	if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
		return newConnectError(KindDNSFailure, fmt.Sprintf("dns: resolve %s: %v", host, err), err)
	}
	return nil
}

func newTransport(cfg *config.Config) (*http3.RoundTripper, error) {
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, newConnectError(KindCertInvalid, fmt.Sprintf("cert: %v", err), err)
	}
	return &http3.RoundTripper{TLSClientConfig: tlsConfig}, nil
}

func connectRequest(ctx context.Context, cfg *config.Config) (*http.Request, *io.PipeWriter, error) {
	url := fmt.Sprintf("https://%s:%d/tunnel", cfg.Gateway, cfg.Port)
	pr, pw := io.Pipe()

	req, err := http.NewRequestWithContext(ctx, http.MethodConnect, url, pr)
	if err != nil {
		return nil, nil, fmt.Errorf("build connect request: %w", err)
	}
	req.Header.Set("Protocol", "toppy-tunnel")
	if cfg.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.AuthToken)
	}
	return req, pw, nil
}

// classifyRejection turns a non-2xx CONNECT response into the token
// taxonomy spec.md §4.2/§7 names.
func classifyRejection(resp *http.Response) *ConnectError {
	reason := resp.Header.Get(ReasonHeader)
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if reason == "token.expired" {
			return newConnectError(KindTokenExpired, "token: credential expired", nil)
		}
		return newConnectError(KindTokenInvalid, "token: missing or invalid credential", nil)
	case http.StatusForbidden:
		return newConnectError(KindPolicyDenied, "policy: target not allowed", nil)
	default:
		return newConnectError(KindHandshakeFail, fmt.Sprintf("unexpected status %s", resp.Status), nil)
	}
}

// Dialer owns the one underlying QUIC/HTTP3 connection to a gateway.
// http3.RoundTripper dials and caches that connection on first use and
// multiplexes every subsequent Extended-CONNECT request as its own QUIC
// stream over it, so OpenStream can be called repeatedly — once per locally
// accepted connection, per spec.md §4.3 — without coalescing their bytes
// onto a single shared stream.
type Dialer struct {
	cfg       *config.Config
	transport *http3.RoundTripper
}

// NewDialer resolves the gateway and builds the shared transport used by
// every subsequent OpenStream call. It does not itself open a stream.
func NewDialer(ctx context.Context, cfg *config.Config) (*Dialer, error) {
	if err := resolveGateway(ctx, cfg.Gateway); err != nil {
		return nil, err
	}
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Dialer{cfg: cfg, transport: transport}, nil
}

// Close tears down the shared transport and, with it, every logical stream
// still multiplexed over it. Call this once, when the session is done with
// the gateway entirely — not per stream.
func (d *Dialer) Close() error {
	return d.transport.Close()
}

// OpenStream performs spec.md §4.2's handshake on a fresh HTTP/3 request —
// authenticate, then Open{target} and await OpenOk/OpenErr — reusing the
// Dialer's shared transport so this stream is multiplexed alongside any
// other concurrently open stream rather than dialing a new connection.
func (d *Dialer) OpenStream(ctx context.Context, targetAddr string) (*Conn, error) {
	req, pw, err := connectRequest(ctx, d.cfg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Transport: d.transport}

	resp, err := client.Do(req)
	if err != nil {
		if tlsErr := classifyTLSError(err); tlsErr != nil {
			return nil, tlsErr
		}
		return nil, newConnectError(KindHandshakeFail, fmt.Sprintf("h3 connect failed: %v", err), err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, classifyRejection(resp)
	}

	writer := capsule.NewWriter(pw)
	reader := capsule.NewReader(resp.Body)

	openCap, err := (&capsule.Open{TargetAddr: targetAddr}).Encode()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("encode open capsule: %w", err)
	}
	if err := writer.WriteCapsule(openCap); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("send open capsule: %w", err)
	}

	reply, err := reader.ReadCapsule()
	if err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("read open reply: %w", err)
	}

	switch reply.Type {
	case capsule.TypeOpenOk:
		ok, err := capsule.DecodeOpenOk(reply)
		if err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("decode open-ok: %w", err)
		}
		return &Conn{
			resp:       resp,
			bodyWriter: pw,
			reader:     reader,
			writer:     writer,
			TargetAddr: targetAddr,
			StreamID:   ok.StreamID,
		}, nil

	case capsule.TypeOpenErr:
		resp.Body.Close()
		openErr, err := capsule.DecodeOpenErr(reply)
		if err != nil {
			return nil, fmt.Errorf("decode open-err: %w", err)
		}
		if openErr.Code == "policy-denied" {
			return nil, newConnectError(KindPolicyDenied, fmt.Sprintf("target not allowed: %s", openErr.Msg), nil)
		}
		return nil, newConnectError(KindHandshakeFail, fmt.Sprintf("open rejected (%s): %s", openErr.Code, openErr.Msg), nil)

	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected capsule type %d in open reply", reply.Type)
	}
}

// ProbeResult is the outcome of a Ping/Pong liveness probe, used by the
// doctor engine's h3.connect check.
type ProbeResult struct {
	Nonce uint64
}

// Probe dials the gateway, completes the handshake and authentication, and
// exchanges a single Ping/Pong, without opening a target stream. Used by
// internal/doctor's h3.connect check.
func Probe(ctx context.Context, cfg *config.Config) (*ProbeResult, error) {
	if err := resolveGateway(ctx, cfg.Gateway); err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	defer transport.Close()

	req, pw, err := connectRequest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Transport: transport}
	resp, err := client.Do(req)
	if err != nil {
		if tlsErr := classifyTLSError(err); tlsErr != nil {
			return nil, tlsErr
		}
		return nil, newConnectError(KindHandshakeFail, fmt.Sprintf("h3 connect failed: %v", err), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyRejection(resp)
	}

	writer := capsule.NewWriter(pw)
	reader := capsule.NewReader(resp.Body)

	const nonce = 1
	pingCap, err := (&capsule.Ping{Nonce: nonce}).Encode()
	if err != nil {
		return nil, fmt.Errorf("encode ping: %w", err)
	}
	if err := writer.WriteCapsule(pingCap); err != nil {
		return nil, fmt.Errorf("send ping: %w", err)
	}

	reply, err := reader.ReadCapsule()
	if err != nil {
		return nil, fmt.Errorf("read pong: %w", err)
	}
	pong, err := capsule.DecodePong(reply)
	if err != nil {
		return nil, fmt.Errorf("decode pong: %w", err)
	}
	if pong.Nonce != nonce {
		return nil, fmt.Errorf("pong nonce mismatch: sent %d, got %d", nonce, pong.Nonce)
	}

	_ = pw.Close()
	return &ProbeResult{Nonce: pong.Nonce}, nil
}
