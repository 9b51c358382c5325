package gateway

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toppy-project/toppy/internal/audit"
	"github.com/toppy-project/toppy/internal/capsule"
	"github.com/toppy-project/toppy/internal/policy"
)

func connectRequest(t *testing.T, token string, capsules ...*capsule.Capsule) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	for _, cap := range capsules {
		encoded, err := capsule.Encode(cap)
		require.NoError(t, err)
		buf.Write(encoded)
	}

	req := httptest.NewRequest(http.MethodConnect, "https://gateway.example/tunnel", io.NopCloser(&buf))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func readCapsules(t *testing.T, body []byte) []*capsule.Capsule {
	t.Helper()
	var out []*capsule.Capsule
	r := bytes.NewReader(body)
	for {
		cap, err := capsule.Decode(r)
		if err != nil {
			break
		}
		out = append(out, cap)
	}
	return out
}

func newTestLogger(t *testing.T) *audit.Logger {
	t.Helper()
	chain, err := audit.OpenChain(t.TempDir() + "/audit.jsonl")
	require.NoError(t, err)
	t.Cleanup(func() { chain.Close() })
	return audit.NewLogger(chain, nil)
}

func TestServeHTTPRejectsMissingToken(t *testing.T) {
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, nil, newTestLogger(t), nil, RateLimit{})
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, connectRequest(t, ""))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "token.invalid", rec.Header().Get("X-Toppy-Reason"))
}

func TestServeHTTPRejectsWrongMethod(t *testing.T) {
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, nil, newTestLogger(t), nil, RateLimit{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "https://gateway.example/tunnel", nil)
	s.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTPEchoesPong(t *testing.T) {
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, nil, newTestLogger(t), nil, RateLimit{})
	ping, err := (&capsule.Ping{Nonce: 42}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, connectRequest(t, "s3cret", ping))

	assert.Equal(t, http.StatusOK, rec.Code)
	caps := readCapsules(t, rec.Body.Bytes())
	require.Len(t, caps, 1)
	pong, err := capsule.DecodePong(caps[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(42), pong.Nonce)
}

func TestServeHTTPOpenAllowedByPolicy(t *testing.T) {
	rule, err := policy.NewRule("10.0.0.0/24", []int{22})
	require.NoError(t, err)
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, []policy.Rule{rule}, newTestLogger(t), nil, RateLimit{})

	open, err := (&capsule.Open{TargetAddr: "10.0.0.5:22"}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, connectRequest(t, "s3cret", open))

	caps := readCapsules(t, rec.Body.Bytes())
	require.Len(t, caps, 1)
	ok, err := capsule.DecodeOpenOk(caps[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ok.StreamID)
}

func TestServeHTTPOpenDeniedByPolicy(t *testing.T) {
	rule, err := policy.NewRule("10.0.0.0/24", []int{22})
	require.NoError(t, err)
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, []policy.Rule{rule}, newTestLogger(t), nil, RateLimit{})

	open, err := (&capsule.Open{TargetAddr: "10.0.0.5:443"}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, connectRequest(t, "s3cret", open))

	caps := readCapsules(t, rec.Body.Bytes())
	require.Len(t, caps, 1)
	errCap, err := capsule.DecodeOpenErr(caps[0])
	require.NoError(t, err)
	assert.Equal(t, "policy-denied", errCap.Code)
}

func TestServeHTTPOpenRejectsInvalidTarget(t *testing.T) {
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, nil, newTestLogger(t), nil, RateLimit{})

	open, err := (&capsule.Open{TargetAddr: "not-a-target"}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, connectRequest(t, "s3cret", open))

	caps := readCapsules(t, rec.Body.Bytes())
	require.Len(t, caps, 1)
	errCap, err := capsule.DecodeOpenErr(caps[0])
	require.NoError(t, err)
	assert.Equal(t, "invalid-target", errCap.Code)
}

func TestServeHTTPOpenRejectsWhenRateLimited(t *testing.T) {
	rule, err := policy.NewRule("10.0.0.0/24", []int{22})
	require.NoError(t, err)
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, []policy.Rule{rule}, newTestLogger(t), nil, RateLimit{Capacity: 1, RefillPerSec: 0})

	open1, err := (&capsule.Open{TargetAddr: "10.0.0.5:22"}).Encode()
	require.NoError(t, err)
	open2, err := (&capsule.Open{TargetAddr: "10.0.0.5:22"}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := connectRequest(t, "s3cret", open1, open2)
	req.RemoteAddr = "198.51.100.7:1234"
	s.ServeHTTP(rec, req)

	caps := readCapsules(t, rec.Body.Bytes())
	require.Len(t, caps, 2)
	_, err = capsule.DecodeOpenOk(caps[0])
	require.NoError(t, err)
	errCap, err := capsule.DecodeOpenErr(caps[1])
	require.NoError(t, err)
	assert.Equal(t, "rate-limited", errCap.Code)
}

func TestServeHTTPClosesOnCloseCapsule(t *testing.T) {
	s := NewServer(&OpaqueVerifier{Secret: "s3cret"}, nil, newTestLogger(t), nil, RateLimit{})
	closeCap, err := (&capsule.Close{StreamID: 0, Reason: "done"}).Encode()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		s.ServeHTTP(rec, connectRequest(t, "s3cret", closeCap))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ServeHTTP did not return after Close capsule")
	}
}
