package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/toppy-project/toppy/internal/audit"
	"github.com/toppy-project/toppy/internal/capsule"
	"github.com/toppy-project/toppy/internal/policy"
	"github.com/toppy-project/toppy/internal/ratelimit"
)

// RateLimit configures the per-client token bucket guarding Open attempts.
// Supplemented from original_source/toppy-core/src/rate.rs; see
// internal/ratelimit and DESIGN.md.
type RateLimit struct {
	Capacity     uint64
	RefillPerSec uint64
}

// Server is the gateway's HTTP/3 control-stream handler.
type Server struct {
	Verifier TokenVerifier
	Rules    []policy.Rule
	Audit    *audit.Logger
	Log      *slog.Logger
	RateLimit RateLimit

	startedAt time.Time

	bucketsMu sync.Mutex
	buckets   map[string]*ratelimit.Bucket
}

// NewServer constructs a gateway control-stream handler.
func NewServer(verifier TokenVerifier, rules []policy.Rule, auditLogger *audit.Logger, log *slog.Logger, rateLimit RateLimit) *Server {
	return &Server{
		Verifier:  verifier,
		Rules:     rules,
		Audit:     auditLogger,
		Log:       log,
		RateLimit: rateLimit,
		startedAt: time.Now(),
		buckets:   make(map[string]*ratelimit.Bucket),
	}
}

func (s *Server) bucketFor(clientID string) *ratelimit.Bucket {
	s.bucketsMu.Lock()
	defer s.bucketsMu.Unlock()
	b, ok := s.buckets[clientID]
	if !ok {
		b = ratelimit.New(s.RateLimit.Capacity, s.RateLimit.RefillPerSec)
		s.buckets[clientID] = b
	}
	return b
}

// ServeHTTP handles one Extended-CONNECT-style tunnel request: verify the
// bearer token, then loop reading control capsules (Ping, Open) and
// replying (Pong, OpenOk/OpenErr), generalized from the teacher's
// handleMasqueRequest per-client loop (relay/main.go).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodConnect {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	clientID := r.RemoteAddr
	token := bearerToken(r.Header.Get("Authorization"))

	if err := s.Verifier.Verify(token); err != nil {
		if s.Audit != nil {
			s.Audit.LogAuth(clientID, false, err.Error())
		}
		if strings.Contains(err.Error(), "expired") {
			w.Header().Set("X-Toppy-Reason", "token.expired")
		} else {
			w.Header().Set("X-Toppy-Reason", "token.invalid")
		}
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if s.Audit != nil {
		s.Audit.LogAuth(clientID, true, "")
	}

	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	writer := capsule.NewWriter(responseWriterFlusher{w, flusher})
	reader := capsule.NewReader(r.Body)

	for {
		cap, err := reader.ReadCapsule()
		if err != nil {
			return
		}

		switch cap.Type {
		case capsule.TypePing:
			s.handlePing(cap, writer)
		case capsule.TypeOpen:
			if s.handleOpen(r.Context(), clientID, cap, writer) {
				return
			}
		case capsule.TypeClose:
			return
		}
	}
}

func (s *Server) handlePing(cap *capsule.Capsule, writer *capsule.Writer) {
	ping, err := capsule.DecodePing(cap)
	if err != nil {
		return
	}
	pong, _ := (&capsule.Pong{Nonce: ping.Nonce}).Encode()
	_ = writer.WriteCapsule(pong)
}

// handleOpen evaluates policy and rate limit for a requested target, and
// returns true if the connection should be terminated after replying.
func (s *Server) handleOpen(_ context.Context, clientID string, cap *capsule.Capsule, writer *capsule.Writer) bool {
	open, err := capsule.DecodeOpen(cap)
	if err != nil {
		s.replyOpenErr(writer, "invalid-target", err.Error())
		return true
	}

	if s.RateLimit.Capacity > 0 {
		bucket := s.bucketFor(clientID)
		if !bucket.TryTake(1, time.Since(s.startedAt)) {
			s.replyOpenErr(writer, "rate-limited", fmt.Sprintf("client %s exceeded open rate limit", clientID))
			return true
		}
	}

	host, port, err := splitTarget(open.TargetAddr)
	if err != nil {
		s.replyOpenErr(writer, "invalid-target", err.Error())
		return true
	}

	decision := policy.Evaluate(s.Rules, host, port)
	if s.Audit != nil {
		s.Audit.LogPolicyDecision(clientID, open.TargetAddr, decision.Allowed, string(decision.ReasonCode))
	}
	if !decision.Allowed {
		s.replyOpenErr(writer, "policy-denied", decision.HumanSummary)
		return true
	}

	ok, _ := (&capsule.OpenOk{StreamID: 1}).Encode()
	_ = writer.WriteCapsule(ok)
	if s.Audit != nil {
		s.Audit.LogOpen(clientID, open.TargetAddr, true, "")
	}
	return false
}

func (s *Server) replyOpenErr(writer *capsule.Writer, code, msg string) {
	errCap, _ := (&capsule.OpenErr{Code: code, Msg: msg}).Encode()
	_ = writer.WriteCapsule(errCap)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	return ""
}

func splitTarget(addr string) (string, int, error) {
	host, portStr, err := splitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid target %s: %w", addr, err)
	}
	port, err := parsePort(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid target %s: %w", addr, err)
	}
	return host, port, nil
}
