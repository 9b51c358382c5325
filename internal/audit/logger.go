package audit

import (
	"log/slog"
	"time"
)

// Logger wraps a ChainWriter with the teacher's convenience-method API
// (relay/audit.Logger's LogACL/LogAuth/LogConnection), generalized to
// Toppy's actor/action/target/allowed shape and backed by a hash chain
// instead of a plain JSONL stream. A logging failure never aborts the
// caller's operation — it is reported via the supplied slog.Logger.
type Logger struct {
	chain *ChainWriter
	log   *slog.Logger
}

// NewLogger wraps chain. log may be nil to discard logging failures.
func NewLogger(chain *ChainWriter, log *slog.Logger) *Logger {
	return &Logger{chain: chain, log: log}
}

func (l *Logger) append(event Event) {
	if _, err := l.chain.Append(uint64(time.Now().UnixMilli()), event); err != nil && l.log != nil {
		l.log.Error("failed to append audit entry", slog.String("error", err.Error()))
	}
}

// LogOpen records a client's Open/OpenOk/OpenErr outcome for a target.
func (l *Logger) LogOpen(actor, target string, allowed bool, reason string) {
	event := Event{Actor: actor, Action: "open", Target: target, Allowed: allowed}
	if reason != "" {
		event.Reason = &reason
	}
	l.append(event)
}

// LogPolicyDecision records a policy evaluation, mirroring internal/policy's
// Decision shape.
func (l *Logger) LogPolicyDecision(actor, target string, allowed bool, reasonCode string) {
	event := Event{Actor: actor, Action: "policy", Target: target, Allowed: allowed}
	if reasonCode != "" {
		event.Reason = &reasonCode
	}
	l.append(event)
}

// LogAuth records a token verification outcome.
func (l *Logger) LogAuth(actor string, success bool, reason string) {
	event := Event{Actor: actor, Action: "auth", Target: "", Allowed: success}
	if reason != "" {
		event.Reason = &reason
	}
	l.append(event)
}

// Close closes the underlying chain.
func (l *Logger) Close() error {
	return l.chain.Close()
}
