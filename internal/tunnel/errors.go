package tunnel

import "fmt"

// ErrorKind classifies a failure to establish a tunnel session, mirroring
// the taxonomy a doctor check or `up` invocation reports on.
type ErrorKind string

const (
	KindDNSFailure    ErrorKind = "dns.failure"
	KindCertInvalid   ErrorKind = "cert.invalid"
	KindTokenInvalid  ErrorKind = "token.invalid"
	KindTokenExpired  ErrorKind = "token.expired"
	KindPolicyDenied  ErrorKind = "policy-denied"
	KindHandshakeFail ErrorKind = "handshake.failed"
)

// ConnectError is returned by NewDialer, OpenStream and Probe when the
// tunnel could not be established. For the dns, cert, token and
// policy-denied kinds, Summary contains a grep-stable substring matching
// Kind ("dns", "cert", "token", "not allowed") so scripted assertions don't
// need to pin the full message; handshake.failed summaries carry no such
// fixed substring.
type ConnectError struct {
	Kind    ErrorKind
	Summary string
	Err     error
}

func (e *ConnectError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Summary, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Summary)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func newConnectError(kind ErrorKind, summary string, err error) *ConnectError {
	return &ConnectError{Kind: kind, Summary: summary, Err: err}
}
