package tunnel

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/toppy-project/toppy/internal/config"
)

// buildTLSConfig builds the client TLS configuration used to dial the
// gateway: trust only ca_cert_path's roots when set, else the system pool,
// and verify server_name (or gateway) against the certificate SAN. ALPN is
// pinned to "h3" for the HTTP/3 handshake.
func buildTLSConfig(cfg *config.Config) (*tls.Config, error) {
	tlsCfg := &tls.Config{
		ServerName: cfg.SNIName(),
		NextProtos: []string{"h3"},
		MinVersion: tls.VersionTLS13,
	}

	if cfg.CACertPath == "" {
		return tlsCfg, nil
	}

	pem, err := os.ReadFile(cfg.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("read ca_cert_path %s: %w", cfg.CACertPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("ca_cert_path %s contains no usable PEM certificates", cfg.CACertPath)
	}
	tlsCfg.RootCAs = pool

	return tlsCfg, nil
}

// classifyTLSError maps a failed handshake into the cert.invalid taxonomy.
// Summary always contains "cert" so doctor/up output stays grep-stable. Only
// the three x509 certificate-validation error types are classified as
// cert.invalid; any other dial failure (connection refused, timeout, QUIC
// handshake abort) returns nil so the caller's KindHandshakeFail fallback
// applies instead.
func classifyTLSError(err error) *ConnectError {
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	var authErr x509.UnknownAuthorityError

	switch {
	case errors.As(err, &hostErr):
		return newConnectError(KindCertInvalid, fmt.Sprintf("cert: hostname mismatch: %v", hostErr), err)
	case errors.As(err, &invalidErr):
		return newConnectError(KindCertInvalid, fmt.Sprintf("cert: invalid certificate: %v", invalidErr), err)
	case errors.As(err, &authErr):
		return newConnectError(KindCertInvalid, fmt.Sprintf("cert: unknown authority: %v", authErr), err)
	default:
		return nil
	}
}
