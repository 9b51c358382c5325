// Command toppy-gw is Toppy's gateway stub: it terminates HTTP/3 tunnel
// requests, verifies bearer tokens, evaluates policy, and serves /healthz.
//
// Grounded on the teacher's relay/main.go: same TLS setup, same signal-driven
// graceful-shutdown/drain sequence, same health-server-in-a-goroutine shape,
// generalized from TUN-packet ACL enforcement to capsule Open/OpenOk/OpenErr
// handling over internal/gateway.Server.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"

	"github.com/toppy-project/toppy/internal/audit"
	"github.com/toppy-project/toppy/internal/config"
	"github.com/toppy-project/toppy/internal/gateway"
	"github.com/toppy-project/toppy/internal/logger"
)

const (
	healthAddr   = ":8080"
	shutdownWait = 30 * time.Second
)

func main() {
	log := logger.New(os.Stdout, slog.LevelInfo)

	if err := run(log); err != nil {
		log.Error("gateway exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	sysLog := logger.WithComponent(log, "system")

	cfg, path, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sysLog.Info("config loaded", slog.String("path", path))

	verifier, err := buildVerifier()
	if err != nil {
		return fmt.Errorf("build token verifier: %w", err)
	}

	auditPath := os.Getenv("TOPPY_AUDIT_PATH")
	if auditPath == "" {
		auditPath = "toppy-audit.jsonl"
	}
	chain, err := audit.OpenChain(auditPath)
	if err != nil {
		return fmt.Errorf("open audit chain %s: %w", auditPath, err)
	}
	defer chain.Close()
	auditLogger := audit.NewLogger(chain, logger.WithComponent(log, "audit"))

	server := gateway.NewServer(verifier, cfg.Rules, auditLogger, logger.WithComponent(log, "gateway"), gatewayRateLimit())

	tlsConfig, err := buildServerTLSConfig()
	if err != nil {
		return fmt.Errorf("build tls config: %w", err)
	}

	bindAddr := fmt.Sprintf(":%d", cfg.Port)
	h3srv := &http3.Server{
		Addr:      bindAddr,
		Handler:   http.HandlerFunc(server.ServeHTTP),
		TLSConfig: tlsConfig,
		QUICConfig: &quic.Config{
			KeepAlivePeriod: 10 * time.Second,
			MaxIdleTimeout:  300 * time.Second,
		},
	}

	healthSrv := &http.Server{
		Addr:    healthAddr,
		Handler: http.HandlerFunc(gateway.HealthHandler),
	}

	go func() {
		sysLog.Info("starting health server", slog.String("address", healthAddr))
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sysLog.Error("health server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		sysLog.Info("starting http/3 gateway", slog.String("address", bindAddr))
		if err := h3srv.ListenAndServe(); err != nil {
			sysLog.Error("http/3 server error", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	sysLog.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWait)
	defer cancel()

	if err := h3srv.Close(); err != nil {
		sysLog.Error("error closing http/3 server", slog.String("error", err.Error()))
	}
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		sysLog.Error("error closing health server", slog.String("error", err.Error()))
	}

	sysLog.Info("shutdown complete")
	return nil
}

func buildVerifier() (gateway.TokenVerifier, error) {
	if secret := os.Getenv("TOPPY_GW_JWT_SECRET"); secret != "" {
		return &gateway.JWTVerifier{
			Secret:   secret,
			Issuer:   os.Getenv("TOPPY_GW_JWT_ISS"),
			Audience: os.Getenv("TOPPY_GW_JWT_AUD"),
		}, nil
	}
	token := os.Getenv("TOPPY_GW_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("neither TOPPY_GW_JWT_SECRET nor TOPPY_GW_TOKEN is set")
	}
	return &gateway.OpaqueVerifier{Secret: token}, nil
}

func gatewayRateLimit() gateway.RateLimit {
	return gateway.RateLimit{Capacity: 20, RefillPerSec: 5}
}

func buildServerTLSConfig() (*tls.Config, error) {
	certPath := os.Getenv("TOPPY_GW_CERT_PATH")
	keyPath := os.Getenv("TOPPY_GW_KEY_PATH")
	if certPath == "" || keyPath == "" {
		return nil, fmt.Errorf("TOPPY_GW_CERT_PATH and TOPPY_GW_KEY_PATH must both be set")
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load gateway certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h3"},
	}, nil
}
