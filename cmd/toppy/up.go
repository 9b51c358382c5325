package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/toppy-project/toppy/internal/config"
	"github.com/toppy-project/toppy/internal/logger"
	"github.com/toppy-project/toppy/internal/policy"
	"github.com/toppy-project/toppy/internal/session"
	"github.com/toppy-project/toppy/internal/tunnel"
)

func newUpCommand() *cobra.Command {
	var target string
	var listen string
	var once bool

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Open an authenticated tunnel and relay a local listener through it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), target, listen, once)
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "remote target as host:port (required)")
	cmd.Flags().StringVar(&listen, "listen", "", "local listen address as addr:port (required)")
	cmd.Flags().BoolVar(&once, "once", false, "relay exactly one connection, then exit")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("listen")

	return cmd
}

func runUp(ctx context.Context, target, listen string, once bool) error {
	log := logger.WithComponent(logger.New(os.Stdout, slog.LevelInfo), "cli")

	cfg, path, err := config.Load()
	if err != nil {
		return fmt.Errorf("config.invalid: %w", err)
	}
	log.Info("config loaded", slog.String("path", path))

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return fmt.Errorf("invalid --target %s: %w", target, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --target %s: %w", target, err)
	}

	decision := policy.Evaluate(cfg.Rules, host, port)
	if !decision.Allowed {
		return fmt.Errorf("reason: %s (%s)", decision.HumanSummary, decision.ReasonCode)
	}
	log.Info("policy allowed target", slog.String("target", target))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := tunnel.NewDialer(sigCtx, cfg)
	if err != nil {
		return fmt.Errorf("tunnel handshake failed: %w", err)
	}
	log.Info("tunnel established", slog.String("target", target))

	mode := session.ModePersistent
	if once {
		mode = session.ModeOnce
	}

	handle := session.New(uuid.NewString(), target, mode, &dialerOpener{dialer: dialer})
	log.Info("relaying", slog.String("listen", listen), slog.Bool("once", once))

	if err := handle.Run(sigCtx, listen); err != nil {
		return err
	}

	log.Info("shutdown complete")
	return nil
}

// dialerOpener adapts *tunnel.Dialer to session.StreamOpener: Go's
// interface satisfaction is not covariant on return types, so OpenStream's
// concrete *tunnel.Conn needs this thin wrapper to present as the
// session package's tunnel-agnostic TunnelConn.
type dialerOpener struct {
	dialer *tunnel.Dialer
}

func (o *dialerOpener) OpenStream(ctx context.Context, targetAddr string) (session.TunnelConn, error) {
	return o.dialer.OpenStream(ctx, targetAddr)
}

func (o *dialerOpener) Close() error {
	return o.dialer.Close()
}
