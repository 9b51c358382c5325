package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/toppy-project/toppy/internal/config"
	"github.com/toppy-project/toppy/internal/policy"
	"github.com/toppy-project/toppy/internal/tunnel"
)

// netTimeout bounds DNS and handshake checks, per spec.md §5's "hard
// timeout (default 5s)".
const netTimeout = 5 * time.Second

func checkConfigLoad(_ context.Context, env *Environment) Check {
	if env.ConfigPath == "" {
		return mk("cfg.load", StatusFail, fmt.Sprintf("%s is not set", config.EnvConfigPath))
	}

	cfg, _, err := config.LoadFile(env.ConfigPath)
	if err != nil {
		return mk("cfg.load", StatusFail, err.Error())
	}

	env.cfg = cfg
	return mk("cfg.load", StatusPass, fmt.Sprintf("loaded %s", env.ConfigPath))
}

func checkNetDNS(ctx context.Context, env *Environment) Check {
	if env.NetOverride == "skip" {
		return mk("net.dns", StatusWarn, "skipped via TOPPY_DOCTOR_NET")
	}
	if env.cfg == nil {
		return mk("net.dns", StatusSkip, "skipped: no configuration loaded")
	}

	ctx, cancel := context.WithTimeout(ctx, netTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, env.cfg.Gateway)
	if err != nil || len(addrs) == 0 {
		env.dnsFailed = true
		if err == nil {
			err = fmt.Errorf("no addresses returned")
		}
		return mk("net.dns", StatusFail, fmt.Sprintf("dns: resolve %s failed: %v", env.cfg.Gateway, err))
	}

	return mk("net.dns", StatusPass, fmt.Sprintf("resolved %s to %d address(es)", env.cfg.Gateway, len(addrs)))
}

func checkH3Connect(ctx context.Context, env *Environment) Check {
	switch env.NetOverride {
	case "pass":
		return mk("h3.connect", StatusPass, "forced pass via TOPPY_DOCTOR_NET")
	case "fail":
		return mk("h3.connect", StatusFail, "forced fail via TOPPY_DOCTOR_NET")
	case "skip":
		return mk("h3.connect", StatusWarn, "skipped via TOPPY_DOCTOR_NET")
	}

	if env.cfg == nil {
		return mk("h3.connect", StatusSkip, "skipped: no configuration loaded")
	}
	if env.dnsFailed {
		return mk("h3.connect", StatusWarn, "skipped because net.dns failed")
	}

	ctx, cancel := context.WithTimeout(ctx, netTimeout)
	defer cancel()

	if _, err := tunnel.Probe(ctx, env.cfg); err != nil {
		var connErr *tunnel.ConnectError
		if errors.As(err, &connErr) {
			return mk("h3.connect", StatusFail, connErr.Summary)
		}
		return mk("h3.connect", StatusFail, fmt.Sprintf("handshake failed: %v", err))
	}

	return mk("h3.connect", StatusPass, "ping/pong exchange succeeded")
}

func checkTunPerm(_ context.Context, env *Environment) Check {
	switch env.TunOverride {
	case "pass":
		return mk("tun.perm", StatusPass, "forced pass via TOPPY_DOCTOR_TUN")
	case "fail":
		return mk("tun.perm", StatusFail, "forced fail via TOPPY_DOCTOR_TUN")
	case "warn":
		return mk("tun.perm", StatusWarn, "forced warn via TOPPY_DOCTOR_TUN")
	case "skip":
		return mk("tun.perm", StatusSkip, "skipped via TOPPY_DOCTOR_TUN")
	}
	return tunPermProbe()
}

func tunPermProbe() Check {
	switch runtime.GOOS {
	case "linux":
		const path = "/dev/net/tun"
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			if os.IsPermission(err) {
				return mk("tun.perm", StatusFail, fmt.Sprintf("missing-cap-net-admin: cannot open %s: %v", path, err))
			}
			return mk("tun.perm", StatusFail, fmt.Sprintf("cannot open %s: %v", path, err))
		}
		f.Close()
		return mk("tun.perm", StatusPass, fmt.Sprintf("opened %s", path))
	case "darwin":
		// Creating a real AF_SYSTEM/SYSPROTO_CONTROL socket requires cgo and
		// platform-specific syscall numbers the rest of this module doesn't
		// otherwise need; see DESIGN.md for why this check warns instead of
		// probing on macOS.
		return mk("tun.perm", StatusWarn, "utun probe not implemented on darwin")
	default:
		return mk("tun.perm", StatusWarn, fmt.Sprintf("tun permission check not supported on %s", runtime.GOOS))
	}
}

func checkMTUSanity(_ context.Context, env *Environment) Check {
	const recommended = 1350
	const minReasonable = 1200
	const maxReasonable = 9000

	if env.cfg == nil || env.cfg.MTU == 0 {
		return mk("mtu.sanity", StatusWarn, fmt.Sprintf("mtu not set; recommended %d", recommended))
	}

	mtu := env.cfg.MTU
	switch {
	case mtu < minReasonable:
		return mk("mtu.sanity", StatusWarn, fmt.Sprintf("mtu %d is small; recommended >= %d (target %d)", mtu, minReasonable, recommended))
	case mtu > maxReasonable:
		return mk("mtu.sanity", StatusWarn, fmt.Sprintf("mtu %d is large; recommended <= %d (target %d)", mtu, maxReasonable, recommended))
	default:
		return mk("mtu.sanity", StatusPass, fmt.Sprintf("mtu %d within range (target %d)", mtu, recommended))
	}
}

func checkPolicyDenied(_ context.Context, env *Environment) Check {
	if env.Target == "" {
		return mk("policy.denied", StatusSkip, "skipped: TOPPY_DOCTOR_TARGET not set")
	}

	host, portStr, err := net.SplitHostPort(env.Target)
	if err != nil {
		return mk("policy.denied", StatusFail, fmt.Sprintf("invalid target %s: %v", env.Target, err))
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return mk("policy.denied", StatusFail, fmt.Sprintf("invalid target %s: %v", env.Target, err))
	}

	if env.cfg == nil {
		return mk("policy.denied", StatusWarn, "policy not configured")
	}

	decision := policy.Evaluate(env.cfg.Rules, host, port)
	if !decision.Allowed {
		return mk("policy.denied", StatusFail, fmt.Sprintf("%s (%s)", decision.HumanSummary, decision.ReasonCode))
	}
	return mk("policy.denied", StatusPass, fmt.Sprintf("%s:%d is allowed by policy", host, port))
}

// checkConnectUDP and checkConnectUDPDatagram supplement the catalog from
// original_source/toppy-core/src/doctor.rs's CONNECT-UDP probes. They are
// opt-in: spec.md's core tunnel excludes CONNECT-UDP as a relay feature,
// but probing the gateway's CONNECT-UDP surface is diagnostics, not a
// relay capability, so it is gated behind TOPPY_DOCTOR_CONNECT_UDP instead
// of removed outright (see SPEC_FULL.md §8). When enabled they perform no
// network probe: with a loaded configuration they report warn with a
// "not implemented" summary.
func checkConnectUDP(_ context.Context, env *Environment) Check {
	if !env.ConnectUDPEnabled {
		return mk("masque.connect_udp", StatusSkip, "skipped: set TOPPY_DOCTOR_CONNECT_UDP=1 to enable")
	}
	if env.cfg == nil {
		return mk("masque.connect_udp", StatusSkip, "skipped: no configuration loaded")
	}
	return mk("masque.connect_udp", StatusWarn, "connect-udp extended-connect probe not implemented")
}

func checkConnectUDPDatagram(_ context.Context, env *Environment) Check {
	if !env.ConnectUDPEnabled {
		return mk("masque.connect_udp.datagram", StatusSkip, "skipped: set TOPPY_DOCTOR_CONNECT_UDP=1 to enable")
	}
	if env.cfg == nil {
		return mk("masque.connect_udp.datagram", StatusSkip, "skipped: no configuration loaded")
	}
	return mk("masque.connect_udp.datagram", StatusWarn, "http/3 datagram echo probe not implemented")
}
