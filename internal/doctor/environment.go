package doctor

import (
	"os"

	"github.com/toppy-project/toppy/internal/config"
)

// Environment carries the environment-variable overrides and per-run state
// the catalog's runners consult and populate as they execute in order (for
// instance, cfg.load populates Config for every later check that needs it).
// Grounded on original_source/toppy-core/src/doctor.rs's env::var overrides.
type Environment struct {
	ConfigPath        string
	NetOverride       string // TOPPY_DOCTOR_NET: "skip"
	TunOverride       string // TOPPY_DOCTOR_TUN: pass|warn|fail|skip
	Target            string // TOPPY_DOCTOR_TARGET: host:port
	ConnectUDPEnabled bool   // TOPPY_DOCTOR_CONNECT_UDP=1

	cfg       *config.Config
	dnsFailed bool
}

// EnvironmentFromOS reads TOPPY_CONFIG and the TOPPY_DOCTOR_* variables
// spec.md §6 names.
func EnvironmentFromOS() *Environment {
	return &Environment{
		ConfigPath:        os.Getenv("TOPPY_CONFIG"),
		NetOverride:       os.Getenv("TOPPY_DOCTOR_NET"),
		TunOverride:       os.Getenv("TOPPY_DOCTOR_TUN"),
		Target:            os.Getenv("TOPPY_DOCTOR_TARGET"),
		ConnectUDPEnabled: os.Getenv("TOPPY_DOCTOR_CONNECT_UDP") == "1",
	}
}
