// Package doctor implements Toppy's diagnostic subsystem: an ordered
// catalog of named checks folded into a stable, machine-readable report.
//
// Catalog orchestration (env-var overrides, ordering, aggregation) is
// grounded on original_source/toppy-core/src/doctor.rs's doctor_check();
// the catalog-as-data shape (an ordered slice of (id, runner) pairs folded
// by aggregation) follows spec.md §9's design note and the teacher's
// api.HealthChecker pattern for reporting structured check outcomes.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
)

// Status is a single check's outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Check is one catalog entry's result.
type Check struct {
	ID      string         `json:"id"`
	Status  Status         `json:"status"`
	Summary string         `json:"summary"`
	Details map[string]any `json:"details,omitempty"`
}

// Report is the stable JSON document doctor emits.
type Report struct {
	Version string  `json:"version"`
	Overall Status  `json:"overall"`
	Checks  []Check `json:"checks"`
}

// Version is the doctor report schema version, independent of the module
// version.
const Version = "1"

// runner produces one Check. Runners never return an error: every failure
// is folded into a Check with Status: fail, per spec.md §7 ("the doctor
// engine never propagates an error upward").
type runner func(ctx context.Context, env *Environment) Check

// catalog entry pairs a stable id with its runner, in the fixed evaluation
// order spec.md §5 requires for a reproducible report.
type entry struct {
	id  string
	run runner
}

var catalog = []entry{
	{"cfg.load", checkConfigLoad},
	{"net.dns", checkNetDNS},
	{"h3.connect", checkH3Connect},
	{"tun.perm", checkTunPerm},
	{"mtu.sanity", checkMTUSanity},
	{"policy.denied", checkPolicyDenied},
	{"masque.connect_udp", checkConnectUDP},
	{"masque.connect_udp.datagram", checkConnectUDPDatagram},
}

// Run executes the full catalog in order and aggregates the result.
func Run(ctx context.Context, env *Environment) *Report {
	checks := make([]Check, 0, len(catalog))
	for _, e := range catalog {
		checks = append(checks, e.run(ctx, env))
	}
	return &Report{
		Version: Version,
		Overall: aggregate(checks),
		Checks:  checks,
	}
}

// aggregate implements spec.md §4.4: fail if any check failed, else warn if
// any warned, else pass. Skipped checks never degrade the overall verdict.
func aggregate(checks []Check) Status {
	sawWarn := false
	for _, c := range checks {
		if c.Status == StatusFail {
			return StatusFail
		}
		if c.Status == StatusWarn {
			sawWarn = true
		}
	}
	if sawWarn {
		return StatusWarn
	}
	return StatusPass
}

// MarshalJSONPretty renders the report pretty-printed, per spec.md §6 ("Doctor
// JSON output MUST be pretty-printable"). The first non-whitespace byte is
// always '{'.
func (r *Report) MarshalJSONPretty() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal doctor report: %w", err)
	}
	return data, nil
}

func mk(id string, status Status, summary string) Check {
	return Check{ID: id, Status: status, Summary: summary}
}

// Lines renders the report as human-readable text, one check per line,
// for doctor's non-JSON output mode.
func (r *Report) Lines() []string {
	lines := make([]string, 0, len(r.Checks)+1)
	lines = append(lines, fmt.Sprintf("overall: %s", r.Overall))
	for _, c := range r.Checks {
		lines = append(lines, fmt.Sprintf("  %-28s %-5s %s", c.ID, c.Status, c.Summary))
	}
	return lines
}
