// Package gateway implements Toppy's gateway stub (spec.md §4.5): a
// /healthz endpoint, bearer-token verification on the tunnel control
// stream, Ping/Pong echo, and per-connection policy evaluation.
//
// Grounded on the teacher's relay/api.HealthChecker (generalized from
// liveness/readiness to a single /healthz) and relay/main.go's
// handleMasqueRequest loop (generalized from TUN packet forwarding to
// Open/OpenOk/OpenErr over the capsule control stream).
package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthHandler serves spec.md §4.5's /healthz: 200 with
// {"status":"ok"} whenever the process is up. Toppy's gateway has no
// separate liveness/readiness distinction — there is no IPAM/ACL warmup to
// gate on, unlike the teacher's TUN-backed relay.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
