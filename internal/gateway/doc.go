// Package gateway orchestrates the stingray-gateway server components.
//
// # Overview
//
// The gateway package wires the store, policy resolver, command registry,
// session store, failure supervisor and dispatcher together, then exposes
// them through the configured transports:
//
//   - Discord: signed HTTP interactions at POST /interactions
//   - Matrix: a long-lived /sync loop that reads "!command" messages
//   - Admin API: bearer-JWT routes under /api/workspaces/{id}/...
//   - Health: GET /health, GET /health/ready and the gRPC health service
//   - Metrics: Prometheus exposition at metrics.path
//
// # Lifecycle
//
// New builds every component but binds no sockets. Run opens the listeners
// (plain TCP, or a tsnet node when tailscale.enabled is set) and serves until
// the context is cancelled, then calls Shutdown with a bounded timeout.
//
// # Admin API
//
//	GET /api/workspaces/{id}/policy            effective policy of every command
//	PUT /api/workspaces/{id}/policy/{command}  replace one override (null removes it)
//	GET /api/workspaces/{id}/audit             recent audit entries (limit, target, since)
//
// Replacements are recorded in the audit log with actor "admin:<sub>".
// Without admin.jwt_secret the routes are not mounted.
package gateway
