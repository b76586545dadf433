// Package server provides the dayboard HTTP API.
//
// # Endpoints
//
//   - GET /calendar returns the signed-in user's events across every
//     connected Google account. The optional timeMin/timeMax query
//     parameters (RFC3339, both or neither) replace the default window.
//   - GET /healthz, /readyz and /healthz/detailed serve Kubernetes probes.
//     Readiness includes a datastore ping.
//
// Requests to /calendar carry an HS256 session token, either as a Bearer
// Authorization header or in the dayboard_session cookie. The token subject
// is the user id.
//
// Responses use a common envelope:
//
//	{"success": true, "data": [...], "message": "...", "failedSources": 1}
//	{"success": false, "error": "..."}
//
// Individual calendar failures never fail the request; they are counted in
// failedSources. Only a missing session (401), a missing user (400), an
// unreachable datastore (503) or an unexpected error (500) do.
//
// MetricsServer exposes Prometheus metrics on a separate listener.
package server
