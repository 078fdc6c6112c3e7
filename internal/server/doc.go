// Package server exposes the daemon's status over HTTP and serves the Trakt OAuth callback.
//
// # Router Infrastructure
//
// [BasicRouter] implements [Router] on [http.ServeMux] with per-route method filtering.
// [Middleware] wraps handlers in reverse order (last added executes first); [RequestLogger] and
// [Recover] are the two the daemon installs.
//
// # Status Endpoints
//
// [StatusHandler] registers:
//
//	GET  /health          {"status":"healthy"}
//	GET  /api/status      live scheduler snapshot
//	GET  /api/history     recent runs, ?limit=N
//	POST /api/sync/start  202 when started, 409 while a run is in flight
//
// The status endpoint only reads a copy of the scheduler's state, so it stays responsive
// while a sync is running.
//
// # OAuth Callback Handler
//
// [OAuthHandler] validates the state parameter, exchanges the authorization code through an
// [Exchanger] and sends the result through a channel. It processes a single callback.
package server
