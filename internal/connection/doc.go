// Package connection maintains live connections to SurrealDB-compatible
// endpoints.
//
// The package has two layers:
//   - Clients: one protocol connection each, over WebSocket RPC or the
//     HTTP surface depending on the endpoint URL scheme.
//   - Holders: own at most one client per endpoint, dial lazily on
//     first use, and reconnect with exponentially growing delays when
//     the connection drops.
//
// Holders publish lifecycle transitions on an event channel so callers
// can journal or alert on them.
package connection
