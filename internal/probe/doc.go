// Package probe implements the liveness prober.
//
// The prober:
//   - Pings every managed endpoint on a fixed interval
//   - Uses bounded concurrency across endpoints
//   - Drives reconnection by requesting a connection before each ping
//   - Reports per-endpoint results to an optional handler
package probe
