// Package supervisor builds and oversees the set of connection holders.
//
// The supervisor:
//   - Resolves each endpoint's credential shape at startup
//   - Owns one holder per configured endpoint
//   - Fans holder lifecycle events in to registered sinks
//   - Exposes holders and per-endpoint stats to other components
package supervisor
