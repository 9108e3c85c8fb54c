// Package rpc defines the request/response envelope spoken over the
// database server's RPC surface, plus the codecs used on the wire.
//
// The envelope is the SurrealDB shape: a request carries a string ID,
// a method name, and positional params; a response echoes the ID with
// either a result or an error object. Frames without an ID are
// server-initiated notifications (live query payloads).
//
// Two codecs are supported, matching the server's WebSocket
// subprotocols: JSON and CBOR.
package rpc
