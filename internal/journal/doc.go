// Package journal persists connection lifecycle events to PostgreSQL.
//
// Events queue in a growable in-memory buffer and are flushed in
// batches, either when a batch fills or on a timer tick. Inserts are
// append-only with ON CONFLICT DO NOTHING, so a replayed event is
// dropped rather than duplicated.
package journal
