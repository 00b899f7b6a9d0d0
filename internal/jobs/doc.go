// Package jobs persists a ledger of pack, carrier and unpack runs in SQLite.
//
// Each run gets a UUID, a status that follows the pending → running →
// succeeded/failed/cancelled lifecycle, the latest stage and frame progress,
// and the warnings raised while it ran (captured through EventHandler). The
// ledger is informational: a pipeline never reads it back to make decisions.
//
// Schema changes bump schemaVersion in schema.go; users delete the database to
// adopt the new schema.
package jobs
