// Package router is the front door of a node: it owns the machine's CPU
// shards and implements the split/execute/merge data flow of the shard
// protocol.
//
// A read is narrowed (Shard) to every CPU shard its declared region
// intersects, executed per shard, and the per-shard responses are merged
// back -- through the multistore path when more than one hash shard
// contributed, through plain unshard otherwise. A write is a point
// operation and routes to the single shard owning its key, stamped with the
// node's transition timestamp.
//
// The HTTP surface (chi) exposes one operation endpoint speaking serialized
// wire messages, an NDJSON backfill stream in both directions, and the usual
// health and Prometheus metrics endpoints.
package router
