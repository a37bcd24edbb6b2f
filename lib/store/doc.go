// Package store executes protocol operations against one CPU shard's slice
// and runs the backfill protocol between replicas.
//
// A Store binds a btree.Slice to the worker that owns it and to the cluster
// context from which per-request evaluation environments are built. It is
// the local half of the shard protocol:
//
//   - ProtocolRead dispatches each read variant to the matching engine
//     primitive: point gets, range scans with transforms and terminals, and
//     distribution samples (post-filtered to the requested range, since the
//     engine samples from a start key and may overshoot).
//
//   - ProtocolWrite applies point writes, modifies and deletes, stamped with
//     the transition timestamp the replication layer issues. A modify
//     evaluates its user mapping under a fresh scope; mapping failures are
//     reported in the response, not as request failures.
//
//   - ProtocolSendBackfill fans out one traversal per start-point region,
//     shares the superblock through a refcount released exactly once per
//     task, funnels all chunks through a lock-free MPSC queue into a single
//     consumer, and checks the interrupt signal again after every traversal
//     has unwound.
//
//   - ProtocolReceiveBackfill applies delete-key, delete-range and
//     key-value chunks; ProtocolResetData erases a region outright.
//
// Operation and chunk counts are exported as VictoriaMetrics counters.
package store
