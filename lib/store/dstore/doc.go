// Package dstore carries protocol writes through RAFT consensus using the
// Dragonboat library.
//
// The shard core itself never cares where its transition timestamps come
// from -- it only requires them to be strictly monotonic. This package is
// the replication-layer seam providing them: every write is serialized into
// a raft log entry, and the state machine applies it through the regular
// store executor with the entry's log index as the timestamp. Since all
// replicas apply the same log, their slices converge.
//
// Components:
//
//   - RDBStateMachine: a Dragonboat IConcurrentStateMachine owning one
//     store.Store per hosted shard. Update applies writes, Lookup serves
//     point reads, snapshots save and restore the slice (tombstones
//     included, so backfill state survives restarts).
//
//   - IReplicatedStore: the client side. Writes go through SyncPropose with
//     retry on backpressure; point reads use SyncRead, or StaleRead when
//     linearizability is not required.
//
//   - internal: the Command/Query log formats.
//
// Range reads, distribution reads and backfill do not pass through raft;
// they run against a replica's local store under the routing layer's
// control.
package dstore
