// Package btree is the ordered key-value engine a shard executes against.
//
// One Slice holds one shard's tree, built on github.com/google/btree.
// Deletions are tombstoned with their replication timestamp so a backfill
// can stream them to a catching-up replica; tombstones are physically
// removed only by EraseRange.
//
// The scan primitives mirror what the executor needs:
//
//   - RGetSlice: ascending range scan with a soft row cap, a per-row
//     transform pipeline and terminal folding (grouped map-reduce,
//     reduction, length, for-each). Runtime errors raised by user
//     expressions are captured into the response result.
//
//   - DistributionGet: depth-bounded key distribution sample from a start
//     key. The scan may overshoot the requested range; the executor
//     post-filters.
//
//   - Backfill: ordered traversal of everything that changed at or after a
//     timestamp, reported through a BackfillCallback, with per-traversal
//     progress counting and interrupt checks between entries.
//
// Transactions and superblocks are caller-owned tokens: the core neither
// creates nor commits them. RefcountSuperblock shares one superblock across
// the parallel traversals of a backfill, releasing the wrapped superblock
// exactly when the last traversal finishes.
//
// Thread-safety: a Slice is pinned to one worker; all writes must run there.
package btree
