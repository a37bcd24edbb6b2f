// Package protocol defines the "rdb" shard protocol: the tagged read, write
// and backfill-chunk operations, their responses, and the shard/unshard
// machinery that routes them onto shards and merges the per-shard results
// back into one logical response.
//
// Key Components:
//
//   - Read / Write / BackfillChunk: sealed tagged unions. Every variant
//     declares the region it touches (GetRegion) and can be narrowed to a
//     sub-region (Shard). Operations are values; sharding returns a new
//     value and never mutates.
//
//   - Unshard: merges responses from different key-range shards. Streams
//     concatenate in key order, terminals (grouped map-reduce, reduction,
//     length, for-each) are re-folded over the partial results by evaluating
//     the user-supplied reduction via lib/query.
//
//   - MultistoreUnshard: merges responses from different hash shards of the
//     same key range. The interesting part is the last-considered-key
//     reconciliation: the merged watermark is the minimum among the shards
//     that returned a full page, and rows past it are trimmed so paging
//     never skips keys held by sparser shards. Distribution samples are
//     merged by scaling the coarsest piece up to the total population.
//
// Error policy: runtime errors raised by user expressions are data -- they
// become the Result of the merged response. Interruption is a transport
// failure and propagates as an error. Sharding-precondition violations are
// programming bugs and panic.
package protocol
