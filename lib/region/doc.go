// Package region implements the subspace algebra used to route operations
// onto shards.
//
// A Region is the pair (hash interval x key range). Key-range sharding splits
// a table into contiguous key slabs, hash sharding splits each slab further
// across CPU shards. Every operation declares the region it touches and is
// narrowed ("sharded") to the intersection with the region a shard actually
// owns before execution.
//
// Key Components:
//
//   - KeyRange: closed-left, open-or-unbounded-right interval over byte-string
//     keys, with intersection, superset and containment tests.
//
//   - Region: a KeyRange paired with a half-open interval of the hash
//     universe [0, HashSize). Monokey(k) covers exactly one key (hash width
//     exactly 1); CPUShardingSubspace(i, n) produces the n pairwise-disjoint
//     hash slabs whose union is the full universe.
//
//   - HashKey: the cluster-stable key hash. The seed is fixed on purpose --
//     two machines must never disagree on which hash shard a key belongs to.
//
// All algebra operations are total. An empty intersection is a regular value
// and never an error.
package region
