package btree

import (
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Entries
// --------------------------------------------------------------------------

// entry is one leaf of the tree: a live value or a deletion tombstone.
// Tombstones keep their recency so backfill can stream deletions to a
// catching-up replica.
type entry struct {
	key     string
	value   []byte
	recency uint64
	deleted bool
}

func entryLess(a, b entry) bool {
	return a.key < b.key
}

// --------------------------------------------------------------------------
// Slice
// --------------------------------------------------------------------------

// defaultDegree is the branching factor of the underlying tree.
const defaultDegree = 32

// Slice is one shard's ordered key-value tree.
//
// Thread-safety: a slice is pinned to a single worker and all mutation must
// happen on that worker. Concurrent read-only traversals (as the parallel
// backfill sender performs) are safe as long as no write is in flight, which
// the caller's transaction guarantees.
type Slice struct {
	tree *btree.BTreeG[entry]
}

// NewSlice creates an empty slice.
func NewSlice() *Slice {
	return &Slice{tree: newTree()}
}

func newTree() *btree.BTreeG[entry] {
	return btree.NewG(defaultDegree, entryLess)
}

// --------------------------------------------------------------------------
// Point Primitives
// --------------------------------------------------------------------------

// Get retrieves the live value for a key. Tombstoned keys read as absent.
func (s *Slice) Get(key string) (value []byte, ok bool) {
	e, found := s.tree.Get(entry{key: key})
	if !found || e.deleted {
		return nil, false
	}
	return e.value, true
}

// Set stores a value under a key, stamped with the given recency. Any
// tombstone for the key is overwritten.
func (s *Slice) Set(key string, value []byte, recency uint64) {
	s.tree.ReplaceOrInsert(entry{key: key, value: value, recency: recency})
}

// Delete tombstones a key at the given recency. Deleting an absent key still
// records the tombstone; a replica may hold a value this store never saw.
func (s *Slice) Delete(key string, recency uint64) (existed bool) {
	old, found := s.tree.Get(entry{key: key})
	s.tree.ReplaceOrInsert(entry{key: key, recency: recency, deleted: true})
	return found && !old.deleted
}

// --------------------------------------------------------------------------
// Range Erase
// --------------------------------------------------------------------------

// EraseRange physically removes every entry in the key range for which the
// tester returns true, tombstones included. The tester lets callers restrict
// the erase to a hash sub-region of the key range.
func (s *Slice) EraseRange(kr region.KeyRange, tester func(key string) bool) {
	victims := make([]string, 0)

	s.ascendRange(kr, func(e entry) bool {
		if tester == nil || tester(e.key) {
			victims = append(victims, e.key)
		}
		return true
	})

	for _, key := range victims {
		s.tree.Delete(entry{key: key})
	}
}

// --------------------------------------------------------------------------
// Traversal Helper
// --------------------------------------------------------------------------

// ascendRange walks all entries (live and tombstoned) of the key range in
// ascending key order.
func (s *Slice) ascendRange(kr region.KeyRange, fn func(entry) bool) {
	if kr.IsEmpty() {
		return
	}
	if kr.Unbounded {
		s.tree.AscendGreaterOrEqual(entry{key: kr.Left}, fn)
		return
	}
	s.tree.AscendRange(entry{key: kr.Left}, entry{key: kr.Right}, fn)
}

// Len returns the number of entries in the slice, tombstones included.
func (s *Slice) Len() int {
	return s.tree.Len()
}
