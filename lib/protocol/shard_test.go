package protocol

import (
	"testing"

	"github.com/ValentinKolb/dRDB/lib/region"
)

// TestReadShardIdentity tests that sharding a read to its own region is the
// identity
func TestReadShardIdentity(t *testing.T) {
	reads := []Read{
		NewPointRead("foo"),
		NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Maximum: 10}),
		NewDistributionRead(region.NewKeyRange("a", "z"), 4),
	}

	for _, r := range reads {
		sharded := r.Shard(r.GetRegion())
		if !sharded.GetRegion().Equal(r.GetRegion()) {
			t.Errorf("%T: shard(get_region) changed the region", r.Variant)
		}
	}
}

// TestReadShardNarrows tests that sharding to a subset yields exactly that
// region
func TestReadShardNarrows(t *testing.T) {
	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("a", "z"), Maximum: 10})

	sub := region.New(0, region.HashSize, region.NewKeyRange("f", "m"))
	sharded := r.Shard(sub)

	if !sharded.GetRegion().Equal(sub) {
		t.Errorf("sharded region %s, want %s", sharded.GetRegion(), sub)
	}

	// The original read is a value and must be untouched.
	if !r.GetRegion().Inner.Equal(region.NewKeyRange("a", "z")) {
		t.Error("sharding mutated the original read")
	}

	dr := NewDistributionRead(region.NewKeyRange("a", "z"), 4)
	shardedDr := dr.Shard(sub)
	if !shardedDr.GetRegion().Equal(sub) {
		t.Errorf("sharded distribution region %s, want %s", shardedDr.GetRegion(), sub)
	}
}

// TestReadShardSupersetViolation tests the sharding precondition
func TestReadShardSupersetViolation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("sharding outside the declared region should panic")
		}
	}()

	r := NewRangeRead(RangeRead{KeyRange: region.NewKeyRange("f", "m")})
	r.Shard(region.FromKeyRange(region.NewKeyRange("a", "z")))
}

// TestPointReadMonokeyViolation tests the point read sharding precondition
func TestPointReadMonokeyViolation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("sharding a point read to a foreign region should panic")
		}
	}()

	NewPointRead("foo").Shard(region.Monokey("bar"))
}

// TestWriteShard tests write region extraction and sharding
func TestWriteShard(t *testing.T) {
	writes := []Write{
		NewPointWrite("foo", []byte("{}")),
		NewPointDelete("bar"),
		NewPointModify(PointModify{Key: "baz", PrimaryKey: "id"}),
	}

	for _, w := range writes {
		reg := w.GetRegion()
		if reg.End-reg.Beg != 1 {
			t.Errorf("%T: write region should be a monokey region", w.Variant)
		}
		sharded := w.Shard(reg)
		if !sharded.GetRegion().Equal(reg) {
			t.Errorf("%T: shard(get_region) changed the region", w.Variant)
		}
	}
}

// TestBackfillChunkRegions tests chunk region extraction and recency
func TestBackfillChunkRegions(t *testing.T) {
	kv := NewKeyValueChunk(BackfillAtom{Key: "a", Value: []byte("{}"), Recency: 7})
	if rec, ok := kv.GetRecency(); !ok || rec != 7 {
		t.Error("key-value chunk should carry its atom's recency")
	}
	if !kv.GetRegion().Equal(region.Monokey("a")) {
		t.Error("key-value chunk region should be the atom's monokey region")
	}

	del := NewDeleteKeyChunk("b", 9)
	if rec, ok := del.GetRecency(); !ok || rec != 9 {
		t.Error("delete-key chunk should carry its recency")
	}

	rangeDel := NewDeleteRangeChunk(region.FromKeyRange(region.NewKeyRange("a", "z")))
	if _, ok := rangeDel.GetRecency(); ok {
		t.Error("delete-range chunks have no recency")
	}
}

// TestBackfillChunkShard tests chunk sharding
func TestBackfillChunkShard(t *testing.T) {
	// Key-level chunks pass through unchanged when covered.
	kv := NewKeyValueChunk(BackfillAtom{Key: "a", Recency: 1})
	sharded := kv.Shard(region.Universe())
	if !sharded.GetRegion().Equal(kv.GetRegion()) {
		t.Error("covered key-value chunk should shard to itself")
	}

	// Range deletes shard by intersection.
	rangeDel := NewDeleteRangeChunk(region.FromKeyRange(region.NewKeyRange("a", "z")))
	sub := region.New(0, region.HashSize/2, region.NewKeyRange("f", "m"))
	narrowed := rangeDel.Shard(sub)
	if !narrowed.GetRegion().Equal(sub) {
		t.Errorf("delete-range chunk sharded to %s, want %s", narrowed.GetRegion(), sub)
	}

	// Disjoint intersection is a caller bug.
	defer func() {
		if recover() == nil {
			t.Error("sharding a delete-range chunk to a disjoint region should panic")
		}
	}()
	rangeDel.Shard(region.FromKeyRange(region.NewKeyRange("0", "1")))
}
