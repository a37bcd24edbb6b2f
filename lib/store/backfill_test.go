package store

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// TestBackfillRoundTrip tests that applying a sent chunk stream on an empty
// receiver reproduces the sender's data
func TestBackfillRoundTrip(t *testing.T) {
	sender := testStore(t)
	receiver := testStore(t)

	docs := map[string]string{"a": `1`, "b": `2`, "c": `3`, "m": `4`}
	ts := uint64(0)
	for _, key := range []string{"a", "b", "c", "m"} {
		ts++
		mustWrite(t, sender, protocol.NewPointWrite(key, []byte(docs[key])), ts)
	}
	ts++
	mustWrite(t, sender, protocol.NewPointDelete("c"), ts)

	startPoint := []RegionTimestamp{{Region: region.Universe(), Since: 0}}

	txn := btree.NewTransaction(btree.AccessRead)
	progress := &BackfillProgress{}

	err := sender.ProtocolSendBackfill(startPoint, func(chunk protocol.BackfillChunk) error {
		receiver.ProtocolReceiveBackfill(chunk, btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())
		return nil
	}, btree.NewSuperblock(), txn, progress, context.Background())
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	// The receiver's range read must match the sender's.
	for _, s := range []*Store{sender, receiver} {
		resp := mustRead(t, s, protocol.NewRangeRead(protocol.RangeRead{
			KeyRange: region.UniverseKeyRange(),
			Maximum:  100,
		}))
		stream := resp.Variant.(protocol.RangeReadResponse).Result.Stream
		if len(stream) != 3 {
			t.Fatalf("expected 3 live rows, got %d", len(stream))
		}
		for i, key := range []string{"a", "b", "m"} {
			if stream[i].Key != key {
				t.Errorf("row %d: expected %q, got %q", i, key, stream[i].Key)
			}
		}
	}

	if progress.Fraction() < 1 {
		t.Errorf("completed backfill should report full progress, got %f", progress.Fraction())
	}
}

// TestBackfillIncremental tests that deletions since the start timestamp are
// replayed onto the receiver
func TestBackfillIncremental(t *testing.T) {
	sender := testStore(t)
	receiver := testStore(t)

	mustWrite(t, sender, protocol.NewPointWrite("a", []byte(`1`)), 1)
	mustWrite(t, receiver, protocol.NewPointWrite("a", []byte(`1`)), 1)
	mustWrite(t, receiver, protocol.NewPointWrite("b", []byte(`2`)), 2)

	// The sender deleted "b" after timestamp 2; the receiver still holds it.
	mustWrite(t, sender, protocol.NewPointWrite("b", []byte(`2`)), 2)
	mustWrite(t, sender, protocol.NewPointDelete("b"), 3)

	err := sender.ProtocolSendBackfill(
		[]RegionTimestamp{{Region: region.Universe(), Since: 3}},
		func(chunk protocol.BackfillChunk) error {
			receiver.ProtocolReceiveBackfill(chunk, btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())
			return nil
		},
		btree.NewSuperblock(), btree.NewTransaction(btree.AccessRead), nil, context.Background())
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	resp := mustRead(t, receiver, protocol.NewPointRead("b"))
	if resp.Variant.(protocol.PointReadResponse).Exists {
		t.Error("the replayed deletion should have removed 'b' from the receiver")
	}
}

// TestBackfillInterrupted tests the two-phase interrupt check
func TestBackfillInterrupted(t *testing.T) {
	sender := testStore(t)
	for c := byte('a'); c <= 'z'; c++ {
		mustWrite(t, sender, protocol.NewPointWrite(string(c), []byte(`1`)), uint64(c))
	}

	interrupt, cancel := context.WithCancel(context.Background())

	var chunks atomic.Int64
	err := sender.ProtocolSendBackfill(
		[]RegionTimestamp{
			{Region: region.CPUShardingSubspace(0, 2), Since: 1},
			{Region: region.CPUShardingSubspace(1, 2), Since: 1},
		},
		func(chunk protocol.BackfillChunk) error {
			if chunks.Add(1) == 1 {
				cancel()
			}
			return nil
		},
		btree.NewSuperblock(), btree.NewTransaction(btree.AccessRead), &BackfillProgress{}, interrupt)

	if err != query.ErrInterrupted {
		t.Fatalf("expected the interrupted error after all traversals unwound, got %v", err)
	}
}

// TestBackfillReleasesSuperblock tests the refcount contract: one release
// per parallel traversal, the wrapped superblock released exactly once
func TestBackfillReleasesSuperblock(t *testing.T) {
	sender := testStore(t)
	mustWrite(t, sender, protocol.NewPointWrite("a", []byte(`1`)), 1)

	sb := &countingSuperblock{}
	err := sender.ProtocolSendBackfill(
		[]RegionTimestamp{
			{Region: region.CPUShardingSubspace(0, 3), Since: 1},
			{Region: region.CPUShardingSubspace(1, 3), Since: 1},
			{Region: region.CPUShardingSubspace(2, 3), Since: 1},
		},
		func(protocol.BackfillChunk) error { return nil },
		sb, btree.NewTransaction(btree.AccessRead), nil, context.Background())
	if err != nil {
		t.Fatalf("backfill failed: %v", err)
	}

	if sb.releases.Load() != 1 {
		t.Errorf("the shared superblock should be released exactly once, got %d", sb.releases.Load())
	}
}

type countingSuperblock struct {
	releases atomic.Int64
}

func (s *countingSuperblock) Release() {
	s.releases.Add(1)
}

// TestResetData tests that a reset region reads empty
func TestResetData(t *testing.T) {
	s := testStore(t)
	mustWrite(t, s, protocol.NewPointWrite("a", []byte(`1`)), 1)
	mustWrite(t, s, protocol.NewPointWrite("b", []byte(`2`)), 2)

	s.ProtocolResetData(region.Universe(), btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())

	resp := mustRead(t, s, protocol.NewRangeRead(protocol.RangeRead{
		KeyRange: region.UniverseKeyRange(),
		Maximum:  10,
	}))
	if len(resp.Variant.(protocol.RangeReadResponse).Result.Stream) != 0 {
		t.Error("a reset region should read empty")
	}

	if s.Slice().Len() != 0 {
		t.Error("reset should erase entries physically")
	}
}

// TestDeleteRangeChunkTester tests that a received delete-range chunk only
// erases keys inside the chunk's hash interval
func TestDeleteRangeChunkTester(t *testing.T) {
	s := testStore(t)

	// Find two keys landing in different halves of the hash universe.
	half := region.CPUShardingSubspace(0, 2)
	var inKey, outKey string
	for c := byte('a'); c <= 'z'; c++ {
		key := string(c)
		if half.Contains(key) {
			if inKey == "" {
				inKey = key
			}
		} else if outKey == "" {
			outKey = key
		}
	}
	if inKey == "" || outKey == "" {
		t.Skip("hash did not split the test keys")
	}

	mustWrite(t, s, protocol.NewPointWrite(inKey, []byte(`1`)), 1)
	mustWrite(t, s, protocol.NewPointWrite(outKey, []byte(`2`)), 2)

	s.ProtocolReceiveBackfill(
		protocol.NewDeleteRangeChunk(half),
		btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())

	if _, ok := s.Slice().Get(inKey); ok {
		t.Errorf("%q is inside the chunk region and should be erased", inKey)
	}
	if _, ok := s.Slice().Get(outKey); !ok {
		t.Errorf("%q is outside the chunk's hash interval and should survive", outKey)
	}
}

// TestHashShardedRangeRead tests the end-to-end split/execute/merge flow
// across two hash shards
func TestHashShardedRangeRead(t *testing.T) {
	ctx := cluster.NewContext(cluster.ContextConfig{NumWorkers: 2})
	shards := []*Store{
		NewStore(btree.NewSlice(), ctx, 0),
		NewStore(btree.NewSlice(), ctx, 1),
	}
	subspaces := []region.Region{
		region.CPUShardingSubspace(0, 2),
		region.CPUShardingSubspace(1, 2),
	}

	// Route each write to the hash shard owning its key.
	ts := uint64(0)
	for key, doc := range map[string]string{"a": `1`, "b": `2`} {
		ts++
		w := protocol.NewPointWrite(key, []byte(doc))
		for i, sub := range subspaces {
			if sub.IsSuperset(w.GetRegion()) {
				mustWrite(t, shards[i], w.Shard(w.GetRegion()), ts)
			}
		}
	}

	// Execute the read on every hash shard, then merge.
	read := protocol.NewRangeRead(protocol.RangeRead{
		KeyRange: region.NewKeyRange("a", "z"),
		Maximum:  10,
	})

	responses := make([]protocol.ReadResponse, 0, len(shards))
	for i, shard := range shards {
		sharded := read.Shard(read.GetRegion().Intersect(subspaces[i]))
		responses = append(responses, mustRead(t, shard, sharded))
	}

	merged, err := read.MultistoreUnshard(responses, ctx, 0)
	if err != nil {
		t.Fatalf("multistore unshard failed: %v", err)
	}

	got := merged.Variant.(protocol.RangeReadResponse)
	if len(got.Result.Stream) != 2 {
		t.Fatalf("expected both rows after the merge, got %d", len(got.Result.Stream))
	}
	if got.LastConsideredKey != "z" {
		t.Errorf("no shard hit its page cap, watermark should be 'z', got %q", got.LastConsideredKey)
	}
	if got.Truncated {
		t.Error("merged response should not be truncated")
	}
}
