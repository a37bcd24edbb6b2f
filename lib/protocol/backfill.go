package protocol

import (
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Backfill Atoms and Chunks
// --------------------------------------------------------------------------

// BackfillAtom is one live key-value pair streamed during a backfill.
// Recency is the monotonic replication timestamp of the value.
type BackfillAtom struct {
	Key     string `json:"key"`
	Value   []byte `json:"value"`
	Recency uint64 `json:"recency"`
}

// BackfillChunkVariant is the sealed set of backfill chunk operations.
type BackfillChunkVariant interface {
	backfillChunkVariant()
}

// DeleteKey streams a single-key deletion tombstone.
type DeleteKey struct {
	Key     string `json:"key"`
	Recency uint64 `json:"recency"`
}

// DeleteRange instructs the receiver to erase everything it holds inside the
// region before replaying newer data.
type DeleteRange struct {
	Range region.Region `json:"range"`
}

// KeyValuePair streams one live key-value pair.
type KeyValuePair struct {
	Atom BackfillAtom `json:"atom"`
}

func (DeleteKey) backfillChunkVariant()    {}
func (DeleteRange) backfillChunkVariant()  {}
func (KeyValuePair) backfillChunkVariant() {}

// BackfillChunk is one tagged element of a backfill stream.
type BackfillChunk struct {
	Variant BackfillChunkVariant
}

// NewDeleteKeyChunk wraps a single-key deletion.
func NewDeleteKeyChunk(key string, recency uint64) BackfillChunk {
	return BackfillChunk{Variant: DeleteKey{Key: key, Recency: recency}}
}

// NewDeleteRangeChunk wraps a region erase.
func NewDeleteRangeChunk(r region.Region) BackfillChunk {
	return BackfillChunk{Variant: DeleteRange{Range: r}}
}

// NewKeyValueChunk wraps a live key-value pair.
func NewKeyValueChunk(atom BackfillAtom) BackfillChunk {
	return BackfillChunk{Variant: KeyValuePair{Atom: atom}}
}

// --------------------------------------------------------------------------
// Region, Recency, Sharding
// --------------------------------------------------------------------------

// GetRegion returns the region the chunk touches: monokey for key-level
// chunks, the carried region for range deletes.
func (c BackfillChunk) GetRegion() region.Region {
	switch v := c.Variant.(type) {
	case DeleteKey:
		return region.Monokey(v.Key)
	case DeleteRange:
		return v.Range
	case KeyValuePair:
		return region.Monokey(v.Atom.Key)
	default:
		panic(fmt.Sprintf("protocol: unknown backfill chunk variant %T", c.Variant))
	}
}

// GetRecency returns the chunk's replication timestamp. Range deletes carry
// none, reported by ok=false.
func (c BackfillChunk) GetRecency() (recency uint64, ok bool) {
	switch v := c.Variant.(type) {
	case DeleteKey:
		return v.Recency, true
	case DeleteRange:
		return 0, false
	case KeyValuePair:
		return v.Atom.Recency, true
	default:
		panic(fmt.Sprintf("protocol: unknown backfill chunk variant %T", c.Variant))
	}
}

// Shard narrows the chunk to reg. Key-level chunks shard by monokey
// identity: reg must cover them and they pass through unchanged. Range
// deletes shard by intersection, which must be non-empty.
func (c BackfillChunk) Shard(reg region.Region) BackfillChunk {
	switch v := c.Variant.(type) {
	case DeleteKey, KeyValuePair:
		guarantee(reg.IsSuperset(c.GetRegion()), "backfill chunk %s sharded to non-covering region %s", c.GetRegion(), reg)
		return c

	case DeleteRange:
		inter := v.Range.Intersect(reg)
		guarantee(!inter.IsEmpty(), "delete-range chunk %s sharded to disjoint region %s", v.Range, reg)
		return NewDeleteRangeChunk(inter)

	default:
		panic(fmt.Sprintf("protocol: unknown backfill chunk variant %T", c.Variant))
	}
}
