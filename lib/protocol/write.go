package protocol

import (
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Write Variants
// --------------------------------------------------------------------------

// ModifyOp selects how a point modify combines the mapping result with the
// stored document.
type ModifyOp uint8

const (
	ModifyUpdate ModifyOp = iota // Merge the mapping result into the document.
	ModifyMutate                 // Replace the document by the mapping result.
)

func (op ModifyOp) String() string {
	switch op {
	case ModifyUpdate:
		return "Update"
	case ModifyMutate:
		return "Mutate"
	default:
		return fmt.Sprintf("Unknown(%d)", op)
	}
}

// WriteVariant is the sealed set of write operations.
type WriteVariant interface {
	writeVariant()
}

// PointWrite stores a value under a key.
type PointWrite struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// PointModify atomically read-modify-writes a key by evaluating a
// user-supplied mapping against the stored document.
type PointModify struct {
	Key        string        `json:"key"`
	PrimaryKey string        `json:"primary_key"`
	Op         ModifyOp      `json:"op"`
	Mapping    query.Mapping `json:"mapping"`
	Scopes     query.Scopes  `json:"scopes,omitempty"`
}

// PointDelete removes a key.
type PointDelete struct {
	Key string `json:"key"`
}

func (PointWrite) writeVariant()  {}
func (PointModify) writeVariant() {}
func (PointDelete) writeVariant() {}

// Write is a tagged write operation.
type Write struct {
	Variant WriteVariant
}

// NewPointWrite wraps a point write.
func NewPointWrite(key string, value []byte) Write {
	return Write{Variant: PointWrite{Key: key, Value: value}}
}

// NewPointModify wraps a point modify.
func NewPointModify(pm PointModify) Write {
	return Write{Variant: pm}
}

// NewPointDelete wraps a point delete.
func NewPointDelete(key string) Write {
	return Write{Variant: PointDelete{Key: key}}
}

// --------------------------------------------------------------------------
// Region Extraction and Sharding
// --------------------------------------------------------------------------

// GetRegion returns the monokey region of the written key; every write
// variant is a point operation.
func (w Write) GetRegion() region.Region {
	switch v := w.Variant.(type) {
	case PointWrite:
		return region.Monokey(v.Key)
	case PointModify:
		return region.Monokey(v.Key)
	case PointDelete:
		return region.Monokey(v.Key)
	default:
		panic(fmt.Sprintf("protocol: unknown write variant %T", w.Variant))
	}
}

// Shard asserts that reg equals the write's monokey region and returns the
// write unchanged; point operations never straddle shards.
func (w Write) Shard(reg region.Region) Write {
	guarantee(w.GetRegion().Equal(reg), "point write sharded to %s which is not its monokey region", reg)
	return w
}

// --------------------------------------------------------------------------
// Unsharding
// --------------------------------------------------------------------------

// Unshard merges per-shard write responses. A write only ever executes on
// the single shard owning its key, so exactly one response is expected.
func (w Write) Unshard(responses []WriteResponse, _ *cluster.Context) WriteResponse {
	guarantee(len(responses) == 1, "write unshard expects exactly 1 response, got %d", len(responses))
	return responses[0]
}

// MultistoreUnshard merges write responses across hash shards; the behavior
// matches Unshard.
func (w Write) MultistoreUnshard(responses []WriteResponse, ctx *cluster.Context) WriteResponse {
	return w.Unshard(responses, ctx)
}
