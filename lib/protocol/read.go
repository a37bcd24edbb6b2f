package protocol

import (
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// ProtocolName identifies this protocol on the wire.
const ProtocolName = "rdb"

// --------------------------------------------------------------------------
// Stream Transforms and Terminals
// --------------------------------------------------------------------------

// TransformType tags the per-row stream transformations a range read may
// carry.
type TransformType uint8

const (
	TransformMap    TransformType = iota // Replace each value by Mapping(value).
	TransformFilter                      // Keep values for which Mapping(value) is truthy.
)

func (tt TransformType) String() string {
	switch tt {
	case TransformMap:
		return "Map"
	case TransformFilter:
		return "Filter"
	default:
		return fmt.Sprintf("Unknown(%d)", tt)
	}
}

// Transform is one step of the transformation pipeline applied to every row
// of a range scan before the terminal sees it.
type Transform struct {
	Type    TransformType `json:"type"`
	Mapping query.Mapping `json:"mapping"`
}

// TerminalType tags the reduction applied at the end of a range scan.
type TerminalType uint8

const (
	TerminalGroupedMapReduce TerminalType = iota // Group rows, reduce each group.
	TerminalReduce                               // Fold all rows into one atom.
	TerminalLength                               // Count rows.
	TerminalForEach                              // Run writes per row, count insertions.
)

func (tt TerminalType) String() string {
	switch tt {
	case TerminalGroupedMapReduce:
		return "GroupedMapReduce"
	case TerminalReduce:
		return "Reduce"
	case TerminalLength:
		return "Length"
	case TerminalForEach:
		return "ForEach"
	default:
		return fmt.Sprintf("Unknown(%d)", tt)
	}
}

// Terminal describes the reduction at the end of a range scan. Which fields
// are used depends on the terminal type.
type Terminal struct {
	Type      TerminalType    `json:"type"`
	Grouping  query.Mapping   `json:"grouping,omitempty"`  // GroupedMapReduce: computes the group key
	Reduction query.Reduction `json:"reduction,omitempty"` // GroupedMapReduce, Reduce
}

// --------------------------------------------------------------------------
// Read Variants
// --------------------------------------------------------------------------

// ReadVariant is the sealed set of read operations.
type ReadVariant interface {
	readVariant()
}

// PointRead reads a single key.
type PointRead struct {
	Key string `json:"key"`
}

// RangeRead scans a key range, optionally transforming rows and reducing
// them with a terminal. Maximum bounds the page size per hash shard.
type RangeRead struct {
	KeyRange   region.KeyRange `json:"key_range"`
	Maximum    int             `json:"maximum"`
	Transforms []Transform     `json:"transforms,omitempty"`
	Terminal   *Terminal       `json:"terminal,omitempty"`
	Scopes     query.Scopes    `json:"scopes,omitempty"`
}

// DistributionRead samples the key distribution of a range down to the
// given depth.
type DistributionRead struct {
	Range    region.KeyRange `json:"range"`
	MaxDepth int             `json:"max_depth"`
}

func (PointRead) readVariant()        {}
func (RangeRead) readVariant()        {}
func (DistributionRead) readVariant() {}

// Read is a tagged read operation. Reads are values: sharding yields a new
// value with a narrowed region, the original is never mutated.
type Read struct {
	Variant ReadVariant
}

// NewPointRead wraps a point read.
func NewPointRead(key string) Read {
	return Read{Variant: PointRead{Key: key}}
}

// NewRangeRead wraps a range read.
func NewRangeRead(rr RangeRead) Read {
	return Read{Variant: rr}
}

// NewDistributionRead wraps a distribution read.
func NewDistributionRead(r region.KeyRange, maxDepth int) Read {
	return Read{Variant: DistributionRead{Range: r, MaxDepth: maxDepth}}
}

// --------------------------------------------------------------------------
// Region Extraction and Sharding
// --------------------------------------------------------------------------

// GetRegion returns the region the read touches: point reads project through
// the monokey region, range and distribution reads lift their key range over
// the full hash universe (hash narrowing happens during sharding).
func (r Read) GetRegion() region.Region {
	switch v := r.Variant.(type) {
	case PointRead:
		return region.Monokey(v.Key)
	case RangeRead:
		return region.FromKeyRange(v.KeyRange)
	case DistributionRead:
		return region.FromKeyRange(v.Range)
	default:
		panic(fmt.Sprintf("protocol: unknown read variant %T", r.Variant))
	}
}

// Shard returns a copy of the read narrowed to reg. For point reads reg must
// equal the monokey region; for range and distribution reads the declared
// region must cover reg, whose key range is substituted into the operation.
func (r Read) Shard(reg region.Region) Read {
	switch v := r.Variant.(type) {
	case PointRead:
		guarantee(region.Monokey(v.Key).Equal(reg), "point read sharded to %s which is not its monokey region", reg)
		return Read{Variant: v}

	case RangeRead:
		guarantee(r.GetRegion().IsSuperset(reg), "range read over %s sharded to non-subset %s", v.KeyRange, reg)
		sharded := v
		sharded.KeyRange = reg.Inner
		return Read{Variant: sharded}

	case DistributionRead:
		guarantee(r.GetRegion().IsSuperset(reg), "distribution read over %s sharded to non-subset %s", v.Range, reg)
		sharded := v
		sharded.Range = reg.Inner
		return Read{Variant: sharded}

	default:
		panic(fmt.Sprintf("protocol: unknown read variant %T", r.Variant))
	}
}
