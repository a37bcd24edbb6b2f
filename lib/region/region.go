package region

import "fmt"

// --------------------------------------------------------------------------
// Hash Universe
// --------------------------------------------------------------------------

const (
	// HashBits is the width of the hash universe. Hash intervals are
	// half-open [Beg, End) with 0 <= Beg <= End <= HashSize.
	HashBits = 63

	// HashSize is the size of the hash universe (2^HashBits).
	HashSize uint64 = 1 << HashBits

	// hashSeed is deliberately fixed: every machine in the cluster must map
	// a key to the same hash shard.
	hashSeed uint64 = 0x5bd1e995
)

// HashKey maps a key into the hash universe [0, HashSize).
//
// This uses the FNV-1a hash algorithm, which is fast and has good
// distribution.
func HashKey(key string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)

	hash := uint64(offset64) ^ hashSeed
	for i := 0; i < len(key); i++ {
		hash ^= uint64(key[i])
		hash *= prime64
	}

	return hash % HashSize
}

// --------------------------------------------------------------------------
// Region Type
// --------------------------------------------------------------------------

// Region is the subspace (hash interval x key range) over which an operation
// applies. The hash interval is half-open [Beg, End).
//
// Regions are values: they carry no identity and are never mutated after
// construction.
type Region struct {
	Beg   uint64   `json:"beg"`
	End   uint64   `json:"end"`
	Inner KeyRange `json:"inner"`
}

// New creates a region from an explicit hash interval and key range.
func New(beg, end uint64, inner KeyRange) Region {
	return Region{Beg: beg, End: end, Inner: inner}
}

// FromKeyRange lifts a key range into a region spanning the full hash
// universe.
func FromKeyRange(inner KeyRange) Region {
	return Region{Beg: 0, End: HashSize, Inner: inner}
}

// Universe returns the region covering every key on every hash shard.
func Universe() Region {
	return FromKeyRange(UniverseKeyRange())
}

// Monokey returns the region covering exactly the key k: its hash interval
// has width exactly 1 and its key range contains only k.
func Monokey(k string) Region {
	h := HashKey(k)
	return Region{Beg: h, End: h + 1, Inner: MonokeyRange(k)}
}

// CPUShardingSubspace partitions the hash universe into n equal-width
// intervals and returns the i-th one (0 <= i < n). The last subspace absorbs
// the division remainder so that the union of all subspaces covers the
// universe exactly.
func CPUShardingSubspace(i, n int) Region {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("region: cpu shard index %d out of [0, %d)", i, n))
	}

	// Width is computed first so the multiplication below cannot overflow.
	width := HashSize / uint64(n)

	beg := width * uint64(i)
	end := beg + width
	if i+1 == n {
		end = HashSize
	}

	return Region{Beg: beg, End: end, Inner: UniverseKeyRange()}
}

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// IsEmpty returns whether the region contains no (hash, key) points.
func (r Region) IsEmpty() bool {
	return r.Beg >= r.End || r.Inner.IsEmpty()
}

// Contains returns whether the key lies inside the region, i.e. its hash is
// inside the hash interval and the key is inside the key range.
func (r Region) Contains(key string) bool {
	h := HashKey(key)
	return r.Beg <= h && h < r.End && r.Inner.Contains(key)
}

// IsSuperset is componentwise: the hash interval and the key range of other
// must both be covered.
func (r Region) IsSuperset(other Region) bool {
	if other.IsEmpty() {
		return true
	}
	return r.Beg <= other.Beg && other.End <= r.End && r.Inner.IsSuperset(other.Inner)
}

// Equal returns whether both components are equal.
func (r Region) Equal(other Region) bool {
	if r.IsEmpty() && other.IsEmpty() {
		return true
	}
	return r.Beg == other.Beg && r.End == other.End && r.Inner.Equal(other.Inner)
}

// --------------------------------------------------------------------------
// Algebra
// --------------------------------------------------------------------------

// Intersect returns the region whose hash interval and key range are the
// intersections of the inputs. The result is empty iff either component
// intersection is empty; emptiness is a valid result, not an error.
func (r Region) Intersect(other Region) Region {
	out := Region{
		Beg:   max(r.Beg, other.Beg),
		End:   min(r.End, other.End),
		Inner: r.Inner.Intersect(other.Inner),
	}
	if out.IsEmpty() {
		return Region{}
	}
	return out
}

// String returns a human-readable representation for logs and asserts.
func (r Region) String() string {
	return fmt.Sprintf("region{[%d, %d) x %s}", r.Beg, r.End, r.Inner)
}
