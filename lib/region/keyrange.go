package region

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Key Constants
// --------------------------------------------------------------------------

const (
	// MaxKeySize is the maximum length of a store key in bytes.
	MaxKeySize = 250
)

// MaxKey is the largest representable store key. It is used as the
// "fully considered everything" watermark for unbounded ranges.
var MaxKey = strings.Repeat("\xff", MaxKeySize)

// --------------------------------------------------------------------------
// KeyRange Type
// --------------------------------------------------------------------------

// KeyRange is an interval over byte-string keys. The left bound is always
// closed. The right bound is either open (exclusive) or unbounded.
//
// The zero value is the empty range ["", "").
type KeyRange struct {
	Left      string `json:"left"`
	Right     string `json:"right,omitempty"`
	Unbounded bool   `json:"unbounded,omitempty"`
}

// NewKeyRange creates the half-open range [left, right).
func NewKeyRange(left, right string) KeyRange {
	return KeyRange{Left: left, Right: right}
}

// ClosedKeyRange creates the range [left, right] by extending the right
// bound to the next possible key. Keys of maximum length have no successor,
// in that case the range becomes unbounded on the right.
func ClosedKeyRange(left, right string) KeyRange {
	if len(right) >= MaxKeySize {
		return KeyRange{Left: left, Unbounded: true}
	}
	return KeyRange{Left: left, Right: right + "\x00"}
}

// UniverseKeyRange returns the range containing every key.
func UniverseKeyRange() KeyRange {
	return KeyRange{Unbounded: true}
}

// MonokeyRange returns the range containing exactly the key k.
func MonokeyRange(k string) KeyRange {
	return ClosedKeyRange(k, k)
}

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// IsEmpty returns whether the range contains no keys.
func (r KeyRange) IsEmpty() bool {
	return !r.Unbounded && r.Left >= r.Right
}

// Contains returns whether the key lies inside the range.
func (r KeyRange) Contains(key string) bool {
	if key < r.Left {
		return false
	}
	return r.Unbounded || key < r.Right
}

// IsSuperset returns whether every key of other is also contained in r.
// The empty range is a subset of everything.
func (r KeyRange) IsSuperset(other KeyRange) bool {
	if other.IsEmpty() {
		return true
	}
	if other.Left < r.Left {
		return false
	}
	if r.Unbounded {
		return true
	}
	if other.Unbounded {
		return false
	}
	return other.Right <= r.Right
}

// Equal returns whether both ranges contain exactly the same keys.
func (r KeyRange) Equal(other KeyRange) bool {
	if r.IsEmpty() && other.IsEmpty() {
		return true
	}
	if r.Left != other.Left || r.Unbounded != other.Unbounded {
		return false
	}
	return r.Unbounded || r.Right == other.Right
}

// --------------------------------------------------------------------------
// Algebra
// --------------------------------------------------------------------------

// Intersect returns the range of keys contained in both inputs.
func (r KeyRange) Intersect(other KeyRange) KeyRange {
	out := KeyRange{Left: max(r.Left, other.Left)}
	switch {
	case r.Unbounded && other.Unbounded:
		out.Unbounded = true
	case r.Unbounded:
		out.Right = other.Right
	case other.Unbounded:
		out.Right = r.Right
	default:
		out.Right = min(r.Right, other.Right)
	}
	if out.IsEmpty() {
		return KeyRange{}
	}
	return out
}

// LastKeyInRange returns the upper watermark of the range: the right bound
// for bounded ranges (the first key the range does not reach) and MaxKey for
// unbounded ones. Range scans use it as the "everything up to here has been
// considered" marker.
func (r KeyRange) LastKeyInRange() string {
	if r.Unbounded {
		return MaxKey
	}
	return r.Right
}

// Compare orders ranges by left bound, then right bound. Used for sorting
// per-shard responses back into key order.
func (r KeyRange) Compare(other KeyRange) int {
	if r.Left != other.Left {
		if r.Left < other.Left {
			return -1
		}
		return 1
	}
	if r.Unbounded != other.Unbounded {
		if other.Unbounded {
			return -1
		}
		return 1
	}
	if r.Right != other.Right {
		if r.Right < other.Right {
			return -1
		}
		return 1
	}
	return 0
}

// String returns a human-readable representation for logs and asserts.
func (r KeyRange) String() string {
	if r.Unbounded {
		return fmt.Sprintf("[%q, +inf)", r.Left)
	}
	return fmt.Sprintf("[%q, %q)", r.Left, r.Right)
}
