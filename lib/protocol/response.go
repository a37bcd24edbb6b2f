package protocol

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Range Read Results
// --------------------------------------------------------------------------

// KeyValue is one row of a range scan stream.
type KeyValue struct {
	Key   string      `json:"key"`
	Value query.Value `json:"value"`
}

// Stream is an ordered sequence of rows.
type Stream []KeyValue

// Groups maps a grouping key to its aggregated value.
type Groups map[string]query.Value

// SortedKeys returns the group keys in ascending order, for deterministic
// iteration.
func (g Groups) SortedKeys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RangeResultType tags the result union of a range read.
type RangeResultType uint8

const (
	ResultStream   RangeResultType = iota // Ordered rows (no terminal).
	ResultGroups                          // GroupedMapReduce terminal.
	ResultAtom                            // Reduce terminal.
	ResultLength                          // Length terminal.
	ResultInserted                        // ForEach terminal.
	ResultError                           // A runtime error captured as data.
)

func (rt RangeResultType) String() string {
	switch rt {
	case ResultStream:
		return "Stream"
	case ResultGroups:
		return "Groups"
	case ResultAtom:
		return "Atom"
	case ResultLength:
		return "Length"
	case ResultInserted:
		return "Inserted"
	case ResultError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", rt)
	}
}

// RangeResult is the tagged result of a range read. Which fields are used
// depends on the result type.
type RangeResult struct {
	Type     RangeResultType     `json:"type"`
	Stream   Stream              `json:"stream,omitempty"`
	Groups   Groups              `json:"groups,omitempty"`
	Atom     query.Value         `json:"atom,omitempty"`
	Length   uint64              `json:"length,omitempty"`
	Inserted uint64              `json:"inserted,omitempty"`
	Err      *query.RuntimeError `json:"err,omitempty"`
}

// ErrorResult wraps a runtime error as a range result.
func ErrorResult(err *query.RuntimeError) RangeResult {
	return RangeResult{Type: ResultError, Err: err}
}

// --------------------------------------------------------------------------
// Read Responses
// --------------------------------------------------------------------------

// ReadResponseVariant is the sealed set of read responses.
type ReadResponseVariant interface {
	readResponseVariant()
}

// PointReadResponse carries the stored value, or Exists=false for an absent
// key.
type PointReadResponse struct {
	Value  []byte `json:"value,omitempty"`
	Exists bool   `json:"exists"`
}

// RangeReadResponse is the per-shard (and merged) response of a range read.
// KeyRange always equals the region the read executed over;
// LastConsideredKey is the watermark up to which the scan has fully
// considered results.
type RangeReadResponse struct {
	Result            RangeResult     `json:"result"`
	Truncated         bool            `json:"truncated"`
	KeyRange          region.KeyRange `json:"key_range"`
	LastConsideredKey string          `json:"last_considered_key"`
}

// DistributionReadResponse carries sampled key counts, ordered by key.
type DistributionReadResponse struct {
	KeyCounts map[string]int64 `json:"key_counts"`
}

// SortedKeys returns the sampled keys in ascending order.
func (r DistributionReadResponse) SortedKeys() []string {
	keys := make([]string, 0, len(r.KeyCounts))
	for k := range r.KeyCounts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalKeys returns the sum of all sampled counts.
func (r DistributionReadResponse) TotalKeys() int64 {
	var total int64
	for _, n := range r.KeyCounts {
		total += n
	}
	return total
}

func (PointReadResponse) readResponseVariant()        {}
func (RangeReadResponse) readResponseVariant()        {}
func (DistributionReadResponse) readResponseVariant() {}

// ReadResponse is a tagged read response.
type ReadResponse struct {
	Variant ReadResponseVariant
}

// --------------------------------------------------------------------------
// Write Responses
// --------------------------------------------------------------------------

// PointWriteResult reports the outcome of a point write.
type PointWriteResult uint8

const (
	WriteStored    PointWriteResult = iota // Value stored.
	WriteDuplicate                         // Key existed and overwrite was off.
)

// PointModifyResult reports the outcome of a point modify.
type PointModifyResult uint8

const (
	ModifyModified PointModifyResult = iota // Mapping applied and stored.
	ModifySkipped                           // Key absent, nothing to modify.
	ModifyFailed                            // Mapping raised a runtime error.
)

// PointDeleteResult reports the outcome of a point delete.
type PointDeleteResult uint8

const (
	DeleteDeleted PointDeleteResult = iota // Key removed.
	DeleteMissing                          // Key was absent.
)

// WriteResponseVariant is the sealed set of write responses.
type WriteResponseVariant interface {
	writeResponseVariant()
}

// PointWriteResponse is the status of a point write.
type PointWriteResponse struct {
	Result PointWriteResult `json:"result"`
}

// PointModifyResponse is the status of a point modify. Err is set iff the
// mapping raised a runtime error.
type PointModifyResponse struct {
	Result PointModifyResult   `json:"result"`
	Err    *query.RuntimeError `json:"err,omitempty"`
}

// PointDeleteResponse is the status of a point delete.
type PointDeleteResponse struct {
	Result PointDeleteResult `json:"result"`
}

func (PointWriteResponse) writeResponseVariant()  {}
func (PointModifyResponse) writeResponseVariant() {}
func (PointDeleteResponse) writeResponseVariant() {}

// WriteResponse is a tagged write response.
type WriteResponse struct {
	Variant WriteResponseVariant
}
