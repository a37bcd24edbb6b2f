package btree

import (
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Distribution Sampling
// --------------------------------------------------------------------------

// DistributionGet samples the key distribution starting at leftKey. The
// sample is depth-bounded: at most 2^maxDepth sample keys are returned, each
// counting the number of live keys it stands for.
//
// The scan runs from leftKey to the end of the tree and may overshoot the
// caller's range; the executor post-filters the returned counts.
func (s *Slice) DistributionGet(maxDepth int, leftKey string) protocol.DistributionReadResponse {
	maxSamples := 1
	for i := 0; i < maxDepth && maxSamples < s.tree.Len(); i++ {
		maxSamples *= 2
	}

	keys := make([]string, 0)
	s.ascendRange(region.KeyRange{Left: leftKey, Unbounded: true}, func(e entry) bool {
		if !e.deleted {
			keys = append(keys, e.key)
		}
		return true
	})

	resp := protocol.DistributionReadResponse{KeyCounts: make(map[string]int64)}
	if len(keys) == 0 {
		return resp
	}

	// Bucket the keyspace into at most maxSamples slabs; each sample key is
	// the first key of its slab and counts the slab's population. The first
	// slab is keyed at the scan's start key itself, so hash shards sampling
	// the same range agree on their first sample key no matter which actual
	// keys they hold.
	bucket := (len(keys) + maxSamples - 1) / maxSamples
	for start := 0; start < len(keys); start += bucket {
		end := start + bucket
		if end > len(keys) {
			end = len(keys)
		}
		sampleKey := keys[start]
		if start == 0 {
			sampleKey = leftKey
		}
		resp.KeyCounts[sampleKey] = int64(end - start)
	}

	return resp
}
