package protocol

import (
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/cluster"
)

// --------------------------------------------------------------------------
// Multistore Unshard (hash shards of the same key range)
// --------------------------------------------------------------------------

// MultistoreUnshard merges responses coming from different hash shards of
// the same key range. Point reads behave as in Unshard; range reads
// reconcile the last considered key across shards; distribution reads scale
// the coarsest sample (the one with the fewest keys) instead of concatenating.
func (r Read) MultistoreUnshard(responses []ReadResponse, ctx *cluster.Context, worker int) (ReadResponse, error) {
	switch v := r.Variant.(type) {
	case PointRead:
		return r.Unshard(responses, ctx, worker)

	case RangeRead:
		env := ctx.NewEnv(worker, v.Scopes)
		defer env.Close()
		merged, err := mergeRangeRead(r, v, responses, env, true)
		if err != nil {
			return ReadResponse{}, err
		}
		return ReadResponse{Variant: merged}, nil

	case DistributionRead:
		return ReadResponse{Variant: mergeHashShardDistribution(responses)}, nil

	default:
		panic(fmt.Sprintf("protocol: unknown read variant %T", r.Variant))
	}
}

// mergeHashShardStreams merges vanilla range scans across hash shards.
//
// Each hash shard returns the densest prefix of the keys it holds, so the
// per-shard last-considered watermarks disagree. The merged watermark must
// be one every shard has fully scanned up to: the minimum among the shards
// that hit their page cap. A shard that returned fewer than Maximum rows ran
// out of data and has implicitly considered the whole range, so it does not
// lower the bound. Rows past the merged watermark are trimmed, otherwise the
// next page would skip keys in sparser hash shards.
func mergeHashShardStreams(rg RangeRead, pieces []RangeReadResponse, out *RangeReadResponse) {
	out.LastConsideredKey = out.KeyRange.LastKeyInRange()

	for _, piece := range pieces {
		guarantee(piece.Result.Type == ResultStream, "stream merge got %s piece", piece.Result.Type)

		if rg.Maximum > 0 && len(piece.Result.Stream) == rg.Maximum {
			if piece.LastConsideredKey < out.LastConsideredKey {
				out.LastConsideredKey = piece.LastConsideredKey
			}
		}
	}

	stream := Stream{}
	for _, piece := range pieces {
		for _, row := range piece.Result.Stream {
			// Trim the rows that went past the merged watermark.
			if row.Key <= out.LastConsideredKey {
				stream = append(stream, row)
			}
		}
		out.Truncated = out.Truncated || piece.Truncated
	}

	out.Result = RangeResult{Type: ResultStream, Stream: stream}
}

// mergeHashShardDistribution merges distribution samples across hash shards
// of the same key range. Every shard sampled the same key slab, so instead
// of concatenating, the piece with the fewest sampled keys (the coarsest
// sample) is selected and its counts are scaled up to the total population.
func mergeHashShardDistribution(responses []ReadResponse) DistributionReadResponse {
	pieces := distributionPieces(responses)
	guarantee(len(pieces) > 1, "multistore distribution unshard expects >= 2 pieces, got %d", len(pieces))

	// Hash shards of one key range all start sampling at the same key.
	if len(pieces[0].KeyCounts) > 0 && len(pieces[1].KeyCounts) > 0 {
		guarantee(pieces[0].SortedKeys()[0] == pieces[1].SortedKeys()[0],
			"key-range-sharded distribution responses routed to multistore unshard")
	}

	var totalNumKeys int64
	selected := pieces[0]
	for _, piece := range pieces {
		totalNumKeys += piece.TotalKeys()
		if len(piece.KeyCounts) < len(selected.KeyCounts) {
			selected = piece
		}
	}

	totalKeysInRes := selected.TotalKeys()
	if totalKeysInRes == 0 {
		return selected
	}

	scaleFactor := float64(totalNumKeys) / float64(totalKeysInRes)

	// Directly provable from the selection above.
	guarantee(scaleFactor >= 1.0, "distribution scale factor %f < 1", scaleFactor)

	out := DistributionReadResponse{KeyCounts: make(map[string]int64, len(selected.KeyCounts))}
	for key, count := range selected.KeyCounts {
		out.KeyCounts[key] = int64(float64(count) * scaleFactor)
	}
	return out
}
