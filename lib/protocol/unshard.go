package protocol

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/query"
)

// --------------------------------------------------------------------------
// Single-Store Unshard (key-range shards)
// --------------------------------------------------------------------------

// Unshard merges per-shard responses of one logical read executed across
// key-range shards. All responses must be of the read's own variant.
//
// The returned error is non-nil only when the interrupt signal fired during
// reduction evaluation; runtime errors raised by user expressions are
// captured into the merged result instead.
func (r Read) Unshard(responses []ReadResponse, ctx *cluster.Context, worker int) (ReadResponse, error) {
	switch v := r.Variant.(type) {
	case PointRead:
		guarantee(len(responses) == 1, "point read unshard expects exactly 1 response, got %d", len(responses))
		_, ok := responses[0].Variant.(PointReadResponse)
		guarantee(ok, "point read unshard got %T", responses[0].Variant)
		return responses[0], nil

	case RangeRead:
		env := ctx.NewEnv(worker, v.Scopes)
		defer env.Close()
		merged, err := mergeRangeRead(r, v, responses, env, false)
		if err != nil {
			return ReadResponse{}, err
		}
		return ReadResponse{Variant: merged}, nil

	case DistributionRead:
		return ReadResponse{Variant: mergeDistributionPieces(responses)}, nil

	default:
		panic(fmt.Sprintf("protocol: unknown read variant %T", r.Variant))
	}
}

// mergeDistributionPieces concatenates distribution samples coming from
// disjoint key-range shards.
func mergeDistributionPieces(responses []ReadResponse) DistributionReadResponse {
	guarantee(len(responses) > 0, "distribution unshard got no responses")

	pieces := distributionPieces(responses)

	// Two pieces sharing their first key would mean hash shards of the same
	// key range; those belong in MultistoreUnshard.
	if len(pieces) > 1 && len(pieces[0].KeyCounts) > 0 && len(pieces[1].KeyCounts) > 0 {
		guarantee(pieces[0].SortedKeys()[0] != pieces[1].SortedKeys()[0],
			"hash-sharded distribution responses routed to single-store unshard")
	}

	out := DistributionReadResponse{KeyCounts: make(map[string]int64)}
	for _, piece := range pieces {
		for key, count := range piece.KeyCounts {
			_, dup := out.KeyCounts[key]
			guarantee(!dup, "key %q repeated across key-range shards", key)
			out.KeyCounts[key] = count
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Shared Range Read Merging
// --------------------------------------------------------------------------

// rangePieces extracts and orders the per-shard range responses by their key
// range, so merging is deterministic in the shard input order.
func rangePieces(responses []ReadResponse) []RangeReadResponse {
	pieces := make([]RangeReadResponse, 0, len(responses))
	for _, resp := range responses {
		piece, ok := resp.Variant.(RangeReadResponse)
		guarantee(ok, "range read unshard got %T", resp.Variant)
		pieces = append(pieces, piece)
	}
	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].KeyRange.Compare(pieces[j].KeyRange) < 0
	})
	return pieces
}

func distributionPieces(responses []ReadResponse) []DistributionReadResponse {
	pieces := make([]DistributionReadResponse, 0, len(responses))
	for _, resp := range responses {
		piece, ok := resp.Variant.(DistributionReadResponse)
		guarantee(ok, "distribution read unshard got %T", resp.Variant)
		pieces = append(pieces, piece)
	}
	return pieces
}

// mergeRangeRead merges range read pieces. The multistore flag selects the
// hash-shard stream reconciliation of MultistoreUnshard over plain
// concatenation.
func mergeRangeRead(r Read, rg RangeRead, responses []ReadResponse, env *query.Env, multistore bool) (RangeReadResponse, error) {
	declared := r.GetRegion().Inner

	out := RangeReadResponse{
		KeyRange:          declared,
		LastConsideredKey: declared.Left,
	}

	pieces := rangePieces(responses)

	// A piece that already failed wins over everything else.
	for _, piece := range pieces {
		if piece.Result.Type == ResultError {
			out.Result = ErrorResult(piece.Result.Err)
			return out, nil
		}
	}

	if rg.Terminal == nil {
		if multistore {
			mergeHashShardStreams(rg, pieces, &out)
		} else {
			mergeKeyRangeStreams(pieces, &out)
		}
		return out, nil
	}

	result, err := mergeTerminal(*rg.Terminal, pieces, env)
	if err != nil {
		if re, ok := query.AsRuntimeError(err); ok {
			out.Result = ErrorResult(re)
			return out, nil
		}
		// Interruption is never folded into the result.
		return out, err
	}

	out.Result = result
	return out, nil
}

// mergeKeyRangeStreams concatenates streams from disjoint key-range shards
// in key order. Note that the page limit is ignored when recombining; the
// merged stream can exceed Maximum and upstream layers clip if needed.
func mergeKeyRangeStreams(pieces []RangeReadResponse, out *RangeReadResponse) {
	stream := Stream{}
	for _, piece := range pieces {
		guarantee(piece.Result.Type == ResultStream, "stream merge got %s piece", piece.Result.Type)

		stream = append(stream, piece.Result.Stream...)
		out.Truncated = out.Truncated || piece.Truncated

		if out.LastConsideredKey < piece.LastConsideredKey {
			out.LastConsideredKey = piece.LastConsideredKey
		}
	}
	out.Result = RangeResult{Type: ResultStream, Stream: stream}
}

// --------------------------------------------------------------------------
// Terminal Merging (shared by both unshard flavors)
// --------------------------------------------------------------------------

// mergeTerminal combines per-shard terminal results by re-entering the
// reduction on the partial results. Pieces are folded left-to-right in key
// range order; for a non-associative reduction body the outcome depends on
// that order, which is not a guarantee of this layer.
func mergeTerminal(terminal Terminal, pieces []RangeReadResponse, env *query.Env) (RangeResult, error) {
	switch terminal.Type {
	case TerminalGroupedMapReduce:
		return mergeGroupedMapReduce(terminal.Reduction, pieces, env)

	case TerminalReduce:
		return mergeReduction(terminal.Reduction, pieces, env)

	case TerminalLength:
		var total uint64
		for _, piece := range pieces {
			guarantee(piece.Result.Type == ResultLength, "length merge got %s piece", piece.Result.Type)
			total += piece.Result.Length
		}
		return RangeResult{Type: ResultLength, Length: total}, nil

	case TerminalForEach:
		var total uint64
		for _, piece := range pieces {
			guarantee(piece.Result.Type == ResultInserted, "for-each merge got %s piece", piece.Result.Type)
			total += piece.Result.Inserted
		}
		return RangeResult{Type: ResultInserted, Inserted: total}, nil

	default:
		panic(fmt.Sprintf("protocol: unknown terminal type %s", terminal.Type))
	}
}

// mergeGroupedMapReduce folds each shard's per-group partials into the
// merged groups, evaluating the reduction body under a fresh child scope per
// group iteration.
func mergeGroupedMapReduce(red query.Reduction, pieces []RangeReadResponse, env *query.Env) (RangeResult, error) {
	var bt query.Backtrace

	merged := Groups{}
	for _, piece := range pieces {
		guarantee(piece.Result.Type == ResultGroups, "grouped map-reduce merge got %s piece", piece.Result.Type)

		groups := piece.Result.Groups
		for _, group := range groups.SortedKeys() {
			restore := env.PushScope()

			acc, ok := merged[group]
			if !ok {
				base, err := query.Eval(red.Base, env, bt)
				if err != nil {
					restore()
					return RangeResult{}, err
				}
				acc = base
			}

			env.Scope().PutInScope(red.Var1, acc)
			env.Scope().PutInScope(red.Var2, groups[group])

			next, err := query.Eval(red.Body, env, bt)
			restore()
			if err != nil {
				return RangeResult{}, err
			}
			merged[group] = next
		}
	}

	return RangeResult{Type: ResultGroups, Groups: merged}, nil
}

// mergeReduction folds each shard's atom into a single accumulator.
func mergeReduction(red query.Reduction, pieces []RangeReadResponse, env *query.Env) (RangeResult, error) {
	var bt query.Backtrace

	acc, err := query.Eval(red.Base, env, bt)
	if err != nil {
		return RangeResult{}, err
	}

	for _, piece := range pieces {
		guarantee(piece.Result.Type == ResultAtom, "reduction merge got %s piece", piece.Result.Type)

		restore := env.PushScope()
		env.Scope().PutInScope(red.Var1, acc)
		env.Scope().PutInScope(red.Var2, piece.Result.Atom)

		next, evalErr := query.Eval(red.Body, env, bt)
		restore()
		if evalErr != nil {
			return RangeResult{}, evalErr
		}
		acc = next
	}

	return RangeResult{Type: ResultAtom, Atom: acc}, nil
}
