package btree

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// SoftCap is the default bound on the number of rows a single range scan
// considers before reporting truncation.
const SoftCap = 1000

// --------------------------------------------------------------------------
// Range Get
// --------------------------------------------------------------------------

// RGetSlice scans the key range in ascending order, pipes every live row
// through the transforms and folds it into the terminal (or collects it into
// a stream when there is none).
//
// The scan considers at most softCap rows; if the cap cuts the scan short
// the response is marked truncated and LastConsideredKey names the last row
// the scan looked at. Runtime errors raised by transforms or the terminal
// are captured into the response's result. The returned error is non-nil
// only for interruption.
func (s *Slice) RGetSlice(kr region.KeyRange, softCap int, transforms []protocol.Transform, terminal *protocol.Terminal, env *query.Env) (protocol.RangeReadResponse, error) {
	resp := protocol.RangeReadResponse{
		KeyRange:          kr,
		LastConsideredKey: kr.LastKeyInRange(),
	}

	acc, err := newTerminalAccumulator(terminal, env)
	if err != nil {
		return captureRGetError(resp, err)
	}

	considered := 0
	var scanErr error

	s.ascendRange(kr, func(e entry) bool {
		if e.deleted {
			return true
		}

		if softCap > 0 && considered >= softCap {
			resp.Truncated = true
			return false
		}
		considered++
		resp.LastConsideredKey = e.key

		value, err := decodeDocument(e.value)
		if err != nil {
			scanErr = err
			return false
		}

		value, keep, err := applyTransforms(transforms, value, env)
		if err != nil {
			scanErr = err
			return false
		}
		if !keep {
			return true
		}

		if err := acc.row(e.key, value); err != nil {
			scanErr = err
			return false
		}
		return true
	})

	if scanErr != nil {
		return captureRGetError(resp, scanErr)
	}

	if !resp.Truncated {
		resp.LastConsideredKey = kr.LastKeyInRange()
	}

	resp.Result = acc.result()
	return resp, nil
}

// captureRGetError folds a runtime error into the response and passes
// interruption through.
func captureRGetError(resp protocol.RangeReadResponse, err error) (protocol.RangeReadResponse, error) {
	if re, ok := query.AsRuntimeError(err); ok {
		resp.Result = protocol.ErrorResult(re)
		return resp, nil
	}
	return resp, err
}

// decodeDocument surfaces a stored document as a query value.
func decodeDocument(raw []byte) (query.Value, error) {
	var v query.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, query.NewRuntimeError(fmt.Sprintf("stored document is not valid JSON: %v", err), nil)
	}
	return v, nil
}

// applyTransforms runs the transformation pipeline over one row value.
// keep=false means a filter dropped the row.
func applyTransforms(transforms []protocol.Transform, value query.Value, env *query.Env) (query.Value, bool, error) {
	for _, tr := range transforms {
		switch tr.Type {
		case protocol.TransformMap:
			mapped, err := query.EvalMapping(tr.Mapping, value, env, nil)
			if err != nil {
				return nil, false, err
			}
			value = mapped

		case protocol.TransformFilter:
			verdict, err := query.EvalMapping(tr.Mapping, value, env, nil)
			if err != nil {
				return nil, false, err
			}
			keep, ok := verdict.(bool)
			if !ok {
				return nil, false, query.NewRuntimeError(fmt.Sprintf("filter predicate returned %T, not a boolean", verdict), nil)
			}
			if !keep {
				return nil, false, nil
			}

		default:
			return nil, false, query.NewRuntimeError(fmt.Sprintf("unknown transform type %s", tr.Type), nil)
		}
	}
	return value, true, nil
}

// --------------------------------------------------------------------------
// Terminal Accumulation
// --------------------------------------------------------------------------

// terminalAccumulator folds scanned rows into the shape the terminal
// dictates. Without a terminal it collects the stream.
type terminalAccumulator struct {
	terminal *protocol.Terminal
	env      *query.Env

	stream   protocol.Stream
	groups   protocol.Groups
	atom     query.Value
	length   uint64
	inserted uint64
}

func newTerminalAccumulator(terminal *protocol.Terminal, env *query.Env) (*terminalAccumulator, error) {
	acc := &terminalAccumulator{terminal: terminal, env: env}

	if terminal == nil {
		acc.stream = protocol.Stream{}
		return acc, nil
	}

	switch terminal.Type {
	case protocol.TerminalGroupedMapReduce:
		acc.groups = protocol.Groups{}
	case protocol.TerminalReduce:
		base, err := query.Eval(terminal.Reduction.Base, env, nil)
		if err != nil {
			return nil, err
		}
		acc.atom = base
	case protocol.TerminalLength, protocol.TerminalForEach:
		// Counters start at zero.
	default:
		return nil, query.NewRuntimeError(fmt.Sprintf("unknown terminal type %s", terminal.Type), nil)
	}

	return acc, nil
}

func (acc *terminalAccumulator) row(key string, value query.Value) error {
	if acc.terminal == nil {
		acc.stream = append(acc.stream, protocol.KeyValue{Key: key, Value: value})
		return nil
	}

	switch acc.terminal.Type {
	case protocol.TerminalGroupedMapReduce:
		return acc.groupedRow(value)

	case protocol.TerminalReduce:
		next, err := acc.reduce(acc.terminal.Reduction, acc.atom, value)
		if err != nil {
			return err
		}
		acc.atom = next
		return nil

	case protocol.TerminalLength:
		acc.length++
		return nil

	case protocol.TerminalForEach:
		// The per-row write bodies run in the full evaluator outside this
		// module; each row accounts for one insertion here.
		acc.inserted++
		return nil

	default:
		return query.NewRuntimeError(fmt.Sprintf("unknown terminal type %s", acc.terminal.Type), nil)
	}
}

func (acc *terminalAccumulator) groupedRow(value query.Value) error {
	groupValue, err := query.EvalMapping(acc.terminal.Grouping, value, acc.env, nil)
	if err != nil {
		return err
	}

	group, err := encodeGroupKey(groupValue)
	if err != nil {
		return err
	}

	current, ok := acc.groups[group]
	if !ok {
		base, err := query.Eval(acc.terminal.Reduction.Base, acc.env, nil)
		if err != nil {
			return err
		}
		current = base
	}

	next, err := acc.reduce(acc.terminal.Reduction, current, value)
	if err != nil {
		return err
	}
	acc.groups[group] = next
	return nil
}

// reduce evaluates the reduction body with var1 bound to the accumulator and
// var2 to the row, under a fresh child scope.
func (acc *terminalAccumulator) reduce(red query.Reduction, current, value query.Value) (query.Value, error) {
	restore := acc.env.PushScope()
	defer restore()

	acc.env.Scope().PutInScope(red.Var1, current)
	acc.env.Scope().PutInScope(red.Var2, value)
	return query.Eval(red.Body, acc.env, nil)
}

func (acc *terminalAccumulator) result() protocol.RangeResult {
	if acc.terminal == nil {
		return protocol.RangeResult{Type: protocol.ResultStream, Stream: acc.stream}
	}

	switch acc.terminal.Type {
	case protocol.TerminalGroupedMapReduce:
		return protocol.RangeResult{Type: protocol.ResultGroups, Groups: acc.groups}
	case protocol.TerminalReduce:
		return protocol.RangeResult{Type: protocol.ResultAtom, Atom: acc.atom}
	case protocol.TerminalLength:
		return protocol.RangeResult{Type: protocol.ResultLength, Length: acc.length}
	case protocol.TerminalForEach:
		return protocol.RangeResult{Type: protocol.ResultInserted, Inserted: acc.inserted}
	default:
		panic(fmt.Sprintf("btree: unknown terminal type %s", acc.terminal.Type))
	}
}

// encodeGroupKey canonicalizes a grouping value into a map key.
func encodeGroupKey(v query.Value) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", query.NewRuntimeError(fmt.Sprintf("grouping value is not serializable: %v", err), nil)
	}
	return string(raw), nil
}
