package store

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var storeLogger = logger.GetLogger("store")

// Operation counters, labelled by variant.
var (
	pointReadsTotal        = metrics.GetOrCreateCounter(`drdb_store_reads_total{type="point"}`)
	rangeReadsTotal        = metrics.GetOrCreateCounter(`drdb_store_reads_total{type="range"}`)
	distributionReadsTotal = metrics.GetOrCreateCounter(`drdb_store_reads_total{type="distribution"}`)
	pointWritesTotal       = metrics.GetOrCreateCounter(`drdb_store_writes_total{type="write"}`)
	pointModifiesTotal     = metrics.GetOrCreateCounter(`drdb_store_writes_total{type="modify"}`)
	pointDeletesTotal      = metrics.GetOrCreateCounter(`drdb_store_writes_total{type="delete"}`)
)

// --------------------------------------------------------------------------
// Store
// --------------------------------------------------------------------------

// Store executes protocol operations against one CPU shard's slice. It is
// bound to the worker that owns the slice; every call must run on that
// worker.
type Store struct {
	slice  *btree.Slice
	ctx    *cluster.Context
	worker int
}

// NewStore creates the store for one CPU shard.
func NewStore(slice *btree.Slice, ctx *cluster.Context, worker int) *Store {
	return &Store{slice: slice, ctx: ctx, worker: worker}
}

var _ IStore = (*Store)(nil)

// Slice exposes the underlying slice to the node wiring; tests use it to
// inspect engine state directly.
func (s *Store) Slice() *btree.Slice {
	return s.slice
}

// Worker returns the worker this store is bound to.
func (s *Store) Worker() int {
	return s.worker
}

// --------------------------------------------------------------------------
// Read Execution (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *Store) ProtocolRead(read protocol.Read, _ *btree.Transaction, _ btree.Superblock) (protocol.ReadResponse, error) {
	switch v := read.Variant.(type) {
	case protocol.PointRead:
		pointReadsTotal.Inc()
		value, ok := s.slice.Get(v.Key)
		return protocol.ReadResponse{Variant: protocol.PointReadResponse{Value: value, Exists: ok}}, nil

	case protocol.RangeRead:
		rangeReadsTotal.Inc()
		env := s.ctx.NewEnv(s.worker, v.Scopes)
		defer env.Close()

		softCap := btree.SoftCap
		if v.Maximum > 0 && v.Maximum < softCap {
			softCap = v.Maximum
		}

		resp, err := s.slice.RGetSlice(v.KeyRange, softCap, v.Transforms, v.Terminal, env)
		if err != nil {
			return protocol.ReadResponse{}, err
		}
		return protocol.ReadResponse{Variant: resp}, nil

	case protocol.DistributionRead:
		distributionReadsTotal.Inc()
		resp := s.slice.DistributionGet(v.MaxDepth, v.Range.Left)

		// The engine samples from the left key onward and may overshoot the
		// requested range; drop the samples that landed outside it.
		for key := range resp.KeyCounts {
			if !v.Range.Contains(key) {
				delete(resp.KeyCounts, key)
			}
		}
		return protocol.ReadResponse{Variant: resp}, nil

	default:
		panic(fmt.Sprintf("store: unknown read variant %T", read.Variant))
	}
}

// --------------------------------------------------------------------------
// Write Execution (docu see store.IStore)
// --------------------------------------------------------------------------

func (s *Store) ProtocolWrite(write protocol.Write, timestamp uint64, _ *btree.Transaction, _ btree.Superblock) (protocol.WriteResponse, error) {
	switch v := write.Variant.(type) {
	case protocol.PointWrite:
		pointWritesTotal.Inc()
		s.slice.Set(v.Key, v.Value, timestamp)
		return protocol.WriteResponse{Variant: protocol.PointWriteResponse{Result: protocol.WriteStored}}, nil

	case protocol.PointModify:
		pointModifiesTotal.Inc()
		return s.executeModify(v, timestamp)

	case protocol.PointDelete:
		pointDeletesTotal.Inc()
		existed := s.slice.Delete(v.Key, timestamp)
		result := protocol.DeleteMissing
		if existed {
			result = protocol.DeleteDeleted
		}
		return protocol.WriteResponse{Variant: protocol.PointDeleteResponse{Result: result}}, nil

	default:
		panic(fmt.Sprintf("store: unknown write variant %T", write.Variant))
	}
}

// executeModify atomically read-modify-writes one key by evaluating the
// user-supplied mapping against the stored document.
func (s *Store) executeModify(m protocol.PointModify, timestamp uint64) (protocol.WriteResponse, error) {
	raw, ok := s.slice.Get(m.Key)
	if !ok {
		return protocol.WriteResponse{Variant: protocol.PointModifyResponse{Result: protocol.ModifySkipped}}, nil
	}

	env := s.ctx.NewEnv(s.worker, m.Scopes)
	defer env.Close()

	doc, mapped, err := evalModifyMapping(m, raw, env)
	if err != nil {
		if re, ok := query.AsRuntimeError(err); ok {
			return protocol.WriteResponse{Variant: protocol.PointModifyResponse{Result: protocol.ModifyFailed, Err: re}}, nil
		}
		return protocol.WriteResponse{}, err
	}

	merged := applyModifyOp(m.Op, doc, mapped)
	encoded, encErr := json.Marshal(merged)
	if encErr != nil {
		re := query.NewRuntimeError(fmt.Sprintf("mapping result is not serializable: %v", encErr), nil)
		return protocol.WriteResponse{Variant: protocol.PointModifyResponse{Result: protocol.ModifyFailed, Err: re}}, nil
	}

	s.slice.Set(m.Key, encoded, timestamp)
	return protocol.WriteResponse{Variant: protocol.PointModifyResponse{Result: protocol.ModifyModified}}, nil
}

// evalModifyMapping decodes the stored document and runs the mapping over it
// under a fresh child scope.
func evalModifyMapping(m protocol.PointModify, raw []byte, env *query.Env) (doc, mapped query.Value, err error) {
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, query.NewRuntimeError(fmt.Sprintf("stored document is not valid JSON: %v", err), nil)
	}

	mapped, err = query.EvalMapping(m.Mapping, doc, env, query.Backtrace{"modify"})
	if err != nil {
		return nil, nil, err
	}
	return doc, mapped, nil
}

// applyModifyOp combines the mapping result with the stored document.
func applyModifyOp(op protocol.ModifyOp, doc, mapped query.Value) query.Value {
	if op != protocol.ModifyUpdate {
		return mapped
	}

	// Update merges object fields; for non-objects it degrades to replace.
	docObj, docOk := doc.(map[string]query.Value)
	mappedObj, mappedOk := mapped.(map[string]query.Value)
	if !docOk || !mappedOk {
		return mapped
	}

	merged := make(map[string]query.Value, len(docObj)+len(mappedObj))
	for k, v := range docObj {
		merged[k] = v
	}
	for k, v := range mappedObj {
		merged[k] = v
	}
	return merged
}
