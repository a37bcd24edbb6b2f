package dstore

import (
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/cluster"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/store"
	"github.com/ValentinKolb/dRDB/lib/store/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// RDBStateMachine is a state machine implementation for Dragonboat RAFT. It
// carries protocol writes through the raft log and applies them with the
// entry's log index as the strictly monotonic transition timestamp.
type RDBStateMachine struct {
	replicaID uint64
	shardID   uint64
	store     *store.Store
}

// CreateStateMachineFactory returns a function that Dragonboat uses to
// create a state machine per hosted shard. Each machine gets its own slice
// bound to worker 0 of the given cluster context.
func CreateStateMachineFactory(ctx *cluster.Context) func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		return &RDBStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			store:     store.NewStore(btree.NewSlice(), ctx, 0),
		}
	}
}

// Lookup handles read-only queries against the shard's slice.
func (fsm *RDBStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, store.NewError(store.RetCInternalError, fmt.Sprintf("invalid query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTPointRead:
		resp, err := fsm.store.ProtocolRead(
			protocol.NewPointRead(q.Key),
			btree.NewTransaction(btree.AccessRead),
			btree.NewSuperblock())
		if err != nil {
			return nil, store.NewError(store.RetCInterrupted, err.Error())
		}
		pr := resp.Variant.(protocol.PointReadResponse)
		return internal.QueryResult{Ok: pr.Exists, Value: pr.Value}, nil

	case internal.QueryTLen:
		return fsm.store.Slice().Len(), nil

	default:
		return nil, store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unknown query operation: %d", q.Type))
	}
}

// Update applies write commands to the shard's slice. The raft entry index
// becomes each write's transition timestamp, which keeps timestamps strictly
// monotonic across the replica set.
func (fsm *RDBStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInternalError), Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}

		write, err := cmd.ToWrite()
		if err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInvalidOperation), Data: []byte(err.Error())}
			continue
		}

		resp, err := fsm.store.ProtocolWrite(write, e.Index,
			btree.NewTransaction(btree.AccessWrite), btree.NewSuperblock())
		if err != nil {
			entries[idx].Result = sm.Result{Value: uint64(store.RetCInterrupted), Data: []byte(err.Error())}
			continue
		}

		entries[idx].Result = sm.Result{
			Value: uint64(store.RetCSuccess),
			Data:  encodeWriteStatus(resp),
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine batch of %d entries took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

// encodeWriteStatus flattens a write response into the result payload.
func encodeWriteStatus(resp protocol.WriteResponse) []byte {
	switch v := resp.Variant.(type) {
	case protocol.PointWriteResponse:
		return []byte(fmt.Sprintf("write: result=%d", v.Result))
	case protocol.PointModifyResponse:
		if v.Err != nil {
			return []byte(fmt.Sprintf("modify: result=%d err=%s", v.Result, v.Err.Msg))
		}
		return []byte(fmt.Sprintf("modify: result=%d", v.Result))
	case protocol.PointDeleteResponse:
		return []byte(fmt.Sprintf("delete: result=%d", v.Result))
	default:
		return []byte("unknown response")
	}
}

// PrepareSnapshot is not used; snapshots are cut fuzzily from the live tree.
func (fsm *RDBStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes the slice, tombstones included, to the writer.
func (fsm *RDBStateMachine) SaveSnapshot(_ interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	return fsm.store.Slice().Save(writer)
}

// RecoverFromSnapshot replaces the slice with a saved snapshot.
func (fsm *RDBStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	return fsm.store.Slice().Load(r)
}

// Close performs any necessary cleanup.
func (fsm *RDBStateMachine) Close() error {
	return nil
}
