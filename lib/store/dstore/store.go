package dstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/store"
	"github.com/ValentinKolb/dRDB/lib/store/dstore/internal"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	retries = 5
	log     = logger.GetLogger("store")
)

// --------------------------------------------------------------------------
// Replicated Store Client
// --------------------------------------------------------------------------

// IReplicatedStore is the write path through the raft log: point writes are
// proposed and applied on every replica, point reads are served
// linearizably by the state machine.
type IReplicatedStore interface {
	// Write proposes a protocol write and waits for it to commit.
	Write(w protocol.Write) error
	// Read serves a linearizable point read. With stale=true the local
	// replica answers without a quorum round.
	Read(key string, stale bool) (protocol.PointReadResponse, error)
}

// storeImpl encapsulates a Dragonboat NodeHost used to communicate with the
// state machine.
type storeImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// NewReplicatedStore creates a replicated store client for one raft shard.
func NewReplicatedStore(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) IReplicatedStore {
	return &storeImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IReplicatedStore)
// --------------------------------------------------------------------------

func (s *storeImpl) Write(w protocol.Write) error {
	cmd, err := internal.FromWrite(w)
	if err != nil {
		return store.NewError(store.RetCInvalidOperation, err.Error())
	}

	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		res, err := s.nh.SyncPropose(ctx, s.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncPropose: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return store.NewError(store.RetCInternalError, err.Error())
		}
		if res.Value != uint64(store.RetCSuccess) {
			return store.NewError(store.RetCode(res.Value), string(res.Data))
		}
		return nil
	}
	return store.NewError(store.RetCInternalError, "timeout")
}

func (s *storeImpl) Read(key string, stale bool) (protocol.PointReadResponse, error) {
	q := internal.Query{Type: internal.QueryTPointRead, Key: key}

	for i := 0; i < retries; i++ {
		var res interface{}
		var err error

		if stale {
			res, err = s.nh.StaleRead(s.shardID, q)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
			res, err = s.nh.SyncRead(ctx, s.shardID, q)
			cancel()
		}

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("SyncRead: system busy, retrying (%d/%d)...", i+1, retries)
			time.Sleep(s.timeout / 10)
			continue
		}
		if err != nil {
			return protocol.PointReadResponse{}, store.NewError(store.RetCInternalError, err.Error())
		}

		result, ok := res.(internal.QueryResult)
		if !ok {
			return protocol.PointReadResponse{}, store.NewError(store.RetCInternalError,
				fmt.Sprintf("unexpected type: received %T", res))
		}
		return protocol.PointReadResponse{Value: result.Value, Exists: result.Ok}, nil
	}
	return protocol.PointReadResponse{}, store.NewError(store.RetCInternalError, "timeout")
}
