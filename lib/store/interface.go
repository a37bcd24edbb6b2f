package store

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// RegionTimestamp is one entry of a backfill start point: stream everything
// in Region that changed at or after Since.
type RegionTimestamp struct {
	Region region.Region
	Since  uint64
}

// ChunkFunc consumes the chunk stream of a backfill send. It is invoked from
// a single goroutine, in the order chunks leave the traversals.
type ChunkFunc func(protocol.BackfillChunk) error

// IStore is the per-shard protocol surface the routing layer drives. One
// store owns one CPU shard's slice; read and write execution, backfill
// sending/receiving and data reset all happen through it.
type IStore interface {
	// ProtocolRead executes a read against the shard's slice under the given
	// transaction. The returned error is non-nil only for interruption;
	// user-attributable failures live inside the response.
	ProtocolRead(read protocol.Read, txn *btree.Transaction, superblock btree.Superblock) (protocol.ReadResponse, error)

	// ProtocolWrite executes a write, stamping mutations with the strictly
	// monotonic transition timestamp supplied by the replication layer.
	ProtocolWrite(write protocol.Write, timestamp uint64, txn *btree.Transaction, superblock btree.Superblock) (protocol.WriteResponse, error)

	// ProtocolSendBackfill streams every change at or after each region's
	// start timestamp to the chunk callback, traversing regions in parallel.
	ProtocolSendBackfill(startPoint []RegionTimestamp, chunkFn ChunkFunc, superblock btree.Superblock, txn *btree.Transaction, progress *BackfillProgress, interrupt context.Context) error

	// ProtocolReceiveBackfill applies one backfill chunk.
	ProtocolReceiveBackfill(chunk protocol.BackfillChunk, txn *btree.Transaction, superblock btree.Superblock)

	// ProtocolResetData erases a region unconditionally.
	ProtocolResetData(reg region.Region, txn *btree.Transaction, superblock btree.Superblock)
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the operation-level error type the store surfaces to the routing
// layer: a return code plus a message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCInterrupted:
		errorCode = "Interrupted"
	case RetCInvalidOperation:
		errorCode = "InvalidOperation"
	default:
		errorCode = "Unknown"
	}

	return fmt.Sprintf("StoreError (code %s): %s", errorCode, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                   // 1: Operation failed due to an internal error.
	RetCInterrupted                     // 2: Operation aborted by the interrupt signal.
	RetCInvalidOperation                // 3: Invalid operation.
)
