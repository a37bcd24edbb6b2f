package btree

import "sync/atomic"

// --------------------------------------------------------------------------
// Transactions and Superblocks
// --------------------------------------------------------------------------

// Access is the mode a transaction opens the slice with.
type Access uint8

const (
	AccessRead Access = iota
	AccessWrite
)

// Transaction is the caller-owned token granting access to a slice for the
// duration of one operation. The core does not create or commit
// transactions; the transaction layer does.
type Transaction struct {
	Access Access
}

// NewTransaction creates a transaction token with the given access mode.
func NewTransaction(access Access) *Transaction {
	return &Transaction{Access: access}
}

// Superblock is the entry ticket into a slice's tree. It is released exactly
// once when the holder is done; releasing hands the slice to the next
// waiting operation.
type Superblock interface {
	Release()
}

// virtualSuperblock is a standalone superblock with no queue behind it.
type virtualSuperblock struct {
	released atomic.Bool
}

// NewSuperblock creates a standalone superblock.
func NewSuperblock() Superblock {
	return &virtualSuperblock{}
}

func (s *virtualSuperblock) Release() {
	if s.released.Swap(true) {
		panic("btree: superblock released twice")
	}
}

// --------------------------------------------------------------------------
// Refcounted Superblock
// --------------------------------------------------------------------------

// RefcountSuperblock shares one superblock between a fixed number of
// parallel holders. Each holder releases exactly once; the wrapped
// superblock is released when the last holder lets go.
type RefcountSuperblock struct {
	inner     Superblock
	remaining atomic.Int64
}

// NewRefcountSuperblock wraps inner for count parallel holders.
func NewRefcountSuperblock(inner Superblock, count int) *RefcountSuperblock {
	if count <= 0 {
		panic("btree: refcount superblock needs at least one holder")
	}
	rc := &RefcountSuperblock{inner: inner}
	rc.remaining.Store(int64(count))
	return rc
}

// Release gives up one holder's reference.
func (rc *RefcountSuperblock) Release() {
	left := rc.remaining.Add(-1)
	if left < 0 {
		panic("btree: refcount superblock released more often than its holder count")
	}
	if left == 0 {
		rc.inner.Release()
	}
}
