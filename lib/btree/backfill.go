package btree

import (
	"context"
	"sync/atomic"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Backfill Traversal
// --------------------------------------------------------------------------

// BackfillCallback receives the events of one backfill traversal, in key
// order.
type BackfillCallback interface {
	// OnDeleteRange reports that the receiver must erase the key range
	// before replaying the traversal's newer data.
	OnDeleteRange(kr region.KeyRange) error

	// OnDeletion reports a single-key deletion tombstone.
	OnDeletion(key string, recency uint64) error

	// OnKeyValue reports a live key-value pair.
	OnKeyValue(atom protocol.BackfillAtom) error
}

// Backfill traverses the key range and reports everything that changed at or
// after the since timestamp. A since of zero is a full resync: the receiver
// is told to erase the range first and every live pair is streamed.
//
// The traversal checks the interrupt signal between entries and returns its
// error when it fires; callback errors are passed through unchanged.
func (s *Slice) Backfill(kr region.KeyRange, since uint64, cb BackfillCallback, progress *TraversalProgress, interrupt context.Context) error {
	if since == 0 {
		if err := cb.OnDeleteRange(kr); err != nil {
			return err
		}
	}

	var err error
	s.ascendRange(kr, func(e entry) bool {
		if interrupt != nil && interrupt.Err() != nil {
			err = interrupt.Err()
			return false
		}

		defer progress.Step()

		if e.recency < since {
			return true
		}

		if e.deleted {
			// On a full resync the range erase already covered deletions.
			if since > 0 {
				err = cb.OnDeletion(e.key, e.recency)
			}
		} else {
			err = cb.OnKeyValue(protocol.BackfillAtom{Key: e.key, Value: e.value, Recency: e.recency})
		}
		return err == nil
	})

	return err
}

// --------------------------------------------------------------------------
// Traversal Progress
// --------------------------------------------------------------------------

// TraversalProgress counts the entries one traversal has processed. It is a
// constituent of a store-level backfill progress object so callers can
// report percentage complete across parallel traversals.
type TraversalProgress struct {
	total atomic.Int64
	done  atomic.Int64
}

// NewTraversalProgress creates a progress counter expecting total entries.
// A zero total means the size is unknown.
func NewTraversalProgress(total int64) *TraversalProgress {
	p := &TraversalProgress{}
	p.total.Store(total)
	return p
}

// Step records one processed entry.
func (p *TraversalProgress) Step() {
	if p != nil {
		p.done.Add(1)
	}
}

// Fraction returns the completed fraction in [0, 1], or 0 when the total is
// unknown.
func (p *TraversalProgress) Fraction() float64 {
	total := p.total.Load()
	if total <= 0 {
		return 0
	}
	frac := float64(p.done.Load()) / float64(total)
	if frac > 1 {
		frac = 1
	}
	return frac
}
