package store

import (
	"context"
	"sync"

	"github.com/ValentinKolb/dRDB/lib/btree"
	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/ValentinKolb/dRDB/lib/util"
	"github.com/VictoriaMetrics/metrics"
)

var (
	backfillChunksSent     = metrics.GetOrCreateCounter(`drdb_backfill_chunks_total{direction="sent"}`)
	backfillChunksReceived = metrics.GetOrCreateCounter(`drdb_backfill_chunks_total{direction="received"}`)
)

// --------------------------------------------------------------------------
// Backfill Progress
// --------------------------------------------------------------------------

// BackfillProgress aggregates the per-traversal progress constituents of one
// backfill so callers can report percentage complete.
type BackfillProgress struct {
	mu           sync.Mutex
	constituents []*btree.TraversalProgress
}

// AddConstituent registers one traversal's progress counter.
func (p *BackfillProgress) AddConstituent(tp *btree.TraversalProgress) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.constituents = append(p.constituents, tp)
}

// Fraction returns the mean completed fraction across all constituents.
func (p *BackfillProgress) Fraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.constituents) == 0 {
		return 0
	}

	var sum float64
	for _, tp := range p.constituents {
		sum += tp.Fraction()
	}
	return sum / float64(len(p.constituents))
}

// --------------------------------------------------------------------------
// Backfill Sender
// --------------------------------------------------------------------------

// chunkCallback adapts one region's traversal events into backfill chunks on
// the shared stream.
type chunkCallback struct {
	queue *util.LockFreeMPSC[protocol.BackfillChunk]
}

func (c *chunkCallback) OnDeleteRange(kr region.KeyRange) error {
	chunk := protocol.NewDeleteRangeChunk(region.FromKeyRange(kr))
	c.queue.Push(&chunk)
	return nil
}

func (c *chunkCallback) OnDeletion(key string, recency uint64) error {
	chunk := protocol.NewDeleteKeyChunk(key, recency)
	c.queue.Push(&chunk)
	return nil
}

func (c *chunkCallback) OnKeyValue(atom protocol.BackfillAtom) error {
	chunk := protocol.NewKeyValueChunk(atom)
	c.queue.Push(&chunk)
	return nil
}

// ProtocolSendBackfill streams the contents of every start-point region to
// the chunk callback (docu see store.IStore).
//
// The regions are traversed in parallel, one task per region, sharing the
// superblock through a refcount sized to the region count; every task
// releases exactly one reference. Chunks from all traversals funnel through
// a single consumer so chunkFn never runs concurrently.
//
// Interruption is checked in two phases: a traversal that observes the
// signal unwinds silently, and only after every task has finished does the
// sender re-check the signal and fail the whole backfill. This way no
// sub-traversal is still running when the error surfaces.
func (s *Store) ProtocolSendBackfill(startPoint []RegionTimestamp, chunkFn ChunkFunc, superblock btree.Superblock, _ *btree.Transaction, progress *BackfillProgress, interrupt context.Context) error {
	if len(startPoint) == 0 {
		superblock.Release()
		return nil
	}

	refcount := btree.NewRefcountSuperblock(superblock, len(startPoint))
	queue := util.NewLockFreeMPSC[protocol.BackfillChunk]()
	callback := &chunkCallback{queue: queue}

	// Single consumer: drain the chunk stream into chunkFn.
	var chunkErr error
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for chunk := range queue.Recv() {
			// Once the signal fired or a chunk failed, keep draining so
			// producers never block, but deliver nothing further.
			if chunkErr != nil || (interrupt != nil && interrupt.Err() != nil) {
				continue
			}
			backfillChunksSent.Inc()
			chunkErr = chunkFn(*chunk)
		}
	}()

	var wg sync.WaitGroup
	for _, rt := range startPoint {
		wg.Add(1)
		go func(rt RegionTimestamp) {
			defer wg.Done()
			defer refcount.Release()

			tp := btree.NewTraversalProgress(int64(s.slice.Len()))
			progress.AddConstituent(tp)

			// An interrupted traversal unwinds silently; the signal is
			// re-checked once all tasks have joined.
			if err := s.slice.Backfill(rt.Region.Inner, rt.Since, callback, tp, interrupt); err != nil && err != context.Canceled {
				storeLogger.Errorf("backfill traversal of %s failed: %v", rt.Region, err)
			}
		}(rt)
	}

	wg.Wait()
	queue.Close()
	queue.Wait()
	<-consumerDone

	if interrupt != nil && interrupt.Err() != nil {
		storeLogger.Infof("backfill interrupted after %d regions", len(startPoint))
		return query.ErrInterrupted
	}
	return chunkErr
}

// --------------------------------------------------------------------------
// Backfill Receiver
// --------------------------------------------------------------------------

// ProtocolReceiveBackfill applies one chunk of an incoming backfill stream
// (docu see store.IStore).
func (s *Store) ProtocolReceiveBackfill(chunk protocol.BackfillChunk, _ *btree.Transaction, _ btree.Superblock) {
	backfillChunksReceived.Inc()

	switch v := chunk.Variant.(type) {
	case protocol.DeleteKey:
		s.slice.Delete(v.Key, v.Recency)

	case protocol.DeleteRange:
		// Only erase keys the chunk's region actually covers; the sender may
		// hold a different hash sharding than this replica.
		s.slice.EraseRange(v.Range.Inner, func(key string) bool {
			return v.Range.Contains(key)
		})

	case protocol.KeyValuePair:
		s.slice.Set(v.Atom.Key, v.Atom.Value, v.Atom.Recency)

	default:
		panic("store: unknown backfill chunk variant")
	}
}

// ProtocolResetData erases the region's key range unconditionally (docu see
// store.IStore).
func (s *Store) ProtocolResetData(reg region.Region, _ *btree.Transaction, _ btree.Superblock) {
	s.slice.EraseRange(reg.Inner, func(string) bool { return true })
}
