package cluster

import (
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Watchable
// --------------------------------------------------------------------------

// Watchable publishes immutable snapshots of a value. Readers get the
// current snapshot via an atomic pointer load; writers swap in a new
// snapshot and notify subscribers. Snapshots must never be mutated after
// publication.
type Watchable[T any] struct {
	cur  atomic.Pointer[T]
	mu   sync.Mutex
	subs []func(*T)
}

// NewWatchable creates a watchable holding the given initial snapshot.
func NewWatchable[T any](initial *T) *Watchable[T] {
	w := &Watchable[T]{}
	w.cur.Store(initial)
	return w
}

// Get returns the current snapshot.
//
// Thread-safety: lock-free, safe from any goroutine.
func (w *Watchable[T]) Get() *T {
	return w.cur.Load()
}

// Set publishes a new snapshot and notifies all subscribers in registration
// order.
func (w *Watchable[T]) Set(v *T) {
	w.cur.Store(v)

	w.mu.Lock()
	subs := w.subs
	w.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Subscribe registers a callback invoked on every publication. The callback
// is also invoked once immediately with the current snapshot so subscribers
// never start stale.
func (w *Watchable[T]) Subscribe(fn func(*T)) {
	w.mu.Lock()
	w.subs = append(w.subs, fn)
	w.mu.Unlock()

	fn(w.Get())
}

// --------------------------------------------------------------------------
// Per-Worker Projections
// --------------------------------------------------------------------------

// CrossWorkerView projects a watchable onto every worker: each worker reads
// its own cached clone of the latest snapshot without touching shared state
// owned by another worker. The cache is refreshed on publication events.
type CrossWorkerView[T any] struct {
	cache *xsync.MapOf[int, *T]
}

// NewCrossWorkerView builds per-worker projections of src for workers
// [0, numWorkers).
func NewCrossWorkerView[T any](src *Watchable[T], numWorkers int) *CrossWorkerView[T] {
	view := &CrossWorkerView[T]{
		cache: xsync.NewMapOf[int, *T](),
	}

	src.Subscribe(func(v *T) {
		for worker := 0; worker < numWorkers; worker++ {
			view.cache.Store(worker, v)
		}
	})

	return view
}

// For returns the projection bound to one worker.
func (v *CrossWorkerView[T]) For(worker int) *WorkerView[T] {
	return &WorkerView[T]{cache: v.cache, worker: worker}
}

// WorkerView is one worker's O(1), lock-free read of the current snapshot.
// It implements query.MetadataView.
type WorkerView[T any] struct {
	cache  *xsync.MapOf[int, *T]
	worker int
}

// Get returns the worker's cached snapshot.
func (v *WorkerView[T]) Get() interface{} {
	snap, _ := v.cache.Load(v.worker)
	return snap
}

// Snapshot returns the worker's cached snapshot with its concrete type.
func (v *WorkerView[T]) Snapshot() *T {
	snap, _ := v.cache.Load(v.worker)
	return snap
}
