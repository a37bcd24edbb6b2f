package cluster

import (
	"context"
	"runtime"

	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Scripting Runtime
// --------------------------------------------------------------------------

// ScriptRunnerFactory creates a fresh scripting-runtime handle. One handle
// is attached per request and closed with the request's environment; handles
// are never shared across requests.
type ScriptRunnerFactory func() query.ScriptRunner

// noopRunner is the default runner used when no scripting runtime is
// configured.
type noopRunner struct{}

func (noopRunner) Close() error { return nil }

// --------------------------------------------------------------------------
// Context
// --------------------------------------------------------------------------

// Context is the per-process bundle of cluster-level handles from which
// per-request evaluation environments are assembled. One Context outlives
// all requests; the environments it produces are bound to a single worker
// and torn down per request.
type Context struct {
	PoolGroup interface{} // external process pool handle
	NSRepo    interface{} // namespace repository handle

	numWorkers int
	metadata   *Watchable[ClusterMetadata]
	namespaces *CrossWorkerView[NamespacesMetadata]
	databases  *CrossWorkerView[DatabasesMetadata]
	signals    []context.Context
	jsFactory  ScriptRunnerFactory
	machineID  uuid.UUID
}

// ContextConfig carries the collaborator handles a Context is built from.
type ContextConfig struct {
	PoolGroup   interface{}
	NSRepo      interface{}
	NumWorkers  int                 // 0 = one worker per CPU
	Interruptor context.Context     // nil = never interrupted
	JSFactory   ScriptRunnerFactory // nil = no scripting runtime
	MachineID   uuid.UUID
}

// NewContext assembles a Context: it projects the namespace and database
// slices of the cluster metadata once per worker and derives one interrupt
// signal per worker from the process interruptor.
func NewContext(cfg ContextConfig) *Context {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	interruptor := cfg.Interruptor
	if interruptor == nil {
		interruptor = context.Background()
	}

	jsFactory := cfg.JSFactory
	if jsFactory == nil {
		jsFactory = func() query.ScriptRunner { return noopRunner{} }
	}

	metadata := NewWatchable(&ClusterMetadata{})

	// The namespace and database projections are separate watchables fed
	// from the same metadata source, one cached clone per worker.
	namespacesSrc := NewWatchable(&NamespacesMetadata{})
	databasesSrc := NewWatchable(&DatabasesMetadata{})
	metadata.Subscribe(func(m *ClusterMetadata) {
		ns := m.Namespaces
		dbs := m.Databases
		namespacesSrc.Set(&ns)
		databasesSrc.Set(&dbs)
	})

	signals := make([]context.Context, numWorkers)
	for worker := 0; worker < numWorkers; worker++ {
		signals[worker] = interruptor
	}

	return &Context{
		PoolGroup:  cfg.PoolGroup,
		NSRepo:     cfg.NSRepo,
		numWorkers: numWorkers,
		metadata:   metadata,
		namespaces: NewCrossWorkerView(namespacesSrc, numWorkers),
		databases:  NewCrossWorkerView(databasesSrc, numWorkers),
		signals:    signals,
		jsFactory:  jsFactory,
		machineID:  cfg.MachineID,
	}
}

// NumWorkers returns the number of workers this context serves.
func (c *Context) NumWorkers() int {
	return c.numWorkers
}

// MachineID returns the identity of the local machine.
func (c *Context) MachineID() uuid.UUID {
	return c.machineID
}

// SetMetadata publishes a new cluster metadata snapshot to all workers.
func (c *Context) SetMetadata(m *ClusterMetadata) {
	c.metadata.Set(m)
}

// Metadata returns the shared handle to the full cluster metadata.
func (c *Context) Metadata() *Watchable[ClusterMetadata] {
	return c.metadata
}

// NewEnv assembles a fresh per-request evaluation environment bound to the
// given worker, seeded with the request's scopes and carrying a fresh
// scripting-runtime handle.
func (c *Context) NewEnv(worker int, scopes query.Scopes) *query.Env {
	env := &query.Env{
		PoolGroup:  c.PoolGroup,
		NSRepo:     c.NSRepo,
		Namespaces: c.namespaces.For(worker),
		Databases:  c.databases.For(worker),
		Metadata:   c.metadata,
		JS:         c.jsFactory(),
		Interrupt:  c.signals[worker],
		MachineID:  c.machineID,
	}
	env.SetScopes(scopes)
	return env
}
