// Package cluster builds the per-request runtime environments from
// process-wide cluster state.
//
// A Context is created once per process. It holds the handles this core
// consumes but does not own: the external process pool, the namespace
// repository, the replicated cluster metadata and the machine identity. From
// it, Context.NewEnv assembles a query.Env per request -- bound to one
// worker, carrying a fresh scripting-runtime handle and that worker's
// interrupt signal.
//
// Metadata distribution follows the snapshot-publication strategy: the full
// metadata is an immutable snapshot behind an atomic pointer (Watchable),
// and CrossWorkerView keeps one cached clone per worker so any worker gets
// an O(1), lock-free read of the current namespace and database metadata
// without reaching into state owned by another worker.
package cluster
