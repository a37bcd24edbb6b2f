// Package query carries the slice of the query language this repository
// actually touches: the expression-evaluation entry point, the lexical scope
// machinery and the per-request runtime environment.
//
// The parser and the full evaluator live outside this module. What remains
// here is exactly what shard-local execution and response merging need:
//
//   - Term: a small tagged expression tree (literals, variables, arithmetic,
//     error raising) -- the shape reduction bodies and stream transforms
//     arrive in.
//
//   - Scope / Scopes: nested lexical scopes with child-scope push/pop, plus
//     the serializable bindings a request ships its free variables in.
//
//   - Eval: the re-entrant evaluation entry point. Expression failures are
//     *RuntimeError values (attributable to user input, surfaced inside
//     responses); interruption is ErrInterrupted and always wins.
//
//   - Env: the per-request runtime environment bundling metadata views,
//     the scripting-runtime handle, the interrupt signal and the machine
//     identity. Envs are built by lib/cluster and bound to one worker.
package query
