// Package cmd implements the dRDB command line interface.
//
// Subcommands:
//
//   - serve: start a node (CPU shards, HTTP endpoint, optional raft cluster
//     parameters), configured via flags or DRDB_* environment variables.
//   - kv: client commands (get, set, delete, range, len) against a running
//     node.
//   - version: print the build version.
package cmd
