// Package rpc contains the wire-facing layers of dRDB: the message format
// and configuration (common), the interchangeable serializers (serializer)
// and the node front door that routes operations onto CPU shards and merges
// their responses (router).
//
// The protocol identity on the wire is "rdb". Everything below this
// directory speaks common.Message; everything above it speaks the typed
// operations of lib/protocol.
package rpc
