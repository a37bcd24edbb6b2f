// Package serializer converts wire messages to and from bytes.
//
// Three interchangeable implementations of IRPCSerializer are provided:
//
//   - JSON: human-readable, useful for debugging and HTTP clients.
//   - GOB: Go's native binary encoding.
//   - Binary: a hand-rolled format with a flags byte and length-prefixed
//     fields, the fastest of the three.
//
// All implementations are stateless and safe for concurrent use. The
// structured payload of a message (range read bodies, response result
// unions) is JSON inside the envelope regardless of the serializer; the
// envelope fields are what the implementations differ on.
package serializer
