package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/region"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message. Flat fields cover
// the point operations and backfill atoms; structured operations (range
// reads, modifies, responses with result unions) travel JSON-encoded in
// Payload. The tag set and field list are fixed here; the byte layout is
// the serializer's business.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// General fields
	Key     string `json:"key,omitempty"`     // Used for: point reads/writes/deletes, backfill key chunks
	Value   []byte `json:"value,omitempty"`   // Used for: point write (request), point read (response), backfill atoms
	Recency uint64 `json:"recency,omitempty"` // Used for: backfill chunks

	// Response only fields
	Ok  bool   `json:"ok,omitempty"`  // Used for: point read responses
	Err string `json:"err,omitempty"` // Empty if no error, otherwise contains the error message

	// Structured operation body (JSON-encoded variant-specific struct)
	Payload []byte `json:"payload,omitempty"`
}

// --------------------------------------------------------------------------
// Request Factory Functions
// --------------------------------------------------------------------------

// NewPointReadRequest creates a new point read request
func NewPointReadRequest(key string) *Message {
	return &Message{
		MsgType: MsgTPointRead,
		Key:     key,
	}
}

// NewRangeReadRequest creates a new range read request
func NewRangeReadRequest(rr protocol.RangeRead) (*Message, error) {
	payload, err := json.Marshal(rr)
	if err != nil {
		return nil, err
	}
	return &Message{
		MsgType: MsgTRangeRead,
		Payload: payload,
	}, nil
}

// NewDistributionReadRequest creates a new distribution read request
func NewDistributionReadRequest(dr protocol.DistributionRead) (*Message, error) {
	payload, err := json.Marshal(dr)
	if err != nil {
		return nil, err
	}
	return &Message{
		MsgType: MsgTDistributionRead,
		Payload: payload,
	}, nil
}

// NewPointWriteRequest creates a new point write request
func NewPointWriteRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTPointWrite,
		Key:     key,
		Value:   value,
	}
}

// NewPointModifyRequest creates a new point modify request
func NewPointModifyRequest(pm protocol.PointModify) (*Message, error) {
	payload, err := json.Marshal(pm)
	if err != nil {
		return nil, err
	}
	return &Message{
		MsgType: MsgTPointModify,
		Key:     pm.Key,
		Payload: payload,
	}, nil
}

// NewPointDeleteRequest creates a new point delete request
func NewPointDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTPointDelete,
		Key:     key,
	}
}

// --------------------------------------------------------------------------
// Backfill Chunk Messages
// --------------------------------------------------------------------------

// NewBackfillChunkMessage converts a backfill chunk into its wire form
func NewBackfillChunkMessage(chunk protocol.BackfillChunk) (*Message, error) {
	switch v := chunk.Variant.(type) {
	case protocol.DeleteKey:
		return &Message{MsgType: MsgTBackfillDeleteKey, Key: v.Key, Recency: v.Recency}, nil

	case protocol.DeleteRange:
		payload, err := json.Marshal(v.Range)
		if err != nil {
			return nil, err
		}
		return &Message{MsgType: MsgTBackfillDeleteRange, Payload: payload}, nil

	case protocol.KeyValuePair:
		return &Message{
			MsgType: MsgTBackfillKeyValue,
			Key:     v.Atom.Key,
			Value:   v.Atom.Value,
			Recency: v.Atom.Recency,
		}, nil

	default:
		return nil, fmt.Errorf("unknown backfill chunk variant %T", chunk.Variant)
	}
}

// ToBackfillChunk reconstructs a backfill chunk from its wire form
func (msg *Message) ToBackfillChunk() (protocol.BackfillChunk, error) {
	switch msg.MsgType {
	case MsgTBackfillDeleteKey:
		return protocol.NewDeleteKeyChunk(msg.Key, msg.Recency), nil

	case MsgTBackfillDeleteRange:
		var r region.Region
		if err := json.Unmarshal(msg.Payload, &r); err != nil {
			return protocol.BackfillChunk{}, err
		}
		return protocol.NewDeleteRangeChunk(r), nil

	case MsgTBackfillKeyValue:
		return protocol.NewKeyValueChunk(protocol.BackfillAtom{
			Key:     msg.Key,
			Value:   msg.Value,
			Recency: msg.Recency,
		}), nil

	default:
		return protocol.BackfillChunk{}, fmt.Errorf("message type %s is not a backfill chunk", msg.MsgType)
	}
}

// --------------------------------------------------------------------------
// Request Decoding
// --------------------------------------------------------------------------

// ToRead reconstructs the protocol read a request message carries
func (msg *Message) ToRead() (protocol.Read, error) {
	switch msg.MsgType {
	case MsgTPointRead:
		return protocol.NewPointRead(msg.Key), nil

	case MsgTRangeRead:
		var rr protocol.RangeRead
		if err := json.Unmarshal(msg.Payload, &rr); err != nil {
			return protocol.Read{}, err
		}
		return protocol.NewRangeRead(rr), nil

	case MsgTDistributionRead:
		var dr protocol.DistributionRead
		if err := json.Unmarshal(msg.Payload, &dr); err != nil {
			return protocol.Read{}, err
		}
		return protocol.Read{Variant: dr}, nil

	default:
		return protocol.Read{}, fmt.Errorf("message type %s is not a read", msg.MsgType)
	}
}

// ToWrite reconstructs the protocol write a request message carries
func (msg *Message) ToWrite() (protocol.Write, error) {
	switch msg.MsgType {
	case MsgTPointWrite:
		return protocol.NewPointWrite(msg.Key, msg.Value), nil

	case MsgTPointModify:
		var pm protocol.PointModify
		if err := json.Unmarshal(msg.Payload, &pm); err != nil {
			return protocol.Write{}, err
		}
		return protocol.NewPointModify(pm), nil

	case MsgTPointDelete:
		return protocol.NewPointDelete(msg.Key), nil

	default:
		return protocol.Write{}, fmt.Errorf("message type %s is not a write", msg.MsgType)
	}
}

// --------------------------------------------------------------------------
// Response Factory Functions
// --------------------------------------------------------------------------

// NewReadResponseMessage creates the response message for a read. The
// response reuses the request's message type.
func NewReadResponseMessage(resp protocol.ReadResponse) (*Message, error) {
	switch v := resp.Variant.(type) {
	case protocol.PointReadResponse:
		return &Message{MsgType: MsgTPointRead, Value: v.Value, Ok: v.Exists}, nil

	case protocol.RangeReadResponse:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &Message{MsgType: MsgTRangeRead, Payload: payload}, nil

	case protocol.DistributionReadResponse:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &Message{MsgType: MsgTDistributionRead, Payload: payload}, nil

	default:
		return nil, fmt.Errorf("unknown read response variant %T", resp.Variant)
	}
}

// ToReadResponse reconstructs the protocol read response a message carries
func (msg *Message) ToReadResponse() (protocol.ReadResponse, error) {
	switch msg.MsgType {
	case MsgTPointRead:
		return protocol.ReadResponse{Variant: protocol.PointReadResponse{Value: msg.Value, Exists: msg.Ok}}, nil

	case MsgTRangeRead:
		var rr protocol.RangeReadResponse
		if err := json.Unmarshal(msg.Payload, &rr); err != nil {
			return protocol.ReadResponse{}, err
		}
		return protocol.ReadResponse{Variant: rr}, nil

	case MsgTDistributionRead:
		var dr protocol.DistributionReadResponse
		if err := json.Unmarshal(msg.Payload, &dr); err != nil {
			return protocol.ReadResponse{}, err
		}
		return protocol.ReadResponse{Variant: dr}, nil

	default:
		return protocol.ReadResponse{}, fmt.Errorf("message type %s is not a read response", msg.MsgType)
	}
}

// NewWriteResponseMessage creates the response message for a write
func NewWriteResponseMessage(msgType MessageType, resp protocol.WriteResponse) (*Message, error) {
	payload, err := json.Marshal(resp.Variant)
	if err != nil {
		return nil, err
	}
	return &Message{MsgType: msgType, Payload: payload}, nil
}

// ToWriteResponse reconstructs the protocol write response a message carries
func (msg *Message) ToWriteResponse() (protocol.WriteResponse, error) {
	switch msg.MsgType {
	case MsgTPointWrite:
		var v protocol.PointWriteResponse
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return protocol.WriteResponse{}, err
		}
		return protocol.WriteResponse{Variant: v}, nil

	case MsgTPointModify:
		var v protocol.PointModifyResponse
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return protocol.WriteResponse{}, err
		}
		return protocol.WriteResponse{Variant: v}, nil

	case MsgTPointDelete:
		var v protocol.PointDeleteResponse
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return protocol.WriteResponse{}, err
		}
		return protocol.WriteResponse{Variant: v}, nil

	default:
		return protocol.WriteResponse{}, fmt.Errorf("message type %s is not a write response", msg.MsgType)
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(msg string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     msg,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTSuccess:
		return "success"
	case MsgTError:
		return "error"
	case MsgTPointRead:
		return "pointRead"
	case MsgTRangeRead:
		return "rangeRead"
	case MsgTDistributionRead:
		return "distributionRead"
	case MsgTPointWrite:
		return "pointWrite"
	case MsgTPointModify:
		return "pointModify"
	case MsgTPointDelete:
		return "pointDelete"
	case MsgTBackfillDeleteKey:
		return "backfillDeleteKey"
	case MsgTBackfillDeleteRange:
		return "backfillDeleteRange"
	case MsgTBackfillKeyValue:
		return "backfillKeyValue"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "success":
		*t = MsgTSuccess
	case "error":
		*t = MsgTError
	case "pointRead":
		*t = MsgTPointRead
	case "rangeRead":
		*t = MsgTRangeRead
	case "distributionRead":
		*t = MsgTDistributionRead
	case "pointWrite":
		*t = MsgTPointWrite
	case "pointModify":
		*t = MsgTPointModify
	case "pointDelete":
		*t = MsgTPointDelete
	case "backfillDeleteKey":
		*t = MsgTBackfillDeleteKey
	case "backfillDeleteRange":
		*t = MsgTBackfillDeleteRange
	case "backfillKeyValue":
		*t = MsgTBackfillKeyValue
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Read operations

	MsgTPointRead        // Read a single key
	MsgTRangeRead        // Scan a key range
	MsgTDistributionRead // Sample the key distribution of a range

	// Write operations

	MsgTPointWrite  // Store a value under a key
	MsgTPointModify // Read-modify-write a key
	MsgTPointDelete // Delete a key

	// Backfill chunks

	MsgTBackfillDeleteKey   // Single-key deletion tombstone
	MsgTBackfillDeleteRange // Region erase
	MsgTBackfillKeyValue    // Live key-value pair
)
