package serializer

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/dRDB/lib/protocol"
	"github.com/ValentinKolb/dRDB/lib/query"
	"github.com/ValentinKolb/dRDB/lib/region"
	"github.com/ValentinKolb/dRDB/rpc/common"
)

// testSerializers returns every serializer implementation under its name
func testSerializers() map[string]IRPCSerializer {
	return map[string]IRPCSerializer{
		"json":   NewJSONSerializer(),
		"gob":    NewGOBSerializer(),
		"binary": NewBinarySerializer(),
	}
}

// testMessages builds one message per protocol operation family
func testMessages(t *testing.T) map[string]*common.Message {
	t.Helper()

	rangeReq, err := common.NewRangeReadRequest(protocol.RangeRead{
		KeyRange: region.NewKeyRange("a", "z"),
		Maximum:  100,
		Terminal: &protocol.Terminal{Type: protocol.TerminalReduce, Reduction: query.SumReduction()},
	})
	if err != nil {
		t.Fatalf("building range read request: %v", err)
	}

	chunkMsg, err := common.NewBackfillChunkMessage(
		protocol.NewKeyValueChunk(protocol.BackfillAtom{Key: "k", Value: []byte(`{"a":1}`), Recency: 42}))
	if err != nil {
		t.Fatalf("building backfill chunk message: %v", err)
	}

	return map[string]*common.Message{
		"pointRead":  common.NewPointReadRequest("some-key"),
		"rangeRead":  rangeReq,
		"pointWrite": common.NewPointWriteRequest("key", []byte(`{"doc": 1}`)),
		"delete":     common.NewPointDeleteRequest("key"),
		"chunk":      chunkMsg,
		"error":      common.NewErrorResponse("something broke"),
		"response":   {MsgType: common.MsgTPointRead, Value: []byte(`{"doc": 1}`), Ok: true},
	}
}

// TestSerializerRoundTrip tests that every serializer reproduces every
// message family
func TestSerializerRoundTrip(t *testing.T) {
	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			for msgName, msg := range testMessages(t) {
				raw, err := s.Serialize(*msg)
				if err != nil {
					t.Fatalf("%s: serialize: %v", msgName, err)
				}

				var decoded common.Message
				if err := s.Deserialize(raw, &decoded); err != nil {
					t.Fatalf("%s: deserialize: %v", msgName, err)
				}

				if decoded.MsgType != msg.MsgType {
					t.Errorf("%s: message type changed: %s != %s", msgName, decoded.MsgType, msg.MsgType)
				}
				if decoded.Key != msg.Key {
					t.Errorf("%s: key changed: %q != %q", msgName, decoded.Key, msg.Key)
				}
				if !bytes.Equal(decoded.Value, msg.Value) {
					t.Errorf("%s: value changed", msgName)
				}
				if decoded.Recency != msg.Recency {
					t.Errorf("%s: recency changed", msgName)
				}
				if decoded.Ok != msg.Ok || decoded.Err != msg.Err {
					t.Errorf("%s: status fields changed", msgName)
				}
				if !bytes.Equal(decoded.Payload, msg.Payload) {
					t.Errorf("%s: payload changed", msgName)
				}
			}
		})
	}
}

// TestRangeReadThroughWire tests that a range read survives the full
// encode/serialize/decode path
func TestRangeReadThroughWire(t *testing.T) {
	req, err := common.NewRangeReadRequest(protocol.RangeRead{
		KeyRange: region.NewKeyRange("a", "m"),
		Maximum:  10,
	})
	if err != nil {
		t.Fatalf("building request: %v", err)
	}

	for name, s := range testSerializers() {
		t.Run(name, func(t *testing.T) {
			raw, err := s.Serialize(*req)
			if err != nil {
				t.Fatalf("serialize: %v", err)
			}

			var decoded common.Message
			if err := s.Deserialize(raw, &decoded); err != nil {
				t.Fatalf("deserialize: %v", err)
			}

			read, err := decoded.ToRead()
			if err != nil {
				t.Fatalf("decoding read: %v", err)
			}

			rr, ok := read.Variant.(protocol.RangeRead)
			if !ok {
				t.Fatalf("expected a range read, got %T", read.Variant)
			}
			if !rr.KeyRange.Equal(region.NewKeyRange("a", "m")) || rr.Maximum != 10 {
				t.Errorf("range read fields changed: %+v", rr)
			}
		})
	}
}

// TestBinaryRejectsTruncated tests the binary decoder's length validation
func TestBinaryRejectsTruncated(t *testing.T) {
	s := NewBinarySerializer()

	raw, err := s.Serialize(*common.NewPointWriteRequest("key", []byte("0123456789")))
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	var decoded common.Message
	if err := s.Deserialize(raw[:len(raw)-4], &decoded); err == nil {
		t.Error("truncated input should fail to deserialize")
	}
	if err := s.Deserialize([]byte{1}, &decoded); err == nil {
		t.Error("a one-byte message should fail to deserialize")
	}
}
