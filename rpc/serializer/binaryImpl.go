package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dRDB/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     byte = 1 << 0
	hasValue   byte = 1 << 1
	hasRecency byte = 1 << 2
	hasOk      byte = 1 << 3
	hasErr     byte = 1 << 4
	hasPayload byte = 1 << 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		keyBytes := []byte(msg.Key)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(keyBytes)))
		pos += 4
		copy(result[pos:pos+len(keyBytes)], keyBytes)
		pos += len(keyBytes)
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Value)))
		pos += 4
		copy(result[pos:pos+len(msg.Value)], msg.Value)
		pos += len(msg.Value)
	}

	// Handle Recency
	if msg.Recency > 0 {
		flags |= hasRecency
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Recency)
		pos += 8
	}

	// Handle Ok
	if msg.Ok {
		flags |= hasOk
		result[pos] = 1
		pos += 1
	}

	// Handle Err
	if msg.Err != "" {
		flags |= hasErr
		errBytes := []byte(msg.Err)

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(errBytes)))
		pos += 4
		copy(result[pos:pos+len(errBytes)], errBytes)
		pos += len(errBytes)
	}

	// Handle Payload
	if msg.Payload != nil {
		flags |= hasPayload

		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Payload)))
		pos += 4
		copy(result[pos:pos+len(msg.Payload)], msg.Payload)
		pos += len(msg.Payload)
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2

	// Read Key if present
	if flags&hasKey != 0 {
		raw, next, err := readLengthPrefixed(data, pos, "key")
		if err != nil {
			return err
		}
		msg.Key = string(raw)
		pos = next
	} else {
		msg.Key = ""
	}

	// Read Value if present
	if flags&hasValue != 0 {
		raw, next, err := readLengthPrefixed(data, pos, "value")
		if err != nil {
			return err
		}
		msg.Value = append([]byte(nil), raw...)
		pos = next
	} else {
		msg.Value = nil
	}

	// Read Recency if present
	if flags&hasRecency != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for recency")
		}
		msg.Recency = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.Recency = 0
	}

	// Read Ok if present
	if flags&hasOk != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for ok flag")
		}
		msg.Ok = data[pos] == 1
		pos += 1
	} else {
		msg.Ok = false
	}

	// Read Err if present
	if flags&hasErr != 0 {
		raw, next, err := readLengthPrefixed(data, pos, "error")
		if err != nil {
			return err
		}
		msg.Err = string(raw)
		pos = next
	} else {
		msg.Err = ""
	}

	// Read Payload if present
	if flags&hasPayload != 0 {
		raw, _, err := readLengthPrefixed(data, pos, "payload")
		if err != nil {
			return err
		}
		msg.Payload = append([]byte(nil), raw...)
	} else {
		msg.Payload = nil
	}

	return nil
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// sizeBytes calculates the exact serialized size of a message
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2 // MsgType + flags

	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Recency > 0 {
		size += 8
	}
	if msg.Ok {
		size += 1
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}

	return size
}

// readLengthPrefixed reads one 4-byte-length-prefixed field
func readLengthPrefixed(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s length", field)
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4

	if pos+length > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s data", field)
	}
	return data[pos : pos+length], pos + length, nil
}
