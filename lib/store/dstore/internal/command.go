package internal

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dRDB/lib/protocol"
)

// CommandType defines the write operations carried through the raft log.
type CommandType uint8

const (
	CommandTPointWrite  CommandType = iota // Store a value under a key.
	CommandTPointModify                    // Read-modify-write a key.
	CommandTPointDelete                    // Delete a key.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPointWrite:
		return "PointWrite"
	case CommandTPointModify:
		return "PointModify"
	case CommandTPointDelete:
		return "PointDelete"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command is one protocol write as a raft log entry. Key and Value cover the
// write and delete variants; modifies carry their full JSON-encoded variant
// in Payload since mappings and scopes are structured.
type Command struct {
	Type    CommandType
	Key     string
	Value   []byte
	Payload []byte
}

// FromWrite converts a protocol write into its log entry form.
func FromWrite(w protocol.Write) (Command, error) {
	switch v := w.Variant.(type) {
	case protocol.PointWrite:
		return Command{Type: CommandTPointWrite, Key: v.Key, Value: v.Value}, nil

	case protocol.PointModify:
		payload, err := json.Marshal(v)
		if err != nil {
			return Command{}, fmt.Errorf("encoding modify: %w", err)
		}
		return Command{Type: CommandTPointModify, Key: v.Key, Payload: payload}, nil

	case protocol.PointDelete:
		return Command{Type: CommandTPointDelete, Key: v.Key}, nil

	default:
		return Command{}, fmt.Errorf("unknown write variant %T", w.Variant)
	}
}

// ToWrite reconstructs the protocol write from its log entry form.
func (command *Command) ToWrite() (protocol.Write, error) {
	switch command.Type {
	case CommandTPointWrite:
		return protocol.NewPointWrite(command.Key, command.Value), nil

	case CommandTPointModify:
		var pm protocol.PointModify
		if err := json.Unmarshal(command.Payload, &pm); err != nil {
			return protocol.Write{}, fmt.Errorf("decoding modify: %w", err)
		}
		return protocol.NewPointModify(pm), nil

	case CommandTPointDelete:
		return protocol.NewPointDelete(command.Key), nil

	default:
		return protocol.Write{}, fmt.Errorf("unknown command type %d", command.Type)
	}
}

// SizeBytes returns the exact number of bytes needed to serialize this
// command.
func (command *Command) SizeBytes() int {
	return 1 + 4 + len(command.Key) + 4 + len(command.Value) + len(command.Payload)
}

// Serialize encodes a command with the format:
// 1 byte for operation type,
// 4 bytes for key length (big endian),
// N bytes for key data,
// 4 bytes for value length (big endian),
// N bytes for value data,
// remaining bytes for the payload (optional).
func (command *Command) Serialize() []byte {
	result := make([]byte, command.SizeBytes())

	result[0] = byte(command.Type)

	pos := 1
	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(command.Key)))
	pos += 4
	copy(result[pos:], command.Key)
	pos += len(command.Key)

	binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(command.Value)))
	pos += 4
	copy(result[pos:], command.Value)
	pos += len(command.Value)

	copy(result[pos:], command.Payload)

	return result
}

// Deserialize extracts all Command fields from a byte array.
func (command *Command) Deserialize(data []byte) error {
	// Minimum size: 1 (Type) + 4 (KeyLen) + 4 (ValueLen) = 9 bytes
	if len(data) < 9 {
		return fmt.Errorf("data too short for command")
	}

	command.Type = CommandType(data[0])

	pos := 1
	keyLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if len(data) < pos+int(keyLen)+4 {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	command.Key = string(data[pos : pos+int(keyLen)])
	pos += int(keyLen)

	valueLen := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if len(data) < pos+int(valueLen) {
		return fmt.Errorf("data too short for value of length %d", valueLen)
	}
	if valueLen > 0 {
		command.Value = make([]byte, valueLen)
		copy(command.Value, data[pos:pos+int(valueLen)])
	} else {
		command.Value = nil
	}
	pos += int(valueLen)

	if len(data) > pos {
		command.Payload = make([]byte, len(data)-pos)
		copy(command.Payload, data[pos:])
	} else {
		command.Payload = nil
	}

	return nil
}
