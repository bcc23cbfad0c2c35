package internal

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/snapKV/lib/codec"
	"github.com/ValentinKolb/snapKV/lib/db"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTPublish CommandType = iota // Add a new version of a key.
	CommandTDelete                     // Add a tombstone version of a key.
	CommandTRefresh                    // Replace the value of the newest version in place.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTPublish:
		return "Publish"
	case CommandTDelete:
		return "Delete"
	case CommandTRefresh:
		return "Refresh"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// ToDBFeature converts a CommandType to the corresponding db.Feature.
// This can be used for checking if the database supports a certain operation.
func (ct CommandType) ToDBFeature() (db.Feature, error) {
	switch ct {
	case CommandTPublish:
		return db.FeaturePublish, nil
	case CommandTDelete:
		return db.FeatureDelete, nil
	case CommandTRefresh:
		return db.FeatureRefresh, nil
	default:
		return 0, fmt.Errorf("unknown command type %d", ct)
	}
}

// Command represents a command to be executed by the state machine (a single entry in the raft log).
// The generation of the command is the index of its log entry.
type Command struct {
	Type  CommandType
	Key   string
	Value codec.Value // nil for CommandTDelete
}

// value returns the value written for the command, Null for commands without one
func (command *Command) value() codec.Value {
	if command.Value == nil {
		return codec.Null{}
	}
	return command.Value
}

// SizeBytes returns the exact number of bytes needed to serialize this command
func (command *Command) SizeBytes() int {
	return 2 + // tagged type
		1 + 4 + len(command.Key) + // tagged key
		codec.Size(command.value())
}

// Serialize serializes a command into a codec stream of three values:
// O operation type, S key, value (N for commands without a value).
func (command *Command) Serialize() ([]byte, error) {
	if command.Type != CommandTDelete {
		if err := codec.Validate(command.Value); err != nil {
			return nil, err
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, command.SizeBytes()))
	enc := codec.NewEncoder(buf)

	if err := enc.WriteValue(codec.Byte(command.Type)); err != nil {
		return nil, err
	}
	if err := enc.WriteValue(codec.String(command.Key)); err != nil {
		return nil, err
	}
	if err := enc.WriteValue(command.value()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Deserialize extracts all Command fields from a byte array.
// Trailing bytes after the value are an error.
func (command *Command) Deserialize(data []byte) error {
	r := bytes.NewReader(data)
	dec := codec.NewDecoder(r)

	cmdType, ok, err := codec.ReadExpected(dec, codec.TagByte, (*codec.Decoder).ReadByte)
	if err != nil {
		return fmt.Errorf("reading command type: %w", err)
	}
	if !ok {
		return fmt.Errorf("missing command type")
	}

	key, ok, err := dec.ReadStringField(false)
	if err != nil {
		return fmt.Errorf("reading key: %w", err)
	}
	if !ok {
		return fmt.Errorf("missing key")
	}

	value, err := dec.ReadValue()
	if err != nil {
		return fmt.Errorf("reading value: %w", err)
	}

	if r.Len() != 0 {
		return fmt.Errorf("%d trailing bytes after command", r.Len())
	}

	command.Type = CommandType(cmdType)
	command.Key = key
	command.Value = value
	if command.Type == CommandTDelete {
		command.Value = nil
	}
	return nil
}
