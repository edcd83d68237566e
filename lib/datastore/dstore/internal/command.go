// Package internal defines the commands and queries exchanged between the
// distributed broker and its raft state machine.
package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/tx"
)

// CommandType defines the possible operations for the state machine.
type CommandType uint8

const (
	CommandTApply CommandType = iota // Apply the modification log of one transaction.
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTApply:
		return "Apply"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command is a single entry in the raft log: the complete modification log
// of one committed transaction. It is applied atomically by the state machine.
type Command struct {
	Type CommandType
	TxID string
	Mods []datastore.Modification
}

const (
	headerSize = 1 + 4 + 4 // Type + TxIDLen + ModCount (TxID follows the length)
	modHeader  = 1 + 1 + 4 + 4
)

// SizeBytes returns the exact number of bytes needed to serialize this command
func (c *Command) SizeBytes() int {
	size := headerSize + len(c.TxID)
	for _, m := range c.Mods {
		size += modHeader + len(m.Path) + m.Data.Len()
	}
	return size
}

// Serialize encodes the command as:
// 1 byte type,
// 4 bytes txID length + txID,
// 4 bytes modification count,
// per modification: 1 byte op, 1 byte store, 4 bytes path length + path,
// 4 bytes data length + data.
// All integers are big endian.
func (c *Command) Serialize() []byte {
	buf := make([]byte, c.SizeBytes())
	buf[0] = byte(c.Type)
	pos := 1

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(c.TxID)))
	pos += 4
	pos += copy(buf[pos:], c.TxID)

	binary.BigEndian.PutUint32(buf[pos:], uint32(len(c.Mods)))
	pos += 4

	for _, m := range c.Mods {
		buf[pos] = byte(m.Op)
		buf[pos+1] = byte(m.Store)
		pos += 2

		binary.BigEndian.PutUint32(buf[pos:], uint32(len(m.Path)))
		pos += 4
		pos += copy(buf[pos:], m.Path)

		data := m.Data.Bytes()
		binary.BigEndian.PutUint32(buf[pos:], uint32(len(data)))
		pos += 4
		pos += copy(buf[pos:], data)
	}
	return buf
}

// Deserialize decodes a command written by Serialize.
func (c *Command) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for command")
	}
	c.Type = CommandType(data[0])
	pos := 1

	txLen := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4
	if pos+txLen+4 > len(data) {
		return fmt.Errorf("data too short for transaction id of length %d", txLen)
	}
	c.TxID = string(data[pos : pos+txLen])
	pos += txLen

	count := int(binary.BigEndian.Uint32(data[pos:]))
	pos += 4
	// every modification needs at least its header
	if count > (len(data)-pos)/modHeader {
		return fmt.Errorf("data too short for %d modifications", count)
	}

	c.Mods = make([]datastore.Modification, 0, count)
	for i := 0; i < count; i++ {
		if pos+modHeader > len(data) {
			return fmt.Errorf("data too short for modification %d", i)
		}
		m := datastore.Modification{
			Op:    datastore.OpType(data[pos]),
			Store: tx.LogicalStore(data[pos+1]),
		}
		pos += 2

		pathLen := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if pos+pathLen+4 > len(data) {
			return fmt.Errorf("data too short for path of modification %d", i)
		}
		m.Path = tx.Path(data[pos : pos+pathLen])
		pos += pathLen

		dataLen := int(binary.BigEndian.Uint32(data[pos:]))
		pos += 4
		if pos+dataLen > len(data) {
			return fmt.Errorf("data too short for payload of modification %d", i)
		}
		if m.Op != datastore.OpDelete {
			m.Data = tx.NewNode(data[pos : pos+dataLen])
		}
		pos += dataLen

		c.Mods = append(c.Mods, m)
	}
	return nil
}
