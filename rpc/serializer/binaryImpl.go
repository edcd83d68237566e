package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/rpc/common"
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
	hasSessionID   uint16 = 1 << 0
	hasTxID        uint16 = 1 << 1
	hasStore       uint16 = 1 << 2
	hasPath        uint16 = 1 << 3
	hasOp          uint16 = 1 << 4
	hasValue       uint16 = 1 << 5
	hasVersion     uint16 = 1 << 6
	hasOk          uint16 = 1 << 7
	hasErr         uint16 = 1 << 8
	hasErrType     uint16 = 1 << 9
	hasErrTag      uint16 = 1 << 10
	hasErrSeverity uint16 = 1 << 11
)

// header: 1 byte MsgType + 2 bytes flags
const binaryHeaderSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags uint16
	pos := binaryHeaderSize

	if msg.SessionID != "" {
		flags |= hasSessionID
		pos = putString(result, pos, msg.SessionID)
	}
	if msg.TxID != "" {
		flags |= hasTxID
		pos = putString(result, pos, msg.TxID)
	}
	if msg.Store != 0 {
		flags |= hasStore
		result[pos] = byte(msg.Store)
		pos++
	}
	if msg.Path != "" {
		flags |= hasPath
		pos = putString(result, pos, msg.Path)
	}
	if msg.Op != "" {
		flags |= hasOp
		pos = putString(result, pos, msg.Op)
	}
	// a nil value and an empty value are distinguished
	if msg.Value != nil {
		flags |= hasValue
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Value)))
		pos += 4
		pos += copy(result[pos:], msg.Value)
	}
	if msg.Version > 0 {
		flags |= hasVersion
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Version)
		pos += 8
	}
	if msg.Ok {
		flags |= hasOk
	}
	if msg.Err != "" {
		flags |= hasErr
		pos = putString(result, pos, msg.Err)
	}
	if msg.ErrType != "" {
		flags |= hasErrType
		pos = putString(result, pos, msg.ErrType)
	}
	if msg.ErrTag != "" {
		flags |= hasErrTag
		pos = putString(result, pos, msg.ErrTag)
	}
	if msg.ErrSeverity != "" {
		flags |= hasErrSeverity
		putString(result, pos, msg.ErrSeverity)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:3], flags)
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < binaryHeaderSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := binaryHeaderSize

	var err error
	if flags&hasSessionID != 0 {
		if msg.SessionID, pos, err = getString(data, pos, "session id"); err != nil {
			return err
		}
	}
	if flags&hasTxID != 0 {
		if msg.TxID, pos, err = getString(data, pos, "transaction id"); err != nil {
			return err
		}
	}
	if flags&hasStore != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for store")
		}
		msg.Store = tx.LogicalStore(data[pos])
		pos++
	}
	if flags&hasPath != 0 {
		if msg.Path, pos, err = getString(data, pos, "path"); err != nil {
			return err
		}
	}
	if flags&hasOp != 0 {
		if msg.Op, pos, err = getString(data, pos, "op"); err != nil {
			return err
		}
	}
	if flags&hasValue != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for value length")
		}
		valueLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+valueLen > len(data) {
			return fmt.Errorf("data too short for value data")
		}
		msg.Value = make([]byte, valueLen)
		copy(msg.Value, data[pos:pos+valueLen])
		pos += valueLen
	}
	if flags&hasVersion != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for version")
		}
		msg.Version = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}
	msg.Ok = flags&hasOk != 0
	if flags&hasErr != 0 {
		if msg.Err, pos, err = getString(data, pos, "error"); err != nil {
			return err
		}
	}
	if flags&hasErrType != 0 {
		if msg.ErrType, pos, err = getString(data, pos, "error type"); err != nil {
			return err
		}
	}
	if flags&hasErrTag != 0 {
		if msg.ErrTag, pos, err = getString(data, pos, "error tag"); err != nil {
			return err
		}
	}
	if flags&hasErrSeverity != 0 {
		if msg.ErrSeverity, _, err = getString(data, pos, "error severity"); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := binaryHeaderSize
	for _, s := range []string{msg.SessionID, msg.TxID, msg.Path, msg.Op, msg.Err, msg.ErrType, msg.ErrTag, msg.ErrSeverity} {
		if s != "" {
			size += 4 + len(s)
		}
	}
	if msg.Store != 0 {
		size++
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Version > 0 {
		size += 8
	}
	return size
}

// putString writes a length prefixed string and returns the next position
func putString(buf []byte, pos int, s string) int {
	binary.BigEndian.PutUint32(buf[pos:pos+4], uint32(len(s)))
	pos += 4
	return pos + copy(buf[pos:], s)
}

// getString reads a length prefixed string and returns it with the next position
func getString(data []byte, pos int, field string) (string, int, error) {
	if pos+4 > len(data) {
		return "", pos, fmt.Errorf("data too short for %s length", field)
	}
	n := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if pos+n > len(data) {
		return "", pos, fmt.Errorf("data too short for %s data", field)
	}
	return string(data[pos : pos+n]), pos + n, nil
}
