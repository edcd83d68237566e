package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is shard id (8) + request id (8) + payload length (4)
	frameHeaderSize = 20

	// maxFrameSize bounds the payload of a single frame. Larger length fields
	// are treated as a corrupt stream.
	maxFrameSize = 64 << 20
)

// writeFrame writes one frame: shard id, request id and payload length as big
// endian integers followed by the payload. Header and payload go out in a
// single writev.
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame of %d bytes exceeds limit of %d bytes", len(data), maxFrameSize)
	}
	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame into buf, allocating when buf is too small. The
// returned payload aliases buf unless an allocation was needed.
func readFrame(conn net.Conn, buf []byte) (shardID uint64, requestID uint64, data []byte, err error) {
	if len(buf) < frameHeaderSize {
		buf = make([]byte, frameHeaderSize)
	}
	if _, err := io.ReadFull(conn, buf[:frameHeaderSize]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(buf[:8])
	requestID = binary.BigEndian.Uint64(buf[8:16])
	length := binary.BigEndian.Uint32(buf[16:20])

	switch {
	case length == 0:
		return shardID, requestID, []byte{}, nil
	case length > maxFrameSize:
		return 0, 0, nil, fmt.Errorf("request %d: frame length %d exceeds limit of %d bytes", requestID, length, maxFrameSize)
	case len(buf) < int(length):
		buf = make([]byte, length)
	}

	if _, err := io.ReadFull(conn, buf[:length]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:length], nil
}
