package serializer

import (
	"testing"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put on a running transaction
		{
			MsgType:   common.MsgTTxPut,
			SessionID: "session-1",
			TxID:      "tx-1",
			Store:     tx.Operational,
			Path:      "/interfaces/eth0",
			Value:     []byte(`{"mtu":1500}`),
		},

		// Read response
		{
			MsgType: common.MsgTTxRead,
			Value:   []byte(`{"mtu":1500}`),
			Ok:      true,
		},

		// Commit response
		{
			MsgType: common.MsgTCommit,
			TxID:    "tx-2",
			Version: 42,
		},

		// Documented error response
		{
			MsgType:     common.MsgTError,
			Err:         "data missing at /a",
			ErrType:     "application",
			ErrTag:      "data-missing",
			ErrSeverity: "error",
		},

		// Message with all fields filled
		{
			MsgType:     common.MsgTEdit,
			SessionID:   "session-2",
			TxID:        "tx-3",
			Store:       tx.Operational,
			Path:        "/a/b",
			Op:          "replace",
			Value:       []byte("payload"),
			Version:     7,
			Ok:          true,
			Err:         "transaction failed",
			ErrType:     "protocol",
			ErrTag:      "operation-failed",
			ErrSeverity: "warning",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range testMessages() {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, "serialize message %d", i)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "deserialize message %d", i)
				assert.Equal(t, msg, result, "message %d", i)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for msgType := common.MsgTSuccess; msgType <= common.MsgTDiscard; msgType++ {
				data, err := serializer.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, msgType.String())

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), msgType.String())
				assert.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

// TestBinarySerializerSpecific tests specific edge cases for the binary serializer
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "empty message",
			msg:  common.Message{},
		},
		{
			name: "empty value slice is not nil",
			msg: common.Message{
				MsgType: common.MsgTTxPut,
				Path:    "/a",
				Value:   []byte{},
			},
		},
		{
			name: "ok without value",
			msg: common.Message{
				MsgType: common.MsgTTxExists,
				Ok:      true,
			},
		},
		{
			name: "configuration store is the zero value",
			msg: common.Message{
				MsgType: common.MsgTGet,
				Store:   tx.Configuration,
				Path:    "/",
			},
		},
		{
			name: "maximum version",
			msg: common.Message{
				MsgType: common.MsgTTxSubmit,
				Version: ^uint64(0),
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := serializer.Serialize(tc.msg)
			require.NoError(t, err)

			var result common.Message
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, tc.msg, result)
			assert.Equal(t, tc.msg.Value == nil, result.Value == nil)
		})
	}
}

// TestDeserializeResetsTarget checks that a reused message does not keep
// fields of the previous one
func TestDeserializeResetsTarget(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(common.Message{MsgType: common.MsgTTxCancel, Ok: true})
			require.NoError(t, err)

			result := common.Message{TxID: "stale", Value: []byte("stale"), Err: "stale"}
			require.NoError(t, serializer.Deserialize(data, &result))
			assert.Equal(t, common.Message{MsgType: common.MsgTTxCancel, Ok: true}, result)
		})
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError string
	}{
		{
			name:        "empty data",
			data:        []byte{},
			expectError: "data too short for message header",
		},
		{
			name:        "header without flags",
			data:        []byte{1, 0},
			expectError: "data too short for message header",
		},
		{
			name: "valid header only",
			data: []byte{1, 0, 0},
		},
		{
			name:        "truncated session id",
			data:        []byte{1, 0, 1, 0, 0, 0, 5, 'a', 'b', 'c'},
			expectError: "data too short for session id data",
		},
		{
			name:        "missing store byte",
			data:        []byte{1, 0, 4},
			expectError: "data too short for store",
		},
		{
			name:        "truncated value",
			data:        []byte{1, 0, 32, 0, 0, 0, 10},
			expectError: "data too short for value data",
		},
		{
			name:        "truncated version",
			data:        []byte{1, 0, 64, 0, 0, 0, 1},
			expectError: "data too short for version",
		},
		{
			name:        "missing error severity length",
			data:        []byte{1, 8, 0, 0, 0},
			expectError: "data too short for error severity length",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)
			if tc.expectError == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tc.expectError)
		})
	}
}
