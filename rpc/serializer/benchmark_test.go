package serializer

import (
	"testing"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"ShortPath": {
			MsgType:   common.MsgTTxRead,
			SessionID: "s",
			TxID:      "t",
			Path:      "/a",
		},
		"LongPath": {
			MsgType:   common.MsgTTxExists,
			SessionID: "0f6a3c52-8d55-4b1e-9f0c-3b1f2a7d9e41",
			TxID:      "7c2e9b10-1a4f-4c3d-8e6b-5d0a9f3e2c17",
			Store:     tx.Operational,
			Path:      "/network-topology/topology/topology-netconf/node/device-42/yang-ext:mount/interfaces/interface/eth0",
		},
		"SmallValue": {
			MsgType: common.MsgTTxPut,
			TxID:    "tx",
			Path:    "/a",
			Value:   []byte("1"),
		},
		"MediumValue": {
			MsgType: common.MsgTTxMerge,
			TxID:    "tx",
			Path:    "/interfaces/eth0",
			Value:   []byte(`{"name":"eth0","mtu":1500,"enabled":true,"description":"uplink"}`),
		},
		"LargeValue": {
			MsgType: common.MsgTTxPut,
			TxID:    "tx",
			Path:    "/a",
			Value:   make([]byte, 1024), // 1KB of data
		},
		"VeryLargeValue": {
			MsgType: common.MsgTTxPut,
			TxID:    "tx",
			Path:    "/a",
			Value:   make([]byte, 1024*16), // 16KB of data
		},
		"CompleteMessage": {
			MsgType:     common.MsgTEdit,
			SessionID:   "complete-session",
			TxID:        "complete-tx",
			Store:       tx.Operational,
			Path:        "/complete/test/path",
			Op:          "merge",
			Value:       []byte("test-value-data"),
			Version:     20000,
			Ok:          true,
			Err:         "This is a test error message",
			ErrType:     "application",
			ErrTag:      "operation-failed",
			ErrSeverity: "error",
		},
		"ErrorMessage": {
			MsgType:     common.MsgTError,
			Err:         "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
			ErrType:     "application",
			ErrTag:      "operation-failed",
			ErrSeverity: "error",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					err := serializer.Deserialize(data, &msg)
					if err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize measures and reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}

				// Report the size as a custom metric
				b.ReportMetric(float64(len(data)), "bytes")

				// Minimal loop to satisfy benchmark requirements
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
