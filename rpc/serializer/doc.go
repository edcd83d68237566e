// Package serializer converts common.Message values to bytes and back.
//
// Implementations:
//
//   - binarySerializerImpl: Compact hand written format. A one byte message
//     type and a 16 bit field mask are followed by the fields that are set.
//     Strings and values are length prefixed, so an empty value and a missing
//     value stay distinguishable (a read of an empty document is not a miss).
//     This is the default of the cli.
//
//   - jsonSerializerImpl: encoding/json, readable when debugging the http
//     transport.
//
//   - gobSerializerImpl: encoding/gob. Every message carries its type
//     description, which makes it the largest and slowest of the three; it
//     is kept for comparison in the benchmarks.
//
// All implementations are stateless and safe for concurrent use. Deserialize
// overwrites the whole target message.
//
// Usage:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewTxNewRequest(sessionID))
//	// ... send data ...
//	var reply common.Message
//	err = s.Deserialize(received, &reply)
package serializer
