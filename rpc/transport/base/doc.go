// Package base implements the stream transports shared by the tcp transport.
// Protocol specifics (dialing, listening, socket options) are supplied by an
// IClientConnector or IServerConnector.
//
// Wire format:
//
//	Every request and response is one frame: shard id (uint64), request id
//	(uint64) and payload length (uint32), all big endian, followed by the
//	payload. Responses carry the request id of the request they answer, so
//	a connection can have many requests in flight and responses may arrive
//	out of order.
//
// Key Components:
//
//   - clientTransport: Holds ConnectionsPerEndpoint connections to every
//     endpoint and picks one round robin per request. Each connection keeps
//     a map of pending requests keyed by request id. A request that is not
//     answered within the client timeout fails with transport.ErrTimeout.
//     When a connection breaks, all of its pending requests fail and the
//     connection is redialed with exponential backoff. Requests are never
//     resent, the caller decides whether an operation may be repeated.
//
//   - serverTransport: Accepts connections and hands the frames of each
//     connection to WorkersPerConn workers that call the registered handler.
//     Read buffers come from a sync.Pool sized by BufferSize.
//
// Thread Safety:
//
//	Send may be called from any number of goroutines. Writes to one
//	connection are serialized.
package base
