// Package http implements the transport interfaces on top of net/http.
//
// Each request is a POST to /{shardId} with the serialized message as body,
// the response body is the serialized reply. The client spreads requests
// round robin over the configured endpoints. It never retries: a request
// that runs into the client timeout fails with transport.ErrTimeout, so a
// read-write transaction reports its owner as down instead of applying a
// write twice.
//
// The server logs every request at debug level.
//
// Compared to the tcp transport every request pays for an HTTP round trip,
// but the endpoint can sit behind ordinary HTTP infrastructure.
package http
