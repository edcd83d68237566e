// Package proxy implements the client side of a transaction whose
// authoritative copy lives on another node.
//
// A TransactionProxy is handed out immediately, before it is known which
// node owns the data. It is bound exactly once to a Backend:
//
//   - LiveBackend talks to the owner through an Endpoint. Reads, exists and
//     submit are asked with a timeout, put, merge, delete and cancel are told.
//     Ask timeouts surface as backend unavailable ("master is down, retry").
//
//   - FailedBackend is used when the owner could not be resolved. Reads,
//     exists and commit fail with the resolution error, mutations are
//     accepted and dropped.
//
// Until the backend is bound every operation is queued. Binding replays the
// queue in issue order, including operations issued by callbacks of replayed
// operations, and publishes the backend only once the queue is empty.
//
// HandleRequest is the owner side counterpart: it executes a Request against
// a local tx.ReadWriteTransaction and builds the matching Reply.
package proxy
