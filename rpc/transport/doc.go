// Package transport defines the interfaces and abstractions for RPC communication
// between transaction clients and data owners. It provides a common contract that
// all transport implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting shard-based request routing
//   - Enabling multiple transport implementations (HTTP, TCP)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
//
// Transports never retry a request on their own. Transaction operations are not
// idempotent (a replayed put after a lost response may overwrite a later write),
// so a request that did not get an answer in time fails with ErrTimeout and the
// caller decides what to do.
package transport
