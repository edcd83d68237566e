// Package rpc provides the remote procedure call layer of the transaction
// system. It connects clients (sessions and remote transaction proxies) with
// the nodes that own the data.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, HTTP).
//
//   - serializer: Message serialization with multiple format options (Binary, JSON, GOB)
//     for converting between Message objects and byte arrays.
//
//   - client: RPC sessions with candidate operations, scoped reads and transaction
//     proxies backed by a running transaction on the data owner.
//
//   - server: The operation layer serving sessions and running transactions.
package rpc
