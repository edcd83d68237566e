// Package tx defines the vocabulary shared by every layer that touches a
// transaction: logical stores, paths, immutable node payloads, futures and
// the error model that is surfaced to management clients.
//
// Key Components:
//
//   - LogicalStore, Path, Node: addressing and payload types. Nodes are
//     immutable once constructed, paths are compared by value.
//
//   - Promise / Future: a one-shot result holder. A promise is settled exactly
//     once; callbacks registered on the future run on the settling goroutine
//     (or immediately, if the future is already settled).
//
//   - ReadWriteTransaction: the contract implemented by the datastore
//     transactions, the registry wrappers and the client side proxy.
//
//   - DocumentedError: an error carrying the error-type, error-tag and
//     severity triple understood by management clients. ToDocumented is the
//     single translation point from internal errors into that vocabulary.
//
// Thread Safety:
//
//	All types in this package are safe for concurrent use.
package tx
