// Package datastore provides the transactional data store behind the
// transaction registry.
//
// The data of both logical stores lives in a Tree, an in-memory map from
// path to node that is treated as immutable once published. Transactions
// read from a snapshot of the current tree, buffer their modifications in
// a private copy and hand the ordered modification log to the broker on
// commit. Brokers decide where the log is applied:
//
//   - lstore: a single process broker that replays the log onto its head tree
//     under a lock (last writer wins).
//
//   - dstore: a raft replicated broker built on Dragonboat. The log is
//     proposed as a single command and applied by every replica's state machine.
//
// A broker may offer a validate extension. The validator shipped here checks
// that every node written by a transaction is a well-formed JSON document and
// runs optional caller supplied hooks.
package datastore
