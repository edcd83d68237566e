// Package common provides the data structures shared by the RPC client,
// the RPC server and the command line tools.
//
// Key Components:
//
//   - Message: the single structure used for every request and response.
//     Documented errors travel in the Err, ErrType, ErrTag and ErrSeverity
//     fields and are rebuilt on the receiving side with Message.Error.
//
//   - MessageType: enumeration of all operations, grouped into cluster and
//     session operations, remote transaction operations used by the
//     transaction proxy, and operations on the candidate transaction.
//
//   - ServerConfig / ClientConfig: configuration of both sides, including
//     transport tuning and the conversion into Dragonboat configurations.
//
//   - Logger: a logger factory for Dragonboat's logger package, so every
//     package (raft internals included) logs in the same format.
package common
