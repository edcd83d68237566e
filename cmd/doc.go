// Package cmd implements the command-line interface of dTX. It provides a
// hierarchical command structure for running a server and for talking to
// one as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a node, either in local mode (in memory) or in raft mode
//     as a member of a replicated cluster
//   - tx: Client commands. get and edit work on the session candidate and
//     the committed data, exists and apply use a read-write transaction on
//     the data owner
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// All flags can also be set as environment variables with the DTX_ prefix,
// dashes replaced by underscores (e.g. DTX_TRANSPORT_ENDPOINTS). .env and
// .env.local in the working directory are loaded first.
//
// See dtx -help for a list of all commands.
package cmd
