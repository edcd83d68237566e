// Package server implements the RPC server of the transaction system. It is
// the operation layer in front of the session registries: requests are
// translated into registry calls and every failure is answered as a
// documented error (error-type, error-tag, error-severity, message).
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for all server adapters,
//     with the Handle method that processes incoming requests against a Shard.
//
//   - NewSessionServerAdapter: The adapter for all transaction messages:
//
//     Owner                    endpoint of the node owning the shard
//     Edit, Validate, Commit,  the candidate transaction of the session
//     Discard
//     Get                      scoped read through a short lived running transaction
//     TxNew, Tx*               running transactions driven by remote proxies
//     CloseSession             cancels every transaction of the session
//
//   - NewRPCServer: Factory function creating a configured server with the specified
//     transport and serializer mechanisms. In local mode the shard is backed by an
//     in-memory broker, in raft mode by a dragonboat replica and the owner is the
//     shard leader.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Mode:          common.ServerModeLocal,
//	  ShardID:       1,
//	  TimeoutSecond: 5,
//	  Transport:     common.ServerTransportConfig{Endpoint: ":8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPServerTransport(), serializer.NewBinarySerializer())
//	if err := s.Serve(); err != nil {
//	  panic(err)
//	}
//
// Metrics:
//
//	With a metrics endpoint configured, /metrics serves the registry, session
//	and request counters in the prometheus text format.
package server
