// Package tcp implements the TCP socket transport for the transaction RPC
// system. It provides concrete implementations of the base package's connector
// interfaces, the framing, connection pooling and request correlation are
// inherited from the base package.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both sides apply the TCPConf and SocketConf options of their config to every
// connection (no delay, keep alive, linger and socket buffer sizes).
package tcp
