package server

import (
	"github.com/ValentinKolb/dTX/lib/session"
	"github.com/ValentinKolb/dTX/rpc/common"
)

// OwnerFunc returns the RPC endpoint of the node currently owning a shard
type OwnerFunc func() (endpoint string, err error)

// Shard bundles everything an adapter needs to serve requests for one shard
type Shard struct {
	ID       uint64
	Sessions *session.Manager
	Owner    OwnerFunc
}

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request for shard and returns a response.
	// If an error occurs, it is set in the response
	Handle(req *common.Message, shard *Shard) (resp *common.Message)
}
