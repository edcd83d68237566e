package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter is a struct that stores all data needed to talk to one server
// Used by the RPCSession and the remote transactions with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	return invokeRPCRequest(a.shardId, req, a.transport, a.serializer)
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// Documented errors sent by the server are rebuilt, a transport timeout is
// reported as tx.ErrAskTimeout
func invokeRPCRequest(shardId uint64, req *common.Message, t transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	start := time.Now()
	defer gometrics.GetOrRegisterTimer("rpc."+req.MsgType.String(), nil).UpdateSince(start)

	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, err
	}

	respBytes, err := t.Send(shardId, reqBytes)
	if err != nil {
		gometrics.GetOrRegisterCounter("rpc.failed", nil).Inc(1)
		if errors.Is(err, transport.ErrTimeout) {
			return nil, fmt.Errorf("%s: %w: %w", req.MsgType, tx.ErrAskTimeout, err)
		}
		return nil, fmt.Errorf("%s: %w", req.MsgType, err)
	}

	resp := &common.Message{}
	if err := serializer.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("RPC client - Error: %w", err)
	}

	// Check if the response is an error response
	if err := resp.AsError(); err != nil {
		return nil, err
	}
	if resp.MsgType == common.MsgTError {
		return nil, fmt.Errorf("RPC client - Error response without message")
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("RPC client - Unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}
