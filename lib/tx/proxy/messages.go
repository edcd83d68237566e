package proxy

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
)

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// Request is a message sent from a proxy to the owner of a transaction.
type Request interface {
	isRequest()
	fmt.Stringer
}

type ReadRequest struct {
	Store tx.LogicalStore
	Path  tx.Path
}

type ExistsRequest struct {
	Store tx.LogicalStore
	Path  tx.Path
}

type PutRequest struct {
	Store tx.LogicalStore
	Path  tx.Path
	Data  tx.Node
}

type MergeRequest struct {
	Store tx.LogicalStore
	Path  tx.Path
	Data  tx.Node
}

type DeleteRequest struct {
	Store tx.LogicalStore
	Path  tx.Path
}

type CancelRequest struct{}

type SubmitRequest struct{}

func (ReadRequest) isRequest()   {}
func (ExistsRequest) isRequest() {}
func (PutRequest) isRequest()    {}
func (MergeRequest) isRequest()  {}
func (DeleteRequest) isRequest() {}
func (CancelRequest) isRequest() {}
func (SubmitRequest) isRequest() {}

func (r ReadRequest) String() string   { return fmt.Sprintf("Read{%s %s}", r.Store, r.Path) }
func (r ExistsRequest) String() string { return fmt.Sprintf("Exists{%s %s}", r.Store, r.Path) }
func (r PutRequest) String() string    { return fmt.Sprintf("Put{%s %s}", r.Store, r.Path) }
func (r MergeRequest) String() string  { return fmt.Sprintf("Merge{%s %s}", r.Store, r.Path) }
func (r DeleteRequest) String() string { return fmt.Sprintf("Delete{%s %s}", r.Store, r.Path) }
func (CancelRequest) String() string   { return "Cancel{}" }
func (SubmitRequest) String() string   { return "Submit{}" }

// --------------------------------------------------------------------------
// Replies
// --------------------------------------------------------------------------

// Reply is the answer of the owner to an asked Request.
type Reply interface {
	isReply()
}

// NodeDataReply answers a read that found data.
type NodeDataReply struct {
	Data tx.Node
}

// EmptyReadReply answers a read that found nothing. It is not an error.
type EmptyReadReply struct{}

// BooleanReply answers exists and cancel.
type BooleanReply struct {
	Value bool
}

// AckReply acknowledges a mutation or a successful submit.
type AckReply struct {
	Info tx.CommitInfo
}

// FailureReply carries an error raised by the owner.
type FailureReply struct {
	Err error
}

func (NodeDataReply) isReply()  {}
func (EmptyReadReply) isReply() {}
func (BooleanReply) isReply()   {}
func (AckReply) isReply()       {}
func (FailureReply) isReply()   {}

// --------------------------------------------------------------------------
// Endpoint
// --------------------------------------------------------------------------

// Endpoint is the resolved handle of the transaction on its owner.
// Requests sent through one endpoint are processed in the order they were
// sent, whether asked or told.
type Endpoint interface {
	// Ask sends req and completes with the reply. If no reply arrives within
	// timeout the future fails with an error wrapping tx.ErrAskTimeout.
	Ask(req Request, timeout time.Duration) *tx.Future[Reply]
	// Tell sends req without waiting for a reply.
	Tell(req Request)
}
