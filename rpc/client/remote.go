package client

import (
	"fmt"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/tx/proxy"
	"github.com/ValentinKolb/dTX/lib/util"
	"github.com/ValentinKolb/dTX/rpc/common"
)

// call is one queued request, promise is nil for tells
type call struct {
	req     proxy.Request
	promise *tx.Promise[proxy.Reply]
}

// remoteTransaction is the proxy.Endpoint of a running transaction on the
// data owner. Requests are sent one at a time in the order they were
// issued, Cancel and Submit end the transaction.
type remoteTransaction struct {
	rpcClientAdapter
	sessionID string
	txID      string
	mailbox   *util.Mailbox[call]
	onDone    func() // called once the run loop exited
}

func newRemoteTransaction(adapter rpcClientAdapter, sessionID, txID string, onDone func()) *remoteTransaction {
	r := &remoteTransaction{
		rpcClientAdapter: adapter,
		sessionID:        sessionID,
		txID:             txID,
		mailbox:          util.NewMailbox[call](),
		onDone:           onDone,
	}
	go r.run()
	return r
}

// close stops the transaction locally. Requests already queued are still
// sent, later ones fail with tx.ErrTransactionClosed.
func (r *remoteTransaction) close() {
	r.mailbox.Close()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see proxy.Endpoint)
// --------------------------------------------------------------------------

func (r *remoteTransaction) Ask(req proxy.Request, timeout time.Duration) *tx.Future[proxy.Reply] {
	promise := tx.NewPromise[proxy.Reply]()
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			promise.Fail(fmt.Errorf("%s %s: %w after %s", r.txID, req, tx.ErrAskTimeout, timeout))
		})
		promise.Future().OnComplete(func(proxy.Reply, error) { timer.Stop() })
	}
	if !r.mailbox.Push(&call{req: req, promise: promise}) {
		promise.Fail(fmt.Errorf("%s: %w", r.txID, tx.ErrTransactionClosed))
	}
	return promise.Future()
}

func (r *remoteTransaction) Tell(req proxy.Request) {
	if !r.mailbox.Push(&call{req: req}) {
		Logger.Debugf("%s: dropped %s after the transaction ended", r.txID, req)
	}
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (r *remoteTransaction) run() {
	if r.onDone != nil {
		defer r.onDone()
	}
	for c := range r.mailbox.Recv() {
		reply := r.send(c.req)
		if c.promise != nil {
			c.promise.Complete(reply)
		} else if f, ok := reply.(proxy.FailureReply); ok {
			Logger.Warningf("%s: %s failed: %v", r.txID, c.req, f.Err)
		}

		switch c.req.(type) {
		case proxy.CancelRequest, proxy.SubmitRequest:
			r.mailbox.Close()
		}
	}
}

func (r *remoteTransaction) send(req proxy.Request) proxy.Reply {
	msg, err := common.RequestToMessage(req, r.sessionID, r.txID)
	if err != nil {
		return proxy.FailureReply{Err: err}
	}
	resp, err := r.invoke(msg)
	if err != nil {
		return proxy.FailureReply{Err: err}
	}
	return common.MessageToReply(resp)
}
