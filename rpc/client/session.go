package client

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/tx/proxy"
	"github.com/ValentinKolb/dTX/rpc/common"
	"github.com/ValentinKolb/dTX/rpc/serializer"
	"github.com/ValentinKolb/dTX/rpc/transport"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrSessionClosed is returned by every operation after Close
var ErrSessionClosed = errors.New("session is closed")

// TransportFactory creates an unconnected client transport. The session uses
// it to connect to data owners that are not among the configured endpoints.
type TransportFactory func() transport.IRPCClientTransport

// RPCSession is a management session on a remote server. It owns the
// candidate transaction of the session (Edit, Validate, Commit, Discard),
// answers scoped reads (Get) and hands out transaction proxies that run on
// the current data owner.
type RPCSession struct {
	rpcClientAdapter
	id           string
	newTransport TransportFactory
	owners       *xsync.MapOf[string, transport.IRPCClientTransport]
	ownersMu     sync.Mutex
	remotes      *xsync.MapOf[string, *remoteTransaction] // by proxy id, until cancelled or submitted
	counter      atomic.Uint64
	closed       atomic.Bool
}

// NewRPCSession connects to the configured endpoints and creates a new session
// The function takes a shard ID, a config, a transport factory and a serializer as parameters
// The session is opened on the server with the first request
func NewRPCSession(
	shardId uint64,
	config common.ClientConfig,
	newTransport TransportFactory,
	serializer serializer.IRPCSerializer,
) (*RPCSession, error) {
	t := newTransport()
	if err := t.Connect(config); err != nil {
		return nil, err
	}

	return &RPCSession{
		rpcClientAdapter: rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  t,
			serializer: serializer,
		},
		id:           uuid.NewString(),
		newTransport: newTransport,
		owners:       xsync.NewMapOf[string, transport.IRPCClientTransport](),
		remotes:      xsync.NewMapOf[string, *remoteTransaction](),
	}, nil
}

// ID returns the session id
func (s *RPCSession) ID() string {
	return s.id
}

// --------------------------------------------------------------------------
// Candidate operations
// --------------------------------------------------------------------------

// Edit applies op to the candidate transaction, creating it on first use
func (s *RPCSession) Edit(op common.EditOp, store tx.LogicalStore, path tx.Path, value []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	_, err := s.invoke(common.NewEditRequest(s.id, op, store, path, value))
	return err
}

// Validate validates the candidate transaction
func (s *RPCSession) Validate() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	_, err := s.invoke(common.NewSessionRequest(common.MsgTValidate, s.id))
	return err
}

// Commit commits the candidate transaction. Without a candidate nothing is
// written and the returned info is empty.
func (s *RPCSession) Commit() (tx.CommitInfo, error) {
	if s.closed.Load() {
		return tx.CommitInfo{}, ErrSessionClosed
	}
	resp, err := s.invoke(common.NewSessionRequest(common.MsgTCommit, s.id))
	if err != nil {
		return tx.CommitInfo{}, err
	}
	return tx.CommitInfo{TxID: resp.TxID, Version: resp.Version}, nil
}

// Discard cancels the candidate transaction
func (s *RPCSession) Discard() error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	_, err := s.invoke(common.NewSessionRequest(common.MsgTDiscard, s.id))
	return err
}

// Get reads committed data, uncommitted edits of the session are not visible
func (s *RPCSession) Get(store tx.LogicalStore, path tx.Path) (tx.Optional[tx.Node], error) {
	if s.closed.Load() {
		return tx.None[tx.Node](), ErrSessionClosed
	}
	resp, err := s.invoke(common.NewGetRequest(s.id, store, path))
	if err != nil {
		return tx.None[tx.Node](), err
	}
	if !resp.Ok {
		return tx.None[tx.Node](), nil
	}
	return tx.Some(tx.NewNode(resp.Value)), nil
}

// Owner returns the RPC endpoint of the node currently owning the data
func (s *RPCSession) Owner() (string, error) {
	resp, err := s.invoke(common.NewOwnerRequest())
	if err != nil {
		return "", err
	}
	if len(resp.Value) == 0 {
		return "", fmt.Errorf("owner lookup returned no endpoint")
	}
	return string(resp.Value), nil
}

// --------------------------------------------------------------------------
// Running transactions
// --------------------------------------------------------------------------

// NewReadWriteTransaction returns a proxy for a new running transaction. The
// proxy is usable at once, the owner is looked up in the background and
// operations issued meanwhile are replayed once it is known.
func (s *RPCSession) NewReadWriteTransaction() *proxy.TransactionProxy {
	id := fmt.Sprintf("%s/%d", s.id, s.counter.Add(1))
	return proxy.New(id, s.resolve(id), s.config.AskTimeout())
}

// resolve finds the owner and opens a running transaction on it
func (s *RPCSession) resolve(id string) *tx.Future[proxy.Endpoint] {
	promise := tx.NewPromise[proxy.Endpoint]()
	go func() {
		if s.closed.Load() {
			promise.Fail(fmt.Errorf("%s: %w", id, ErrSessionClosed))
			return
		}

		endpoint, err := s.Owner()
		if err != nil {
			promise.Fail(fmt.Errorf("%s: owner lookup failed: %w", id, err))
			return
		}
		owner, err := s.ownerAdapter(endpoint)
		if err != nil {
			promise.Fail(fmt.Errorf("%s: %w", id, err))
			return
		}
		resp, err := owner.invoke(common.NewTxNewRequest(s.id))
		if err != nil {
			promise.Fail(fmt.Errorf("%s: opening transaction on %s failed: %w", id, endpoint, err))
			return
		}

		remote := newRemoteTransaction(owner, s.id, resp.TxID, func() { s.remotes.Delete(id) })
		s.remotes.Store(id, remote)
		// Close may have run between the check above and Store
		if s.closed.Load() {
			remote.close()
			promise.Fail(fmt.Errorf("%s: %w", id, ErrSessionClosed))
			return
		}

		Logger.Debugf("%s: running as %s on %s", id, resp.TxID, endpoint)
		promise.Complete(remote)
	}()
	return promise.Future()
}

// ownerAdapter returns an adapter connected to endpoint. The session transport
// is reused when it only talks to endpoint, other transports are cached.
func (s *RPCSession) ownerAdapter(endpoint string) (rpcClientAdapter, error) {
	adapter := s.rpcClientAdapter
	if eps := s.config.Transport.Endpoints; len(eps) == 1 && eps[0] == endpoint {
		return adapter, nil
	}

	if t, ok := s.owners.Load(endpoint); ok {
		adapter.transport = t
		return adapter, nil
	}

	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	if s.closed.Load() {
		return adapter, ErrSessionClosed
	}
	if t, ok := s.owners.Load(endpoint); ok {
		adapter.transport = t
		return adapter, nil
	}

	config := s.config
	config.Transport.Endpoints = []string{endpoint}
	t := s.newTransport()
	if err := t.Connect(config); err != nil {
		return adapter, fmt.Errorf("connecting to owner %s failed: %w", endpoint, err)
	}
	s.owners.Store(endpoint, t)
	adapter.transport = t
	adapter.config = config
	return adapter, nil
}

// Close ends the session on every server it talked to. Transactions of the
// session are cancelled by the servers, their proxies fail afterwards.
func (s *RPCSession) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if _, err := s.invoke(common.NewCloseSessionRequest(s.id)); err != nil {
		errs = append(errs, err)
	}

	s.ownersMu.Lock()
	defer s.ownersMu.Unlock()
	endpoints := make([]string, 0, s.owners.Size())
	s.owners.Range(func(endpoint string, _ transport.IRPCClientTransport) bool {
		endpoints = append(endpoints, endpoint)
		return true
	})
	slices.Sort(endpoints)
	for _, endpoint := range endpoints {
		t, _ := s.owners.LoadAndDelete(endpoint)
		if _, err := invokeRPCRequest(s.shardId, common.NewCloseSessionRequest(s.id), t, s.serializer); err != nil {
			errs = append(errs, fmt.Errorf("closing session on %s: %w", endpoint, err))
		}
		errs = append(errs, t.Close())
	}

	errs = append(errs, s.transport.Close())

	// stop the transactions that were neither cancelled nor submitted
	s.remotes.Range(func(_ string, remote *remoteTransaction) bool {
		remote.close()
		return true
	})
	return errors.Join(errs...)
}
