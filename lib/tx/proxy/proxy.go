package proxy

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/lib/tx"
)

type operation func(Backend)

// TransactionProxy is a tx.ReadWriteTransaction whose backend is bound
// after construction. Operations issued before the backend is known are
// queued and replayed in issue order once it is.
type TransactionProxy struct {
	id string

	mu      sync.Mutex
	queue   []operation
	backend atomic.Pointer[Backend] // published after the queue was drained

	resolving atomic.Bool
	closed    atomic.Bool
}

// New returns a proxy that binds to the endpoint produced by resolution.
// If resolution fails the proxy binds to a FailedBackend carrying the cause.
// Asks to a live endpoint use askTimeout.
func New(id string, resolution *tx.Future[Endpoint], askTimeout time.Duration) *TransactionProxy {
	p := &TransactionProxy{id: id}
	resolution.OnComplete(func(endpoint Endpoint, err error) {
		if err != nil {
			resolutionFailures.Inc(1)
			log.Warningf("transaction %s: failed to resolve owner: %v", id, err)
			p.resolve(NewFailedBackend(id, err))
			return
		}
		p.resolve(NewLiveBackend(id, endpoint, askTimeout))
	})
	return p
}

func (p *TransactionProxy) ID() string {
	return p.id
}

// Resolved reports whether the backend has been published.
func (p *TransactionProxy) Resolved() bool {
	return p.backend.Load() != nil
}

func (p *TransactionProxy) loaded() Backend {
	if b := p.backend.Load(); b != nil {
		return *b
	}
	return nil
}

// resolve drains the queue onto b and publishes b once the queue is empty.
// Operations enqueued while a batch is replayed are picked up by the next
// iteration, so nothing is reordered or lost.
func (p *TransactionProxy) resolve(b Backend) {
	if !p.resolving.CompareAndSwap(false, true) {
		log.Errorf("transaction %s: backend resolved twice, ignoring %T", p.id, b)
		return
	}

	replayed := 0
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			p.backend.Store(&b)
			p.mu.Unlock()
			break
		}
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()

		for _, op := range batch {
			op(b)
		}
		replayed += len(batch)
	}

	replayedOps.Inc(int64(replayed))
	log.Debugf("transaction %s: bound to %T after replaying %d operations", p.id, b, replayed)
}

// dispatch runs op on the backend or queues it until resolution.
func (p *TransactionProxy) dispatch(op operation) {
	if b := p.loaded(); b != nil {
		op(b)
		return
	}
	p.mu.Lock()
	if b := p.loaded(); b != nil {
		p.mu.Unlock()
		op(b)
		return
	}
	p.queue = append(p.queue, op)
	p.mu.Unlock()
}

func (p *TransactionProxy) Read(store tx.LogicalStore, path tx.Path) *tx.Future[tx.Optional[tx.Node]] {
	if b := p.loaded(); b != nil {
		return b.Read(store, path)
	}
	promise := tx.NewPromise[tx.Optional[tx.Node]]()
	p.dispatch(func(b Backend) { b.Read(store, path).Pipe(promise) })
	return promise.Future()
}

func (p *TransactionProxy) Exists(store tx.LogicalStore, path tx.Path) *tx.Future[bool] {
	if b := p.loaded(); b != nil {
		return b.Exists(store, path)
	}
	promise := tx.NewPromise[bool]()
	p.dispatch(func(b Backend) { b.Exists(store, path).Pipe(promise) })
	return promise.Future()
}

func (p *TransactionProxy) Put(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	if p.closed.Load() {
		return fmt.Errorf("%s: %w", p.id, tx.ErrTransactionClosed)
	}
	p.dispatch(func(b Backend) { b.Put(store, path, data) })
	return nil
}

func (p *TransactionProxy) Merge(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	if p.closed.Load() {
		return fmt.Errorf("%s: %w", p.id, tx.ErrTransactionClosed)
	}
	p.dispatch(func(b Backend) { b.Merge(store, path, data) })
	return nil
}

func (p *TransactionProxy) Delete(store tx.LogicalStore, path tx.Path) error {
	if p.closed.Load() {
		return fmt.Errorf("%s: %w", p.id, tx.ErrTransactionClosed)
	}
	p.dispatch(func(b Backend) { b.Delete(store, path) })
	return nil
}

// Cancel closes the transaction. Only the first Cancel or Commit wins, a
// Cancel that loses returns false without contacting the backend.
func (p *TransactionProxy) Cancel() bool {
	if !p.closed.CompareAndSwap(false, true) {
		return false
	}
	p.dispatch(func(b Backend) { b.Cancel() })
	return true
}

func (p *TransactionProxy) Commit() *tx.Future[tx.CommitInfo] {
	if !p.closed.CompareAndSwap(false, true) {
		return tx.Failed[tx.CommitInfo](fmt.Errorf("%s: %w", p.id, tx.ErrTransactionAlreadyClosed))
	}
	if b := p.loaded(); b != nil {
		return b.Commit()
	}
	promise := tx.NewPromise[tx.CommitInfo]()
	p.dispatch(func(b Backend) { b.Commit().Pipe(promise) })
	return promise.Future()
}
