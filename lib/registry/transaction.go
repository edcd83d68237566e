package registry

import (
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/util"
)

// Kind distinguishes the candidate from running transactions.
type Kind uint8

const (
	KindCandidate Kind = iota
	KindRunning
)

func (k Kind) String() string {
	switch k {
	case KindCandidate:
		return "candidate"
	case KindRunning:
		return "running"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// Transaction is a tracked transaction. It forwards to the datastore
// transaction and resets its idle watchdog on every call.
type Transaction struct {
	registry *TransactionRegistry
	delegate tx.ReadWriteTransaction
	kind     Kind
	done     atomic.Bool
	watchdog util.Timer
}

func (t *Transaction) ID() string {
	return t.delegate.ID()
}

func (t *Transaction) Kind() Kind {
	return t.kind
}

// Done reports whether the transaction was committed, cancelled or expired.
func (t *Transaction) Done() bool {
	return t.done.Load()
}

func (t *Transaction) touch() {
	if t.watchdog != nil && !t.done.Load() {
		t.watchdog.Reset(t.registry.idleTimeout)
	}
}

func (t *Transaction) stopWatchdog() {
	if t.watchdog != nil {
		t.watchdog.Stop()
	}
}

func (t *Transaction) Read(store tx.LogicalStore, path tx.Path) *tx.Future[tx.Optional[tx.Node]] {
	t.touch()
	return t.delegate.Read(store, path)
}

func (t *Transaction) Exists(store tx.LogicalStore, path tx.Path) *tx.Future[bool] {
	t.touch()
	return t.delegate.Exists(store, path)
}

func (t *Transaction) Put(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	t.touch()
	return t.delegate.Put(store, path, data)
}

func (t *Transaction) Merge(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	t.touch()
	return t.delegate.Merge(store, path, data)
}

func (t *Transaction) Delete(store tx.LogicalStore, path tx.Path) error {
	t.touch()
	return t.delegate.Delete(store, path)
}

// Cancel cancels and untracks the transaction.
func (t *Transaction) Cancel() bool {
	return t.registry.cancelTransaction(t)
}

// Commit untracks the transaction and commits it. Unlike
// TransactionRegistry.CommitTransaction it does not wait for the outcome.
func (t *Transaction) Commit() *tx.Future[tx.CommitInfo] {
	return t.registry.submitTransaction(t)
}
