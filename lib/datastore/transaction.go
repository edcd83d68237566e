package datastore

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("datastore")

// SnapshotFunc returns the current published tree of a broker.
type SnapshotFunc func() (*Tree, error)

// CommitFunc applies a modification log on behalf of transaction txID.
type CommitFunc func(txID string, mods []Modification) *tx.Future[tx.CommitInfo]

// Transaction buffers modifications on top of a lazily taken snapshot.
// It is shared by all brokers, which only differ in how snapshots are
// obtained and how the log is committed.
type Transaction struct {
	id       string
	snapshot SnapshotFunc
	commit   CommitFunc

	mu     sync.Mutex
	base   *Tree // published snapshot, read only
	view   *Tree // private copy, created on first write
	mods   []Modification
	closed bool
}

// NewTransaction creates a transaction that reads through snapshot and
// commits through commit.
func NewTransaction(id string, snapshot SnapshotFunc, commit CommitFunc) *Transaction {
	return &Transaction{id: id, snapshot: snapshot, commit: commit}
}

func (t *Transaction) ID() string {
	return t.id
}

// current returns the tree reads are served from. Caller holds mu.
func (t *Transaction) current() (*Tree, error) {
	if t.view != nil {
		return t.view, nil
	}
	if t.base == nil {
		base, err := t.snapshot()
		if err != nil {
			return nil, err
		}
		t.base = base
	}
	return t.base, nil
}

// Snapshot returns the transaction's view including its own modifications.
// The returned tree must not be modified.
func (t *Transaction) Snapshot() (*Tree, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current()
}

// Modifications returns a copy of the modification log.
func (t *Transaction) Modifications() []Modification {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Modification(nil), t.mods...)
}

func (t *Transaction) Read(store tx.LogicalStore, path tx.Path) *tx.Future[tx.Optional[tx.Node]] {
	t.mu.Lock()
	defer t.mu.Unlock()
	tree, err := t.current()
	if err != nil {
		return tx.Failed[tx.Optional[tx.Node]](err)
	}
	return tx.Completed(tree.Read(store, path))
}

func (t *Transaction) Exists(store tx.LogicalStore, path tx.Path) *tx.Future[bool] {
	t.mu.Lock()
	defer t.mu.Unlock()
	tree, err := t.current()
	if err != nil {
		return tx.Failed[bool](err)
	}
	return tx.Completed(tree.Exists(store, path))
}

func (t *Transaction) Put(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	return t.modify(Modification{Op: OpPut, Store: store, Path: path, Data: data})
}

func (t *Transaction) Merge(store tx.LogicalStore, path tx.Path, data tx.Node) error {
	return t.modify(Modification{Op: OpMerge, Store: store, Path: path, Data: data})
}

func (t *Transaction) Delete(store tx.LogicalStore, path tx.Path) error {
	return t.modify(Modification{Op: OpDelete, Store: store, Path: path})
}

func (t *Transaction) modify(m Modification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("%s: %w", t.id, tx.ErrTransactionClosed)
	}
	if t.view == nil {
		cur, err := t.current()
		if err != nil {
			return err
		}
		t.view = cur.Clone()
	}
	if err := t.view.Apply(m); err != nil {
		return err
	}
	t.mods = append(t.mods, m)
	return nil
}

func (t *Transaction) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.closed = true
	t.view, t.base, t.mods = nil, nil, nil
	log.Debugf("transaction %s cancelled", t.id)
	return true
}

func (t *Transaction) Commit() *tx.Future[tx.CommitInfo] {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return tx.Failed[tx.CommitInfo](fmt.Errorf("%s: %w", t.id, tx.ErrTransactionAlreadyClosed))
	}
	t.closed = true
	mods := t.mods
	t.mu.Unlock()

	if len(mods) == 0 {
		log.Debugf("transaction %s committed without modifications", t.id)
		return tx.Completed(tx.CommitInfo{TxID: t.id})
	}
	log.Debugf("committing transaction %s with %d modifications", t.id, len(mods))
	return t.commit(t.id, mods)
}
