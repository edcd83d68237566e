// Package lstore implements a single process datastore broker.
//
// The broker keeps one head tree. Transactions snapshot the head when they
// first touch data and commits replay their modification log onto the head
// that is current at commit time, so concurrent transactions are merged
// with last-writer-wins semantics.
package lstore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/google/uuid"
)

type broker struct {
	mu        sync.Mutex
	head      *datastore.Tree
	validator datastore.Validator
	closed    atomic.Bool
}

// Option configures a local broker.
type Option func(*broker)

// WithValidator enables the validate extension.
func WithValidator(v datastore.Validator) Option {
	return func(b *broker) { b.validator = v }
}

// WithTree starts the broker from an existing tree instead of an empty one.
func WithTree(t *datastore.Tree) Option {
	return func(b *broker) { b.head = t }
}

// NewLocalBroker creates a broker that keeps all data in memory.
func NewLocalBroker(opts ...Option) datastore.Broker {
	b := &broker{head: datastore.NewTree()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// --------------------------------------------------------------------------
// Interface Methods (docu see datastore.Broker)
// --------------------------------------------------------------------------

func (b *broker) NewReadWriteTransaction() (tx.ReadWriteTransaction, error) {
	if b.closed.Load() {
		return nil, datastore.NewError(datastore.RetCClosed, "broker is closed")
	}
	return datastore.NewTransaction(uuid.NewString(), b.snapshot, b.commit), nil
}

func (b *broker) ValidateExtension() (datastore.Validator, bool) {
	return b.validator, b.validator != nil
}

func (b *broker) Close() error {
	b.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (b *broker) snapshot() (*datastore.Tree, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.head, nil
}

func (b *broker) commit(txID string, mods []datastore.Modification) *tx.Future[tx.CommitInfo] {
	if b.closed.Load() {
		return tx.Failed[tx.CommitInfo](datastore.NewError(datastore.RetCClosed, "broker is closed"))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := b.head.Clone()
	for i, m := range mods {
		if err := next.Apply(m); err != nil {
			return tx.Failed[tx.CommitInfo](fmt.Errorf("modification %d of %s: %w", i, txID, err))
		}
	}
	next.SetVersion(b.head.Version() + 1)
	b.head = next
	return tx.Completed(tx.CommitInfo{TxID: txID, Version: next.Version()})
}
