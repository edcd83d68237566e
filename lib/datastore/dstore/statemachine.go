package dstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/datastore/dstore/internal"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// TreeStateMachine replicates a datastore.Tree. Updates build a new tree and
// swap it in atomically, so lookups never block on writers and every
// snapshot handed out stays immutable.
type TreeStateMachine struct {
	replicaID uint64
	shardID   uint64
	tree      atomic.Pointer[datastore.Tree]
}

// CreateStateMachineFactory returns the factory Dragonboat uses to create
// the state machine of a replica.
func CreateStateMachineFactory() func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
		fsm := &TreeStateMachine{replicaID: replicaID, shardID: shardID}
		fsm.tree.Store(datastore.NewTree())
		return fsm
	}
}

// Lookup answers read-only queries against the current tree.
func (fsm *TreeStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, datastore.NewError(datastore.RetCInternalError, fmt.Sprintf("invalid Query type: %T", itf))
	}

	switch q.Type {
	case internal.QueryTSnapshot:
		return fsm.tree.Load(), nil
	case internal.QueryTVersion:
		return fsm.tree.Load().Version(), nil
	default:
		return nil, datastore.NewError(datastore.RetCInvalidOperation, fmt.Sprintf("unknown Query operation: %d", q.Type))
	}
}

// Update applies committed transactions. Each entry carries the complete
// modification log of one transaction and is applied all-or-nothing. The
// raft index of the entry becomes the version of the resulting tree.
func (fsm *TreeStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	current := fsm.tree.Load()
	changed := false

	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Value: uint64(datastore.RetCInvalidOperation), Data: []byte("empty command ignored")}
			continue
		}

		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(datastore.RetCInternalError),
				Data:  []byte(fmt.Sprintf("failed to deserialize command: %v", err)),
			}
			continue
		}
		if cmd.Type != internal.CommandTApply {
			entries[idx].Result = sm.Result{
				Value: uint64(datastore.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("unknown Command operation: %s", cmd.Type)),
			}
			continue
		}

		next := current.Clone()
		if err := applyAll(next, cmd.Mods); err != nil {
			entries[idx].Result = sm.Result{
				Value: uint64(datastore.RetCInvalidOperation),
				Data:  []byte(fmt.Sprintf("transaction %s rejected: %v", cmd.TxID, err)),
			}
			continue
		}
		next.SetVersion(e.Index)
		current = next
		changed = true

		version := make([]byte, 8)
		binary.BigEndian.PutUint64(version, e.Index)
		entries[idx].Result = sm.Result{Value: uint64(datastore.RetCSuccess), Data: version}
	}

	if changed {
		fsm.tree.Store(current)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("State machine took long to update. Batch updated %d entries, took %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func applyAll(t *datastore.Tree, mods []datastore.Modification) error {
	for i, m := range mods {
		if err := t.Apply(m); err != nil {
			return fmt.Errorf("modification %d: %w", i, err)
		}
	}
	return nil
}

// PrepareSnapshot captures the current tree. Trees are never modified after
// publication, so the pointer is a consistent snapshot.
func (fsm *TreeStateMachine) PrepareSnapshot() (interface{}, error) {
	return fsm.tree.Load(), nil
}

// SaveSnapshot writes the tree captured by PrepareSnapshot.
func (fsm *TreeStateMachine) SaveSnapshot(ctx interface{}, writer io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	tree, ok := ctx.(*datastore.Tree)
	if !ok {
		return fmt.Errorf("unexpected snapshot context %T", ctx)
	}
	return tree.Save(writer)
}

// RecoverFromSnapshot replaces the current tree with the one in r.
func (fsm *TreeStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	tree, err := datastore.LoadTree(r)
	if err != nil {
		return err
	}
	fsm.tree.Store(tree)
	return nil
}

// Close performs any necessary cleanup.
func (fsm *TreeStateMachine) Close() error {
	return nil
}
