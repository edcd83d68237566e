package datastore

import (
	"errors"
	"testing"

	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore is a minimal broker backend: a head tree and a commit log
type recordingStore struct {
	head      *Tree
	snapshots int
	committed [][]Modification
}

func (s *recordingStore) newTransaction(id string) *Transaction {
	return NewTransaction(id,
		func() (*Tree, error) {
			s.snapshots++
			return s.head, nil
		},
		func(txID string, mods []Modification) *tx.Future[tx.CommitInfo] {
			s.committed = append(s.committed, mods)
			return tx.Completed(tx.CommitInfo{TxID: txID, Version: uint64(len(s.committed))})
		})
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	s := &recordingStore{head: NewTree()}
	txn := s.newTransaction("t1")
	p := tx.NewPath("a")

	require.NoError(t, txn.Put(tx.Configuration, p, node(`{"x":1}`)))

	got, err := txn.Read(tx.Configuration, p).Wait()
	require.NoError(t, err)
	n, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, `{"x":1}`, n.String())

	// the head is untouched until commit
	assert.False(t, s.head.Read(tx.Configuration, p).IsPresent())
	assert.Equal(t, 1, s.snapshots)
}

func TestTransactionCommit(t *testing.T) {
	s := &recordingStore{head: NewTree()}
	txn := s.newTransaction("t1")

	require.NoError(t, txn.Put(tx.Configuration, tx.NewPath("a"), node(`1`)))
	require.NoError(t, txn.Delete(tx.Configuration, tx.NewPath("b")))

	info, err := txn.Commit().Wait()
	require.NoError(t, err)
	assert.Equal(t, "t1", info.TxID)
	require.Len(t, s.committed, 1)
	assert.Equal(t, []OpType{OpPut, OpDelete}, []OpType{s.committed[0][0].Op, s.committed[0][1].Op})

	assert.ErrorIs(t, txn.Put(tx.Configuration, tx.NewPath("c"), node(`1`)), tx.ErrTransactionClosed)
	_, err = txn.Commit().Wait()
	assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
	assert.False(t, txn.Cancel())
}

func TestTransactionEmptyCommitSkipsStore(t *testing.T) {
	s := &recordingStore{head: NewTree()}
	_, err := s.newTransaction("t1").Commit().Wait()
	require.NoError(t, err)
	assert.Empty(t, s.committed)
	assert.Equal(t, 0, s.snapshots)
}

func TestTransactionCancel(t *testing.T) {
	s := &recordingStore{head: NewTree()}
	txn := s.newTransaction("t1")
	require.NoError(t, txn.Merge(tx.Operational, tx.NewPath("a"), node(`1`)))

	assert.True(t, txn.Cancel())
	assert.False(t, txn.Cancel())
	assert.ErrorIs(t, txn.Delete(tx.Operational, tx.NewPath("a")), tx.ErrTransactionClosed)
	_, err := txn.Commit().Wait()
	assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
	assert.Empty(t, s.committed)
}

func TestTransactionSnapshotFailure(t *testing.T) {
	boom := errors.New("no quorum")
	txn := NewTransaction("t1",
		func() (*Tree, error) { return nil, boom },
		func(string, []Modification) *tx.Future[tx.CommitInfo] { return nil })

	_, err := txn.Read(tx.Configuration, tx.NewPath("a")).Wait()
	assert.ErrorIs(t, err, boom)
	_, err = txn.Exists(tx.Configuration, tx.NewPath("a")).Wait()
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, txn.Put(tx.Configuration, tx.NewPath("a"), node(`1`)), boom)
}

func TestValidator(t *testing.T) {
	s := &recordingStore{head: NewTree()}

	t.Run("accepts documents", func(t *testing.T) {
		txn := s.newTransaction("ok")
		require.NoError(t, txn.Put(tx.Configuration, tx.NewPath("a"), node(`{"mtu":1500}`)))
		_, err := NewValidator().Validate(txn).Wait()
		assert.NoError(t, err)
	})

	t.Run("rejects malformed nodes", func(t *testing.T) {
		txn := s.newTransaction("bad")
		require.NoError(t, txn.Put(tx.Configuration, tx.NewPath("a"), node(`{"mtu":`)))
		_, err := NewValidator().Validate(txn).Wait()
		var doc *tx.DocumentedError
		require.ErrorAs(t, err, &doc)
		assert.Equal(t, tx.TagInvalidValue, doc.Tag)
	})

	t.Run("ignores nodes deleted later", func(t *testing.T) {
		txn := s.newTransaction("deleted")
		require.NoError(t, txn.Put(tx.Configuration, tx.NewPath("a"), node(`{`)))
		require.NoError(t, txn.Delete(tx.Configuration, tx.NewPath("a")))
		_, err := NewValidator().Validate(txn).Wait()
		assert.NoError(t, err)
	})

	t.Run("runs hooks", func(t *testing.T) {
		txn := s.newTransaction("hook")
		require.NoError(t, txn.Put(tx.Operational, tx.NewPath("a"), node(`{}`)))
		hookErr := errors.New("operational data is read only")
		v := NewValidator(func(store tx.LogicalStore, _ tx.Path, _ tx.Node) error {
			if store == tx.Operational {
				return hookErr
			}
			return nil
		})
		_, err := v.Validate(txn).Wait()
		assert.ErrorIs(t, err, hookErr)
	})
}
