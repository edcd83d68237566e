package dstore

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/datastore/dstore/internal"
	"github.com/ValentinKolb/dTX/lib/tx"
	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFSM(t *testing.T) *TreeStateMachine {
	t.Helper()
	fsm, ok := CreateStateMachineFactory()(1, 1).(*TreeStateMachine)
	require.True(t, ok)
	return fsm
}

func entry(index uint64, cmd internal.Command) sm.Entry {
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func snapshotOf(t *testing.T, fsm *TreeStateMachine) *datastore.Tree {
	t.Helper()
	res, err := fsm.Lookup(internal.Query{Type: internal.QueryTSnapshot})
	require.NoError(t, err)
	tree, ok := res.(*datastore.Tree)
	require.True(t, ok)
	return tree
}

func TestUpdate(t *testing.T) {
	t.Run("applies transaction and reports index as version", func(t *testing.T) {
		fsm := newFSM(t)
		cmd := internal.Command{Type: internal.CommandTApply, TxID: "tx-1", Mods: []datastore.Modification{
			{Op: datastore.OpPut, Store: tx.Configuration, Path: tx.NewPath("a"), Data: tx.NewNodeString(`{"x":1}`)},
			{Op: datastore.OpMerge, Store: tx.Configuration, Path: tx.NewPath("a"), Data: tx.NewNodeString(`{"y":2}`)},
		}}

		res, err := fsm.Update([]sm.Entry{entry(7, cmd)})
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, uint64(datastore.RetCSuccess), res[0].Result.Value)
		assert.Equal(t, uint64(7), binary.BigEndian.Uint64(res[0].Result.Data))

		tree := snapshotOf(t, fsm)
		assert.Equal(t, uint64(7), tree.Version())
		node, ok := tree.Read(tx.Configuration, tx.NewPath("a")).Get()
		require.True(t, ok)
		assert.JSONEq(t, `{"x":1,"y":2}`, node.String())

		version, err := fsm.Lookup(internal.Query{Type: internal.QueryTVersion})
		require.NoError(t, err)
		assert.Equal(t, uint64(7), version)
	})

	t.Run("rejected transaction leaves tree untouched", func(t *testing.T) {
		fsm := newFSM(t)
		ok := internal.Command{Type: internal.CommandTApply, TxID: "ok", Mods: []datastore.Modification{
			{Op: datastore.OpPut, Store: tx.Operational, Path: tx.NewPath("keep"), Data: tx.NewNodeString(`1`)},
		}}
		bad := internal.Command{Type: internal.CommandTApply, TxID: "bad", Mods: []datastore.Modification{
			{Op: datastore.OpPut, Store: tx.Operational, Path: tx.NewPath("partial"), Data: tx.NewNodeString(`2`)},
			{Op: datastore.OpPut, Store: tx.LogicalStore(42), Path: tx.NewPath("x"), Data: tx.NewNodeString(`3`)},
		}}

		res, err := fsm.Update([]sm.Entry{entry(1, ok), entry(2, bad)})
		require.NoError(t, err)
		assert.Equal(t, uint64(datastore.RetCSuccess), res[0].Result.Value)
		assert.Equal(t, uint64(datastore.RetCInvalidOperation), res[1].Result.Value)
		assert.Contains(t, string(res[1].Result.Data), "transaction bad rejected")

		tree := snapshotOf(t, fsm)
		assert.Equal(t, uint64(1), tree.Version())
		assert.True(t, tree.Exists(tx.Operational, tx.NewPath("keep")))
		assert.False(t, tree.Exists(tx.Operational, tx.NewPath("partial")))
	})

	t.Run("malformed commands", func(t *testing.T) {
		fsm := newFSM(t)
		res, err := fsm.Update([]sm.Entry{
			{Index: 1},
			{Index: 2, Cmd: []byte{0, 1}},
			entry(3, internal.Command{Type: internal.CommandType(9)}),
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(datastore.RetCInvalidOperation), res[0].Result.Value)
		assert.Equal(t, uint64(datastore.RetCInternalError), res[1].Result.Value)
		assert.Equal(t, uint64(datastore.RetCInvalidOperation), res[2].Result.Value)
		assert.Equal(t, uint64(0), snapshotOf(t, fsm).Version())
	})

	t.Run("published snapshots are immutable", func(t *testing.T) {
		fsm := newFSM(t)
		before := snapshotOf(t, fsm)
		_, err := fsm.Update([]sm.Entry{entry(1, internal.Command{Type: internal.CommandTApply, Mods: []datastore.Modification{
			{Op: datastore.OpPut, Store: tx.Configuration, Path: tx.NewPath("n"), Data: tx.NewNodeString(`1`)},
		}})})
		require.NoError(t, err)
		assert.False(t, before.Exists(tx.Configuration, tx.NewPath("n")))
		assert.True(t, snapshotOf(t, fsm).Exists(tx.Configuration, tx.NewPath("n")))
	})
}

func TestLookupUnknownQuery(t *testing.T) {
	fsm := newFSM(t)

	_, err := fsm.Lookup("snapshot")
	var dsErr *datastore.Error
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, datastore.RetCInternalError, dsErr.Code)

	_, err = fsm.Lookup(internal.Query{Type: internal.QueryType(99)})
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, datastore.RetCInvalidOperation, dsErr.Code)
}

func TestSnapshotRoundTrip(t *testing.T) {
	src := newFSM(t)
	_, err := src.Update([]sm.Entry{entry(5, internal.Command{Type: internal.CommandTApply, Mods: []datastore.Modification{
		{Op: datastore.OpPut, Store: tx.Configuration, Path: tx.NewPath("a", "b"), Data: tx.NewNodeString(`{"k":"v"}`)},
		{Op: datastore.OpPut, Store: tx.Operational, Path: tx.NewPath("c"), Data: tx.NewNode([]byte{0, 255})},
	}})})
	require.NoError(t, err)

	ctx, err := src.PrepareSnapshot()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(ctx, &buf, nil, nil))

	dst := newFSM(t)
	require.NoError(t, dst.RecoverFromSnapshot(&buf, nil, nil))

	tree := snapshotOf(t, dst)
	assert.Equal(t, uint64(5), tree.Version())
	node, ok := tree.Read(tx.Configuration, tx.NewPath("a", "b")).Get()
	require.True(t, ok)
	assert.JSONEq(t, `{"k":"v"}`, node.String())
	node, ok = tree.Read(tx.Operational, tx.NewPath("c")).Get()
	require.True(t, ok)
	assert.Equal(t, []byte{0, 255}, node.Bytes())

	assert.Error(t, src.SaveSnapshot("not a tree", &buf, nil, nil))
}
