package lstore

import (
	"sync"
	"testing"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitIsVisibleToNewTransactions(t *testing.T) {
	b := NewLocalBroker()
	p := tx.NewPath("interfaces", "eth0")

	w, err := b.NewReadWriteTransaction()
	require.NoError(t, err)
	require.NoError(t, w.Put(tx.Configuration, p, tx.NewNodeString(`{"mtu":1500}`)))

	// snapshot taken before the commit
	r, err := b.NewReadWriteTransaction()
	require.NoError(t, err)
	exists, err := r.Exists(tx.Configuration, p).Wait()
	require.NoError(t, err)
	assert.False(t, exists)

	info, err := w.Commit().Wait()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)

	// the old snapshot is stable
	exists, err = r.Exists(tx.Configuration, p).Wait()
	require.NoError(t, err)
	assert.False(t, exists)

	fresh, err := b.NewReadWriteTransaction()
	require.NoError(t, err)
	got, err := fresh.Read(tx.Configuration, p).Wait()
	require.NoError(t, err)
	n, ok := got.Get()
	require.True(t, ok)
	assert.Equal(t, `{"mtu":1500}`, n.String())
}

func TestConcurrentCommitsAreAllApplied(t *testing.T) {
	b := NewLocalBroker()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn, err := b.NewReadWriteTransaction()
			if !assert.NoError(t, err) {
				return
			}
			assert.NoError(t, txn.Merge(tx.Configuration, tx.NewPath("counters"), tx.NewNodeString(`{"c`+string(rune('a'+i))+`":1}`)))
			_, err = txn.Commit().Wait()
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	txn, err := b.NewReadWriteTransaction()
	require.NoError(t, err)
	got, err := txn.Read(tx.Configuration, tx.NewPath("counters")).Wait()
	require.NoError(t, err)
	n, _ := got.Get()
	for i := 0; i < 20; i++ {
		assert.Contains(t, n.String(), `"c`+string(rune('a'+i))+`":1`)
	}
}

func TestValidateExtension(t *testing.T) {
	_, ok := NewLocalBroker().ValidateExtension()
	assert.False(t, ok)

	v, ok := NewLocalBroker(WithValidator(datastore.NewValidator())).ValidateExtension()
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestClosedBroker(t *testing.T) {
	b := NewLocalBroker()
	txn, err := b.NewReadWriteTransaction()
	require.NoError(t, err)
	require.NoError(t, txn.Put(tx.Configuration, tx.NewPath("a"), tx.NewNodeString(`1`)))

	require.NoError(t, b.Close())

	_, err = b.NewReadWriteTransaction()
	assert.Error(t, err)
	_, err = txn.Commit().Wait()
	var dsErr *datastore.Error
	require.ErrorAs(t, err, &dsErr)
	assert.Equal(t, datastore.RetCClosed, dsErr.Code)
}
