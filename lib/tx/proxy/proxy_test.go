package proxy

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore/lstore"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localEndpoint executes requests directly against a local transaction and
// records what it saw, together with whether the proxy was already bound.
type localEndpoint struct {
	txn   tx.ReadWriteTransaction
	proxy *TransactionProxy

	mu       sync.Mutex
	seen     []Request
	resolved []bool
}

func (e *localEndpoint) record(req Request) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = append(e.seen, req)
	if e.proxy != nil {
		e.resolved = append(e.resolved, e.proxy.Resolved())
	}
}

func (e *localEndpoint) Ask(req Request, _ time.Duration) *tx.Future[Reply] {
	e.record(req)
	return HandleRequest(e.txn, req)
}

func (e *localEndpoint) Tell(req Request) {
	e.record(req)
	HandleRequest(e.txn, req)
}

func (e *localEndpoint) requests() []Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Request(nil), e.seen...)
}

func newLocalEndpoint(t *testing.T) *localEndpoint {
	t.Helper()
	txn, err := lstore.NewLocalBroker().NewReadWriteTransaction()
	require.NoError(t, err)
	return &localEndpoint{txn: txn}
}

// timeoutEndpoint never answers in time.
type timeoutEndpoint struct{}

func (timeoutEndpoint) Ask(req Request, timeout time.Duration) *tx.Future[Reply] {
	return tx.Failed[Reply](fmt.Errorf("%w: %s after %s", tx.ErrAskTimeout, req, timeout))
}

func (timeoutEndpoint) Tell(Request) {}

func newUnresolved(id string) (*TransactionProxy, *tx.Promise[Endpoint]) {
	resolution := tx.NewPromise[Endpoint]()
	return New(id, resolution.Future(), time.Second), resolution
}

func TestReplayPreservesIssueOrder(t *testing.T) {
	p, resolution := newUnresolved("tx-order")
	ep := newLocalEndpoint(t)
	ep.proxy = p

	var expected []Request
	for i := 0; i < 20; i++ {
		path := tx.NewPath("item", fmt.Sprint(i))
		data := tx.NewNodeString(fmt.Sprintf(`{"i":%d}`, i))
		switch i % 3 {
		case 0:
			require.NoError(t, p.Put(tx.Configuration, path, data))
			expected = append(expected, PutRequest{Store: tx.Configuration, Path: path, Data: data})
		case 1:
			require.NoError(t, p.Merge(tx.Operational, path, data))
			expected = append(expected, MergeRequest{Store: tx.Operational, Path: path, Data: data})
		case 2:
			p.Exists(tx.Configuration, path)
			expected = append(expected, ExistsRequest{Store: tx.Configuration, Path: path})
		}
	}
	assert.Empty(t, ep.requests())
	assert.False(t, p.Resolved())

	resolution.Complete(ep)

	assert.True(t, p.Resolved())
	assert.Equal(t, expected, ep.requests())
	assert.NotContains(t, ep.resolved, true)
}

func TestReentrantOperationsAreReplayedBeforePublication(t *testing.T) {
	p, resolution := newUnresolved("tx-reentrant")
	ep := newLocalEndpoint(t)
	ep.proxy = p

	a, b := tx.NewPath("a"), tx.NewPath("b")
	var reentrantErr error
	p.Read(tx.Configuration, a).OnComplete(func(tx.Optional[tx.Node], error) {
		reentrantErr = p.Put(tx.Configuration, b, tx.NewNodeString(`"from callback"`))
	})
	require.NoError(t, p.Delete(tx.Configuration, a))

	resolution.Complete(ep)
	require.NoError(t, reentrantErr)

	assert.Equal(t, []Request{
		ReadRequest{Store: tx.Configuration, Path: a},
		DeleteRequest{Store: tx.Configuration, Path: a},
		PutRequest{Store: tx.Configuration, Path: b, Data: tx.NewNodeString(`"from callback"`)},
	}, ep.requests())
	assert.Equal(t, []bool{false, false, false}, ep.resolved)

	got, err := p.Read(tx.Configuration, b).Wait()
	require.NoError(t, err)
	assert.True(t, got.IsPresent())
}

func TestPutThenReadOnUnresolvedProxy(t *testing.T) {
	p, resolution := newUnresolved("tx-echo")
	ep := newLocalEndpoint(t)

	x := tx.NewNodeString(`{"name":"X"}`)
	require.NoError(t, p.Put(tx.Configuration, "/a", x))
	read := p.Read(tx.Configuration, "/a")

	_, _, settled := read.Poll()
	assert.False(t, settled)

	resolution.Complete(ep)

	got, err := read.Wait()
	require.NoError(t, err)
	node, ok := got.Get()
	require.True(t, ok)
	assert.True(t, x.Equal(node))

	seen := ep.requests()
	require.Len(t, seen, 2)
	assert.IsType(t, PutRequest{}, seen[0])
	assert.IsType(t, ReadRequest{}, seen[1])
}

func TestTerminalOperations(t *testing.T) {
	t.Run("cancel twice", func(t *testing.T) {
		ep := newLocalEndpoint(t)
		p := New("tx-cancel", tx.Completed[Endpoint](ep), time.Second)

		assert.True(t, p.Cancel())
		assert.False(t, p.Cancel())
		assert.Equal(t, []Request{CancelRequest{}}, ep.requests())
	})

	t.Run("cancel twice before resolution", func(t *testing.T) {
		p, resolution := newUnresolved("tx-cancel-queued")
		ep := newLocalEndpoint(t)

		assert.True(t, p.Cancel())
		assert.False(t, p.Cancel())
		resolution.Complete(ep)
		assert.Equal(t, []Request{CancelRequest{}}, ep.requests())
	})

	t.Run("commit after cancel", func(t *testing.T) {
		p := New("tx-1", tx.Completed[Endpoint](newLocalEndpoint(t)), time.Second)
		require.True(t, p.Cancel())

		_, err := p.Commit().Wait()
		assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
		assert.EqualError(t, err, "tx-1: transaction already closed")
	})

	t.Run("cancel after commit", func(t *testing.T) {
		p := New("tx-2", tx.Completed[Endpoint](newLocalEndpoint(t)), time.Second)
		_, err := p.Commit().Wait()
		require.NoError(t, err)

		assert.False(t, p.Cancel())
		_, err = p.Commit().Wait()
		assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
	})

	t.Run("writes after close", func(t *testing.T) {
		p, _ := newUnresolved("tx-3")
		require.True(t, p.Cancel())

		assert.ErrorIs(t, p.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)), tx.ErrTransactionClosed)
		assert.ErrorIs(t, p.Merge(tx.Configuration, "/a", tx.NewNodeString(`1`)), tx.ErrTransactionClosed)
		assert.ErrorIs(t, p.Delete(tx.Configuration, "/a"), tx.ErrTransactionClosed)
	})

	t.Run("reads after close are forwarded", func(t *testing.T) {
		ep := newLocalEndpoint(t)
		p := New("tx-4", tx.Completed[Endpoint](ep), time.Second)
		require.True(t, p.Cancel())

		_, err := p.Exists(tx.Configuration, "/a").Wait()
		require.NoError(t, err)
		assert.Len(t, ep.requests(), 2)
	})
}

func TestCommitThroughLiveBackend(t *testing.T) {
	broker := lstore.NewLocalBroker()
	txn, err := broker.NewReadWriteTransaction()
	require.NoError(t, err)

	p, resolution := newUnresolved("tx-commit")
	require.NoError(t, p.Put(tx.Operational, "/counters", tx.NewNodeString(`{"rx":1}`)))
	commit := p.Commit()
	resolution.Complete(&localEndpoint{txn: txn})

	info, err := commit.Wait()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.Version)

	check, err := broker.NewReadWriteTransaction()
	require.NoError(t, err)
	exists, err := check.Exists(tx.Operational, "/counters").Wait()
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFailedResolution(t *testing.T) {
	cause := errors.New("no leader for shard")
	p, resolution := newUnresolved("tx-failed")

	read := p.Read(tx.Configuration, "/a")
	exists := p.Exists(tx.Configuration, "/a")
	require.NoError(t, p.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)))
	require.NoError(t, p.Merge(tx.Configuration, "/a", tx.NewNodeString(`1`)))

	resolution.Fail(cause)

	_, err := read.Wait()
	var readFailed *tx.ReadFailedError
	require.ErrorAs(t, err, &readFailed)
	assert.ErrorIs(t, err, cause)

	_, err = exists.Wait()
	assert.ErrorIs(t, err, cause)

	// calls after resolution behave the same
	_, err = p.Read(tx.Operational, "/b").Wait()
	assert.ErrorIs(t, err, cause)
	assert.NoError(t, p.Delete(tx.Configuration, "/a"))

	_, err = p.Commit().Wait()
	var commitFailed *tx.CommitFailedError
	require.ErrorAs(t, err, &commitFailed)
	assert.Equal(t, tx.StageCommit, commitFailed.Stage)
	assert.ErrorIs(t, err, cause)
}

func TestFailedBackendCancel(t *testing.T) {
	p := New("tx-failed-cancel", tx.Failed[Endpoint](errors.New("down")), time.Second)
	assert.True(t, p.Cancel())
	assert.False(t, p.Cancel())
}

func TestAskTimeoutReportsMasterDown(t *testing.T) {
	p := New("tx-timeout", tx.Completed[Endpoint](timeoutEndpoint{}), 10*time.Millisecond)

	tests := []struct {
		name string
		call func() error
	}{
		{"read", func() error { _, err := p.Read(tx.Configuration, "/a").Wait(); return err }},
		{"exists", func() error { _, err := p.Exists(tx.Configuration, "/a").Wait(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, tx.ErrBackendUnavailable)
			assert.ErrorIs(t, err, tx.ErrAskTimeout)

			doc := tx.ToDocumented(err)
			assert.Equal(t, tx.ErrorTypeApplication, doc.Type)
			assert.Equal(t, tx.TagOperationFailed, doc.Tag)
			assert.Equal(t, tx.SeverityWarning, doc.Severity)
			assert.Contains(t, doc.Message, "master is down, retry")
		})
	}

	t.Run("commit", func(t *testing.T) {
		_, err := p.Commit().Wait()
		var commitFailed *tx.CommitFailedError
		require.ErrorAs(t, err, &commitFailed)
		assert.ErrorIs(t, err, tx.ErrBackendUnavailable)
	})
}

func TestOwnerFailureIsCommitFailure(t *testing.T) {
	ep := newLocalEndpoint(t)
	p := New("tx-owner-failure", tx.Completed[Endpoint](ep), time.Second)

	// the owner's transaction is gone, writes fail there and commit reports it
	require.True(t, ep.txn.Cancel())
	_, err := p.Commit().Wait()
	var commitFailed *tx.CommitFailedError
	require.ErrorAs(t, err, &commitFailed)
	assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
	assert.NotErrorIs(t, err, tx.ErrBackendUnavailable)
}

func TestConcurrentCallersDuringResolution(t *testing.T) {
	broker := lstore.NewLocalBroker()
	txn, err := broker.NewReadWriteTransaction()
	require.NoError(t, err)
	p, resolution := newUnresolved("tx-concurrent")

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				assert.NoError(t, p.Put(tx.Configuration, tx.NewPath(fmt.Sprint(w), fmt.Sprint(i)), tx.NewNodeString(`true`)))
			}
		}(w)
	}
	go resolution.Complete(&localEndpoint{txn: txn})
	wg.Wait()

	_, err = p.Commit().Wait()
	require.NoError(t, err)

	check, err := broker.NewReadWriteTransaction()
	require.NoError(t, err)
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			exists, err := check.Exists(tx.Configuration, tx.NewPath(fmt.Sprint(w), fmt.Sprint(i))).Wait()
			require.NoError(t, err)
			assert.True(t, exists, "writer %d item %d", w, i)
		}
	}
}
