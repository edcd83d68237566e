package registry

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/datastore/lstore"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBroker counts transactions handed out by a local broker.
type countingBroker struct {
	datastore.Broker
	mu     sync.Mutex
	opened []tx.ReadWriteTransaction
}

func (b *countingBroker) NewReadWriteTransaction() (tx.ReadWriteTransaction, error) {
	t, err := b.Broker.NewReadWriteTransaction()
	if err == nil {
		b.mu.Lock()
		b.opened = append(b.opened, t)
		b.mu.Unlock()
	}
	return t, err
}

func (b *countingBroker) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.opened)
}

// failingValidator rejects every transaction.
type failingValidator struct{ err error }

func (v failingValidator) Validate(tx.ReadWriteTransaction) *tx.Future[struct{}] {
	return tx.Failed[struct{}](v.err)
}

func newRegistry(t *testing.T, opts ...lstore.Option) (*TransactionRegistry, *countingBroker) {
	t.Helper()
	b := &countingBroker{Broker: lstore.NewLocalBroker(opts...)}
	return New("session-1", b, Config{}), b
}

func TestCandidateLifecycle(t *testing.T) {
	t.Run("get or create is idempotent", func(t *testing.T) {
		r, b := newRegistry(t)

		first, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		second, err := r.GetOrCreateTransaction()
		require.NoError(t, err)

		assert.Same(t, first, second)
		assert.Equal(t, 1, b.count())
		assert.Equal(t, KindCandidate, first.Kind())
		assert.Equal(t, 1, r.Tracked())
	})

	t.Run("empty commit does not touch the store", func(t *testing.T) {
		r, b := newRegistry(t)

		info, err := r.CommitTransaction()
		require.NoError(t, err)
		assert.Equal(t, tx.CommitInfo{}, info)
		assert.Equal(t, 0, b.count())
	})

	t.Run("commit resets the candidate", func(t *testing.T) {
		r, _ := newRegistry(t)
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		require.NoError(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)))

		info, err := r.CommitTransaction()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), info.Version)
		assert.False(t, r.HasCandidate())
		assert.Equal(t, 0, r.Tracked())
		assert.True(t, c.Done())

		next, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		assert.NotSame(t, c, next)
		got, err := next.Read(tx.Configuration, "/a").Wait()
		require.NoError(t, err)
		assert.True(t, got.IsPresent())
	})

	t.Run("failed commit resets the candidate", func(t *testing.T) {
		broker := lstore.NewLocalBroker()
		r := New("session-2", broker, Config{})
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		require.NoError(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)))
		require.NoError(t, broker.Close())

		_, err = r.CommitTransaction()
		var commitErr *tx.CommitFailedError
		require.ErrorAs(t, err, &commitErr)
		assert.Equal(t, tx.StageCommit, commitErr.Stage)
		var dsErr *datastore.Error
		require.ErrorAs(t, err, &dsErr)
		assert.Equal(t, datastore.RetCClosed, dsErr.Code)

		assert.False(t, r.HasCandidate())
		assert.Equal(t, 0, r.Tracked())
	})

	t.Run("abort", func(t *testing.T) {
		r, _ := newRegistry(t)
		r.AbortTransaction() // no candidate, no-op

		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		r.AbortTransaction()

		assert.False(t, r.HasCandidate())
		assert.Equal(t, 0, r.Tracked())
		assert.ErrorIs(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)), tx.ErrTransactionClosed)
	})
}

func TestValidateTransaction(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		r, _ := newRegistry(t)
		err := r.ValidateTransaction()

		var doc *tx.DocumentedError
		require.ErrorAs(t, err, &doc)
		assert.Equal(t, tx.ErrorTypeProtocol, doc.Type)
		assert.Equal(t, tx.TagOperationNotSupported, doc.Tag)
		assert.Equal(t, tx.SeverityError, doc.Severity)
	})

	t.Run("without candidate", func(t *testing.T) {
		r, b := newRegistry(t, lstore.WithValidator(failingValidator{err: errors.New("never called")}))
		assert.NoError(t, r.ValidateTransaction())
		assert.Equal(t, 0, b.count())
	})

	t.Run("failure is a validate stage commit failure", func(t *testing.T) {
		cause := errors.New("leaf out of range")
		r, _ := newRegistry(t, lstore.WithValidator(failingValidator{err: cause}))
		_, err := r.GetOrCreateTransaction()
		require.NoError(t, err)

		err = r.ValidateTransaction()
		var commitErr *tx.CommitFailedError
		require.ErrorAs(t, err, &commitErr)
		assert.Equal(t, tx.StageValidate, commitErr.Stage)
		assert.ErrorIs(t, err, cause)
		assert.True(t, r.HasCandidate())
	})

	t.Run("document validator", func(t *testing.T) {
		r, _ := newRegistry(t, lstore.WithValidator(datastore.NewValidator()))
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		require.NoError(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`{"ok":true}`)))
		assert.NoError(t, r.ValidateTransaction())

		require.NoError(t, c.Put(tx.Configuration, "/b", tx.NewNodeString(`{broken`)))
		assert.Error(t, r.ValidateTransaction())
	})
}

func TestRunningTransactions(t *testing.T) {
	t.Run("independent of each other and of the candidate", func(t *testing.T) {
		r, b := newRegistry(t)
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		r1, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		r2, err := r.CreateRunningTransaction()
		require.NoError(t, err)

		assert.NotSame(t, r1, r2)
		assert.NotEqual(t, c.ID(), r1.ID())
		assert.Equal(t, KindRunning, r1.Kind())
		assert.Equal(t, 3, b.count())
		assert.Equal(t, 3, r.Tracked())

		found, ok := r.Transaction(r2.ID())
		require.True(t, ok)
		assert.Same(t, r2, found)

		require.NoError(t, r.AbortRunningTransaction(r1))
		assert.Equal(t, 2, r.Tracked())
		assert.True(t, r.HasCandidate())
	})

	t.Run("abort with nothing tracked fails loudly", func(t *testing.T) {
		r, _ := newRegistry(t)
		rt, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		require.NoError(t, r.AbortRunningTransaction(rt))

		err = r.AbortRunningTransaction(rt)
		assert.ErrorIs(t, err, tx.ErrNoTrackedTransactions)
	})

	t.Run("submit untracks", func(t *testing.T) {
		r, _ := newRegistry(t)
		rt, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		require.NoError(t, rt.Merge(tx.Operational, "/stats", tx.NewNodeString(`{"n":1}`)))

		info, err := rt.Commit().Wait()
		require.NoError(t, err)
		assert.Equal(t, uint64(1), info.Version)
		assert.Equal(t, 0, r.Tracked())

		_, err = rt.Commit().Wait()
		assert.ErrorIs(t, err, tx.ErrTransactionAlreadyClosed)
		assert.False(t, rt.Cancel())
	})

	t.Run("cancel untracks once", func(t *testing.T) {
		r, _ := newRegistry(t)
		rt, err := r.CreateRunningTransaction()
		require.NoError(t, err)

		assert.True(t, rt.Cancel())
		assert.False(t, rt.Cancel())
		assert.Equal(t, 0, r.Tracked())
	})
}

func TestClose(t *testing.T) {
	r, _ := newRegistry(t)
	c, err := r.GetOrCreateTransaction()
	require.NoError(t, err)
	rt, err := r.CreateRunningTransaction()
	require.NoError(t, err)

	r.Close()

	assert.Equal(t, 0, r.Tracked())
	assert.False(t, r.HasCandidate())
	assert.True(t, c.Done())
	assert.True(t, rt.Done())

	_, err = r.GetOrCreateTransaction()
	assert.ErrorIs(t, err, ErrRegistryClosed)
	_, err = r.CreateRunningTransaction()
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestIdleWatchdog(t *testing.T) {
	const idle = 30 * time.Second

	newWatched := func(t *testing.T) (*TransactionRegistry, *util.ManualClock) {
		clock := util.NewManualClock(time.Unix(0, 0))
		return New("session-idle", lstore.NewLocalBroker(), Config{IdleTimeout: idle, Clock: clock}), clock
	}

	t.Run("idle transaction is cancelled and untracked", func(t *testing.T) {
		r, clock := newWatched(t)
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		rt, err := r.CreateRunningTransaction()
		require.NoError(t, err)

		clock.Advance(idle - time.Second)
		assert.Equal(t, 2, r.Tracked())

		clock.Advance(time.Second)
		assert.Equal(t, 0, r.Tracked())
		assert.False(t, r.HasCandidate())
		assert.True(t, c.Done())
		assert.True(t, rt.Done())
		assert.ErrorIs(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)), tx.ErrTransactionClosed)
	})

	t.Run("operations reset the timer", func(t *testing.T) {
		r, clock := newWatched(t)
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			clock.Advance(idle - time.Second)
			require.NoError(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)))
		}
		assert.False(t, c.Done())
		assert.Equal(t, 1, r.Tracked())

		clock.Advance(idle)
		assert.True(t, c.Done())
	})

	t.Run("expiry after user cancel is harmless", func(t *testing.T) {
		r, clock := newWatched(t)
		rt, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		require.True(t, rt.Cancel())

		clock.Advance(2 * idle)
		assert.Equal(t, 0, clock.Pending())
		assert.Equal(t, 0, r.Tracked())
	})

	t.Run("committed candidate does not expire", func(t *testing.T) {
		r, clock := newWatched(t)
		c, err := r.GetOrCreateTransaction()
		require.NoError(t, err)
		require.NoError(t, c.Put(tx.Configuration, "/a", tx.NewNodeString(`1`)))
		_, err = r.CommitTransaction()
		require.NoError(t, err)

		clock.Advance(2 * idle)
		assert.Equal(t, 0, clock.Pending())

		check, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		exists, err := check.Exists(tx.Configuration, "/a").Wait()
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestConcurrentCandidateAccess(t *testing.T) {
	r, b := newRegistry(t)

	var wg sync.WaitGroup
	seen := make(chan *Transaction, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := r.GetOrCreateTransaction()
			if assert.NoError(t, err) {
				seen <- c
			}
		}()
	}
	wg.Wait()
	close(seen)

	var first *Transaction
	for c := range seen {
		if first == nil {
			first = c
		}
		assert.Same(t, first, c)
	}
	assert.Equal(t, 1, b.count())
}

func TestWithCandidate(t *testing.T) {
	t.Run("edits and commits do not interleave", func(t *testing.T) {
		r, _ := newRegistry(t)

		const edits = 64
		var wg sync.WaitGroup
		for i := 0; i < edits; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				err := r.WithCandidate(func(c *Transaction) error {
					return c.Put(tx.Configuration, tx.NewPath("items", strconv.Itoa(i)), tx.NewNodeString(`1`))
				})
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := r.CommitTransaction()
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		_, err := r.CommitTransaction()
		require.NoError(t, err)

		check, err := r.CreateRunningTransaction()
		require.NoError(t, err)
		for i := 0; i < edits; i++ {
			got, err := check.Read(tx.Configuration, tx.NewPath("items", strconv.Itoa(i))).Wait()
			require.NoError(t, err)
			assert.True(t, got.IsPresent(), "edit %d lost", i)
		}
	})

	t.Run("check then act sees no concurrent edit", func(t *testing.T) {
		r, _ := newRegistry(t)
		path := tx.NewPath("once")

		var wg sync.WaitGroup
		var created atomic.Int32
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.WithCandidate(func(c *Transaction) error {
					exists, err := c.Exists(tx.Configuration, path).Wait()
					if err != nil || exists {
						return err
					}
					created.Add(1)
					return c.Put(tx.Configuration, path, tx.NewNodeString(`1`))
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), created.Load())
	})

	t.Run("error is returned and the candidate stays open", func(t *testing.T) {
		r, _ := newRegistry(t)
		boom := errors.New("boom")

		assert.ErrorIs(t, r.WithCandidate(func(*Transaction) error { return boom }), boom)
		assert.True(t, r.HasCandidate())
	})

	t.Run("closed registry", func(t *testing.T) {
		r, _ := newRegistry(t)
		r.Close()

		called := false
		err := r.WithCandidate(func(*Transaction) error { called = true; return nil })
		assert.ErrorIs(t, err, ErrRegistryClosed)
		assert.False(t, called)
	})
}
