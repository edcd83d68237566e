package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/tx"
	"github.com/ValentinKolb/dTX/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("registry")

var (
	openedCandidate = metrics.NewCounter(`dtx_registry_transactions_opened_total{kind="candidate"}`)
	openedRunning   = metrics.NewCounter(`dtx_registry_transactions_opened_total{kind="running"}`)
	committed       = metrics.NewCounter("dtx_registry_transactions_committed_total")
	aborted         = metrics.NewCounter("dtx_registry_transactions_aborted_total")
	idleExpired     = metrics.NewCounter("dtx_registry_transactions_idle_expired_total")
	commitFailed    = metrics.NewCounter("dtx_registry_transactions_commit_failed_total")
)

// ErrRegistryClosed is returned when a transaction is requested from a
// closed registry.
var ErrRegistryClosed = errors.New("transaction registry is closed")

// Config configures a registry.
type Config struct {
	// IdleTimeout cancels transactions that see no operation for this long.
	// Zero disables the watchdog.
	IdleTimeout time.Duration
	// Clock drives the watchdog, nil means real time.
	Clock util.Clock
}

// TransactionRegistry owns the transactions of one session.
type TransactionRegistry struct {
	id          string
	broker      datastore.Broker
	clock       util.Clock
	idleTimeout time.Duration

	mu        sync.Mutex
	candidate *Transaction
	closed    bool
	tracked   *xsync.MapOf[string, *Transaction]
}

// New creates a registry for session id on top of broker.
func New(id string, broker datastore.Broker, cfg Config) *TransactionRegistry {
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	return &TransactionRegistry{
		id:          id,
		broker:      broker,
		clock:       clock,
		idleTimeout: cfg.IdleTimeout,
		tracked:     xsync.NewMapOf[string, *Transaction](),
	}
}

func (r *TransactionRegistry) ID() string {
	return r.id
}

// --------------------------------------------------------------------------
// Candidate transaction
// --------------------------------------------------------------------------

// GetOrCreateTransaction returns the candidate, opening it if there is none.
func (r *TransactionRegistry) GetOrCreateTransaction() (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getOrCreateCandidate()
}

// WithCandidate runs fn on the candidate, opening it if there is none. fn
// runs under the session lock: commits, validations and other edits of the
// session wait until it returns. fn must not commit or cancel the
// transaction.
func (r *TransactionRegistry) WithCandidate(fn func(t *Transaction) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.getOrCreateCandidate()
	if err != nil {
		return err
	}
	return fn(t)
}

// HasCandidate reports whether a candidate transaction is open.
func (r *TransactionRegistry) HasCandidate() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidate != nil
}

// ValidateTransaction validates the candidate against the store's validate
// extension and blocks until the store answers.
func (r *TransactionRegistry) ValidateTransaction() error {
	validator, ok := r.broker.ValidateExtension()
	if !ok {
		return tx.NewValidateUnsupported()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.candidate == nil {
		log.Debugf("session %s: validate without candidate transaction", r.id)
		return nil
	}
	r.candidate.touch()
	if _, err := validator.Validate(r.candidate.delegate).Wait(); err != nil {
		log.Warningf("session %s: validation of %s failed: %v", r.id, r.candidate.ID(), err)
		return tx.NewCommitFailed(tx.StageValidate, fmt.Sprintf("validation of %s failed", r.candidate.ID()), err)
	}
	return nil
}

// CommitTransaction commits the candidate and blocks until the store
// answers. Without a candidate it succeeds without touching the store. The
// candidate is gone afterwards whatever the outcome.
func (r *TransactionRegistry) CommitTransaction() (tx.CommitInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.candidate
	if t == nil {
		log.Debugf("session %s: commit without candidate transaction", r.id)
		return tx.CommitInfo{}, nil
	}
	r.candidate = nil
	r.untrack(t)

	info, err := t.delegate.Commit().Wait()
	if err != nil {
		commitFailed.Inc()
		log.Warningf("session %s: commit of %s failed: %v", r.id, t.ID(), err)
		return tx.CommitInfo{}, tx.NewCommitFailed(tx.StageCommit, fmt.Sprintf("commit of %s failed", t.ID()), err)
	}
	committed.Inc()
	log.Debugf("session %s: committed %s at version %d", r.id, t.ID(), info.Version)
	return info, nil
}

// AbortTransaction cancels the candidate. It is a no-op without one.
func (r *TransactionRegistry) AbortTransaction() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.candidate == nil {
		log.Debugf("session %s: abort without candidate transaction", r.id)
		return
	}
	if r.terminate(r.candidate) {
		aborted.Inc()
	}
}

// --------------------------------------------------------------------------
// Running transactions
// --------------------------------------------------------------------------

// CreateRunningTransaction opens a new transaction independent of the
// candidate and of other running transactions.
func (r *TransactionRegistry) CreateRunningTransaction() (*Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open(KindRunning)
}

// AbortRunningTransaction cancels and untracks t. Calling it while nothing is
// tracked is a programming error.
func (r *TransactionRegistry) AbortRunningTransaction(t *Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.tracked.Size() == 0 {
		log.Errorf("session %s: abort of running transaction %s while no transactions are tracked", r.id, t.ID())
		return fmt.Errorf("session %s: cannot abort %s: %w", r.id, t.ID(), tx.ErrNoTrackedTransactions)
	}
	if r.terminate(t) {
		aborted.Inc()
	}
	return nil
}

// Transaction looks up a tracked transaction by id.
func (r *TransactionRegistry) Transaction(id string) (*Transaction, bool) {
	return r.tracked.Load(id)
}

// Tracked returns the number of open transactions.
func (r *TransactionRegistry) Tracked() int {
	return r.tracked.Size()
}

// Close cancels every tracked transaction. Creating transactions fails
// afterwards.
func (r *TransactionRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	n := 0
	r.tracked.Range(func(_ string, t *Transaction) bool {
		if r.terminate(t) {
			n++
		}
		return true
	})
	r.candidate = nil
	aborted.Add(n)
	log.Debugf("session %s: registry closed, cancelled %d transactions", r.id, n)
}

// --------------------------------------------------------------------------
// Helper Methods (caller holds mu unless noted)
// --------------------------------------------------------------------------

func (r *TransactionRegistry) getOrCreateCandidate() (*Transaction, error) {
	if r.candidate != nil {
		r.candidate.touch()
		return r.candidate, nil
	}
	t, err := r.open(KindCandidate)
	if err != nil {
		return nil, err
	}
	r.candidate = t
	return t, nil
}

func (r *TransactionRegistry) open(kind Kind) (*Transaction, error) {
	if r.closed {
		return nil, fmt.Errorf("session %s: %w", r.id, ErrRegistryClosed)
	}
	delegate, err := r.broker.NewReadWriteTransaction()
	if err != nil {
		return nil, fmt.Errorf("session %s: failed to open %s transaction: %w", r.id, kind, err)
	}

	t := &Transaction{registry: r, delegate: delegate, kind: kind}
	if r.idleTimeout > 0 {
		t.watchdog = r.clock.AfterFunc(r.idleTimeout, func() { r.expire(t) })
	}
	r.tracked.Store(t.ID(), t)

	if kind == KindCandidate {
		openedCandidate.Inc()
	} else {
		openedRunning.Inc()
	}
	log.Debugf("session %s: opened %s transaction %s", r.id, kind, t.ID())
	return t, nil
}

// terminate cancels t once. It returns false if t was already done.
func (r *TransactionRegistry) terminate(t *Transaction) bool {
	if !t.done.CompareAndSwap(false, true) {
		return false
	}
	t.stopWatchdog()
	t.delegate.Cancel()
	r.tracked.Delete(t.ID())
	if r.candidate == t {
		r.candidate = nil
	}
	log.Debugf("session %s: cancelled %s transaction %s", r.id, t.kind, t.ID())
	return true
}

// untrack marks t done without cancelling it.
func (r *TransactionRegistry) untrack(t *Transaction) {
	t.done.Store(true)
	t.stopWatchdog()
	r.tracked.Delete(t.ID())
}

// expire runs on the watchdog. Takes mu.
func (r *TransactionRegistry) expire(t *Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminate(t) {
		idleExpired.Inc()
		log.Infof("session %s: %s transaction %s idle for %s, cancelled", r.id, t.kind, t.ID(), r.idleTimeout)
	}
}

// cancelTransaction backs Transaction.Cancel. Takes mu.
func (r *TransactionRegistry) cancelTransaction(t *Transaction) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminate(t) {
		aborted.Inc()
		return true
	}
	return false
}

// submitTransaction backs Transaction.Commit. Takes mu.
func (r *TransactionRegistry) submitTransaction(t *Transaction) *tx.Future[tx.CommitInfo] {
	r.mu.Lock()
	if t.done.Load() {
		r.mu.Unlock()
		return tx.Failed[tx.CommitInfo](fmt.Errorf("%s: %w", t.ID(), tx.ErrTransactionAlreadyClosed))
	}
	r.untrack(t)
	if r.candidate == t {
		r.candidate = nil
	}
	r.mu.Unlock()

	f := t.delegate.Commit()
	f.OnComplete(func(info tx.CommitInfo, err error) {
		if err != nil {
			commitFailed.Inc()
			log.Warningf("session %s: submit of %s failed: %v", r.id, t.ID(), err)
			return
		}
		committed.Inc()
	})
	return f
}
