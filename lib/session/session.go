// Package session keeps the per-session context of the management layer.
//
// Every session owns one registry.TransactionRegistry. Sessions are
// instance scoped: two managers never share sessions or transactions.
//
// With an idle timeout, sessions without open transactions that were not
// used for that long are closed by the manager. Clients that disappear
// without closing their session do not pile up.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dTX/lib/datastore"
	"github.com/ValentinKolb/dTX/lib/registry"
	"github.com/ValentinKolb/dTX/lib/util"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("session")

var (
	active atomic.Int64

	opened = metrics.NewCounter("dtx_sessions_opened_total")
	closed = metrics.NewCounter("dtx_sessions_closed_total")
	expired = metrics.NewCounter("dtx_sessions_expired_total")
	_      = metrics.NewGauge("dtx_sessions_active", func() float64 { return float64(active.Load()) })
)

// ErrUnknownSession is returned for session ids the manager does not know.
var ErrUnknownSession = errors.New("unknown session")

// Session is the context of one management session.
type Session struct {
	ID       string
	Registry *registry.TransactionRegistry
	Created  time.Time

	lastUsed atomic.Int64 // unix nanos
}

// touch marks the session as used. Called while the map entry is locked, so
// expiry never closes a session between lookup and use.
func (s *Session) touch(now time.Time) {
	s.lastUsed.Store(now.UnixNano())
}

// Manager creates and tracks sessions on top of one broker.
type Manager struct {
	broker   datastore.Broker
	config   registry.Config
	clock    util.Clock
	sessions *xsync.MapOf[string, *Session]

	reaperMu sync.Mutex
	reaper   util.Timer
	stopped  bool
}

// NewManager creates a manager. cfg is applied to the registry of every
// session, cfg.IdleTimeout also expires unused sessions.
func NewManager(broker datastore.Broker, cfg registry.Config) *Manager {
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	m := &Manager{
		broker:   broker,
		config:   cfg,
		clock:    clock,
		sessions: xsync.NewMapOf[string, *Session](),
	}
	if cfg.IdleTimeout > 0 {
		m.reaperMu.Lock()
		m.reaper = clock.AfterFunc(cfg.IdleTimeout, m.reap)
		m.reaperMu.Unlock()
	}
	return m
}

// Open starts a session with a fresh id.
func (m *Manager) Open() *Session {
	s, _ := m.GetOrOpen(uuid.NewString())
	return s
}

// GetOrOpen returns the session id, starting it if necessary. created
// reports whether a new session was started.
func (m *Manager) GetOrOpen(id string) (s *Session, created bool) {
	now := m.clock.Now()
	s, _ = m.sessions.Compute(id, func(s *Session, loaded bool) (*Session, bool) {
		if !loaded {
			s = &Session{ID: id, Registry: registry.New(id, m.broker, m.config), Created: now}
			created = true
		}
		s.touch(now)
		return s, false
	})
	if created {
		opened.Inc()
		active.Add(1)
		log.Debugf("session %s opened", id)
	}
	return s, created
}

// Get returns an existing session.
func (m *Manager) Get(id string) (*Session, error) {
	now := m.clock.Now()
	s, ok := m.sessions.Compute(id, func(s *Session, loaded bool) (*Session, bool) {
		if loaded {
			s.touch(now)
		}
		return s, !loaded
	})
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Close ends session id and cancels all of its transactions.
func (m *Manager) Close(id string) error {
	s, ok := m.sessions.LoadAndDelete(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	m.release(s)
	log.Debugf("session %s closed after %s", id, m.clock.Now().Sub(s.Created).Round(time.Millisecond))
	return nil
}

// ExpireIdle closes every session that has no open transaction and was not
// used for the idle timeout. It returns the number of closed sessions.
func (m *Manager) ExpireIdle() int {
	if m.config.IdleTimeout <= 0 {
		return 0
	}
	cutoff := m.clock.Now().Add(-m.config.IdleTimeout).UnixNano()

	n := 0
	m.sessions.Range(func(id string, _ *Session) bool {
		var idle *Session
		m.sessions.Compute(id, func(s *Session, loaded bool) (*Session, bool) {
			if !loaded {
				return s, true
			}
			if s.lastUsed.Load() <= cutoff && s.Registry.Tracked() == 0 {
				idle = s
				return s, true
			}
			return s, false
		})
		if idle != nil {
			m.release(idle)
			expired.Inc()
			log.Infof("session %s idle for %s, closed", id, m.config.IdleTimeout)
			n++
		}
		return true
	})
	return n
}

func (m *Manager) reap() {
	m.ExpireIdle()

	m.reaperMu.Lock()
	defer m.reaperMu.Unlock()
	if !m.stopped {
		m.reaper.Reset(m.config.IdleTimeout)
	}
}

// release closes the registry of a session already removed from the map
func (m *Manager) release(s *Session) {
	s.Registry.Close()
	closed.Inc()
	active.Add(-1)
}

// CloseAll ends every session and stops expiring sessions. Used on shutdown.
func (m *Manager) CloseAll() {
	m.reaperMu.Lock()
	m.stopped = true
	if m.reaper != nil {
		m.reaper.Stop()
	}
	m.reaperMu.Unlock()

	n := 0
	m.sessions.Range(func(id string, _ *Session) bool {
		if m.Close(id) == nil {
			n++
		}
		return true
	})
	if n > 0 {
		log.Infof("closed %d sessions", n)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	return m.sessions.Size()
}
