// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Thermoquad/thermoremote/pkg/logging"
)

// State is the connection lifecycle state
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// StateChange is delivered to observers on every transition
type StateChange struct {
	State    State
	Prev     State
	Endpoint Endpoint
	Session  string // set while Connected, and on the transition out of it
	Err      error  // cause of a transition to Disconnected, if any
	At       time.Time
}

// Default reconnect backoff
const (
	DefaultBackoffInitial = 1 * time.Second
	DefaultBackoffMax     = 30 * time.Second
)

// Options configures a Manager
type Options struct {
	Dial           DialFunc // defaults to Dial
	Logger         *logging.Logger
	Reconnect      bool
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	OnOverlong     func(int)
}

// Manager owns the connection lifecycle for one endpoint. The current Conn
// is held by the Manager and never handed to other components; they send
// through Manager.Send.
type Manager struct {
	endpoint Endpoint
	opts     Options
	log      *logging.Logger

	mu        sync.RWMutex
	state     State
	conn      *Conn
	observers []func(StateChange)
	closed    bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a manager in the Disconnected state
func NewManager(ep Endpoint, opts Options) *Manager {
	if opts.Dial == nil {
		opts.Dial = Dial
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.BackoffInitial <= 0 {
		opts.BackoffInitial = DefaultBackoffInitial
	}
	if opts.BackoffMax < opts.BackoffInitial {
		opts.BackoffMax = max(DefaultBackoffMax, opts.BackoffInitial)
	}

	return &Manager{
		endpoint: ep,
		opts:     opts,
		log:      opts.Logger,
		state:    Disconnected,
		done:     make(chan struct{}),
	}
}

// Endpoint returns the managed endpoint
func (m *Manager) Endpoint() Endpoint {
	return m.endpoint
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Session returns the id of the current connection, or "" when not connected
func (m *Manager) Session() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil {
		return ""
	}
	return m.conn.Session()
}

// Subscribe registers an observer for state changes. Observers run on the
// goroutine causing the transition, outside the manager's lock, and must
// not block.
func (m *Manager) Subscribe(fn func(StateChange)) {
	m.mu.Lock()
	m.observers = append(m.observers, fn)
	m.mu.Unlock()
}

// Connect opens the transport and makes the result the current connection.
// It blocks only the caller. A failure leaves the manager Disconnected and
// returns *ConnectError.
func (m *Manager) Connect(ctx context.Context) (*Conn, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}
	change := m.setStateLocked(Connecting, "", nil)
	m.mu.Unlock()
	m.notify(change)

	m.log.Infow("connecting", "endpoint", m.endpoint.String())

	t, err := m.opts.Dial(ctx, m.endpoint)
	if err != nil {
		var cerr *ConnectError
		if !errors.As(err, &cerr) {
			err = &ConnectError{Addr: m.endpoint.Address, Err: err}
		}
		m.mu.Lock()
		change := m.setStateLocked(Disconnected, "", err)
		m.mu.Unlock()
		m.notify(change)

		m.log.Errorw("connect failed", "endpoint", m.endpoint.String(), "err", err)
		return nil, err
	}

	session := uuid.NewString()
	conn := NewConn(t, m.endpoint, session, m.log.With("session", session), m.opts.OnOverlong)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	m.conn = conn
	change = m.setStateLocked(Connected, session, nil)
	m.mu.Unlock()
	m.notify(change)

	m.log.Infow("connected", "endpoint", m.endpoint.String(), "session", session)
	return conn, nil
}

// Send writes one newline-terminated line on the current connection.
// Callers may ignore the error: a failed write also ends the session, which
// observers see as a transition to Disconnected.
func (m *Manager) Send(line []byte) error {
	m.mu.RLock()
	conn := m.conn
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(line)
}

// Serve runs conn's read loop on the calling goroutine and moves the manager
// to Disconnected when it ends
func (m *Manager) Serve(conn *Conn, onLine func(string)) error {
	err := conn.ReadLoop(onLine)
	m.detach(conn, err)
	return err
}

// Run connects and serves until ctx is cancelled or Close is called. With
// Reconnect set, a lost or failed connection is retried with exponential
// backoff; otherwise Run returns the first connect or transport error.
// Mirrored state owned by onLine's receiver is untouched across reconnects.
func (m *Manager) Run(ctx context.Context, onLine func(string)) error {
	backoff := m.opts.BackoffInitial

	for {
		conn, err := m.Connect(ctx)
		switch {
		case errors.Is(err, ErrClosed):
			return nil
		case err == nil:
			backoff = m.opts.BackoffInitial
			stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			err = m.Serve(conn, onLine)
			stop()
			if err != nil {
				m.log.Warnw("connection lost", "session", conn.Session(), "err", err)
			}
		}

		select {
		case <-m.done:
			return nil
		default:
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !m.opts.Reconnect {
			return err
		}

		m.log.Infow("reconnecting", "endpoint", m.endpoint.String(), "backoff", backoff)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-m.done:
			timer.Stop()
			return nil
		case <-timer.C:
		}

		backoff *= 2
		if backoff > m.opts.BackoffMax {
			backoff = m.opts.BackoffMax
		}
	}
}

// Close ends the current connection and stops Run. It is idempotent and
// safe from any goroutine except the one running a read loop's onLine.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		close(m.done)
		conn := m.conn
		var change *StateChange
		if conn != nil {
			m.conn = nil
			change = m.setStateLocked(Disconnected, conn.Session(), nil)
		}
		m.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		m.notify(change)
	})
	return err
}

func (m *Manager) detach(conn *Conn, cause error) {
	m.mu.Lock()
	if m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	change := m.setStateLocked(Disconnected, conn.Session(), cause)
	m.mu.Unlock()

	_ = conn.Close()
	m.notify(change)
}

// setStateLocked records a transition and returns the change to deliver
// once the lock is released. Returns nil when the state is unchanged.
func (m *Manager) setStateLocked(s State, session string, err error) *StateChange {
	if s == m.state && err == nil {
		return nil
	}
	change := &StateChange{
		State:    s,
		Prev:     m.state,
		Endpoint: m.endpoint,
		Session:  session,
		Err:      err,
		At:       time.Now(),
	}
	m.state = s
	return change
}

func (m *Manager) notify(change *StateChange) {
	if change == nil {
		return
	}
	m.mu.RLock()
	observers := make([]func(StateChange), len(m.observers))
	copy(observers, m.observers)
	m.mu.RUnlock()

	for _, fn := range observers {
		fn(*change)
	}
}
