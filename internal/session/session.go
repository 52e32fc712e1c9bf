package session

import (
	"sync"
	"time"

	"wabot/internal/wadriver"
)

type State int

const (
	StateInitializing State = iota
	StateAwaitingQR
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateAwaitingQR:
		return "awaiting_qr"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is one live entry in the registry: a name, its owning
// operator, the driver handle, and the lifecycle state. The state is
// guarded per session, so transitions on unrelated sessions never
// contend.
type Session struct {
	name       string
	operatorID string
	createdAt  time.Time

	mu     sync.Mutex
	state  State
	handle wadriver.Handle
	closed bool
}

func (s *Session) Name() string       { return s.name }
func (s *Session) OperatorID() string { return s.operatorID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// setHandle attaches the driver handle. It refuses when the session
// was closed while the dial was in flight, so the caller can tear the
// late handle down instead of pumping a dead session.
func (s *Session) setHandle(h wadriver.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.handle = h
	return true
}

func (s *Session) Handle() wadriver.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// markClosed records stop-intent. It returns false if the session was
// already closed, so teardown runs exactly once.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.state = StateDisconnected
	return true
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
