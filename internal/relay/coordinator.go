package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/die-net/streamhost/internal/logging"
	"github.com/die-net/streamhost/internal/metrics"
)

var (
	// ErrAlreadyActive is returned by Register when the session already has
	// two participants or has been activated.
	ErrAlreadyActive = errors.New("relay: session already active")

	// ErrNotFound is returned by Activate when no pending session exists.
	ErrNotFound = errors.New("relay: session not found")

	// ErrWrongParticipantCount is returned by Activate when the session does
	// not have exactly two participants. The session has been torn down.
	ErrWrongParticipantCount = errors.New("relay: wrong participant count")

	// ErrClosed is returned once the Coordinator has been closed.
	ErrClosed = errors.New("relay: coordinator closed")
)

// Coordinator owns the session table. All pairing, activation and teardown
// goes through it, serialized by its lock.
type Coordinator struct {
	pendingTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	sessions sessionTable
	closed   bool
}

// NewCoordinator returns an empty Coordinator. Sessions that are still
// pending after pendingTimeout are closed; zero disables the timeout.
func NewCoordinator(pendingTimeout time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Coordinator{
		pendingTimeout: pendingTimeout,
		logger:         logger,
		sessions:       make(sessionTable),
	}
}

// Register adds conn to the session for key, creating it if needed.
func (c *Coordinator) Register(key SessionKey, conn *Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	s := c.sessions.get(key)
	if s == nil {
		conn.key = key
		s = &session{key: key, state: SessionPending, created: time.Now()}
		s.participants = append(s.participants, conn)
		c.sessions.put(s)
		if c.pendingTimeout > 0 {
			s.timer = time.AfterFunc(c.pendingTimeout, func() { c.expire(s) })
		}
		conn.setState(StatePending)
		metrics.PendingSessions.Inc()
		c.logger.Debug("session created", logging.SessionKey(string(key)), logging.ConnID(conn.id))
		return nil
	}

	if s.state != SessionPending || len(s.participants) >= maxParticipants {
		return ErrAlreadyActive
	}

	conn.key = key
	s.participants = append(s.participants, conn)
	conn.setState(StatePending)
	c.logger.Debug("session joined", logging.SessionKey(string(key)), logging.ConnID(conn.id))
	return nil
}

// Activate pairs the two participants of a pending session and lets data
// flow between them.
func (c *Coordinator) Activate(key SessionKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions.get(key)
	if s == nil || s.state != SessionPending {
		metrics.Activations.WithLabelValues("not_found").Inc()
		return ErrNotFound
	}

	if len(s.participants) != maxParticipants {
		c.logger.Info("activation with wrong participant count", logging.SessionKey(string(key)), "participants", len(s.participants))
		c.teardown(s)
		metrics.Activations.WithLabelValues("wrong_count").Inc()
		return ErrWrongParticipantCount
	}

	s.stopTimer()
	s.state = SessionActive
	s.activated = time.Now()

	a, b := s.participants[0], s.participants[1]
	a.peer.Store(b)
	b.peer.Store(a)
	a.setState(StateActive)
	b.setState(StateActive)
	a.wake()
	b.wake()
	close(a.activated)
	close(b.activated)

	metrics.PendingSessions.Dec()
	metrics.ActiveSessions.Inc()
	metrics.Activations.WithLabelValues("activated").Inc()
	c.logger.Info("session activated", logging.SessionKey(string(key)))
	return nil
}

// Deregister removes conn after its socket went away. A pending session
// loses only that participant; an active session is torn down entirely.
// Calling it again, or for a conn that never registered, does nothing.
func (c *Coordinator) Deregister(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn.key == "" {
		return
	}

	s := c.sessions.get(conn.key)
	if s == nil || !s.has(conn) {
		return
	}

	switch s.state {
	case SessionPending:
		s.remove(conn)
		conn.close()
		if len(s.participants) == 0 {
			c.teardown(s)
		}
	case SessionActive:
		c.teardown(s)
	}
}

// Lookup returns a snapshot of the session for key.
func (c *Coordinator) Lookup(key SessionKey) (SessionInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.sessions.get(key)
	if s == nil {
		return SessionInfo{}, false
	}
	return SessionInfo{
		Key:          s.key,
		State:        s.state,
		Participants: len(s.participants),
		Created:      s.created,
	}, true
}

// Len returns the number of live sessions.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Close tears down every session and rejects further registrations.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	for _, s := range c.sessions {
		c.teardown(s)
	}
}

func (c *Coordinator) expire(s *session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessions.get(s.key) != s || s.state != SessionPending {
		return
	}

	c.logger.Info("pending session timed out", logging.SessionKey(string(s.key)), "participants", len(s.participants))
	metrics.PendingTimeouts.Inc()
	c.teardown(s)
}

// teardown closes every participant and forgets the session. c.mu must be
// held.
func (c *Coordinator) teardown(s *session) {
	s.stopTimer()
	c.sessions.delete(s.key)

	switch s.state {
	case SessionPending:
		metrics.PendingSessions.Dec()
	case SessionActive:
		metrics.ActiveSessions.Dec()
		metrics.SessionDuration.Observe(time.Since(s.activated).Seconds())
		c.logger.Info("session closed", logging.SessionKey(string(s.key)))
	}
	s.state = SessionClosed

	for _, p := range s.participants {
		p.close()
	}
	s.participants = nil
}
