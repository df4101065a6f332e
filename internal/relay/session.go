package relay

import (
	"time"
)

// SessionKey identifies a relay slot. It is derived by the control side from
// the session id and both party identities; clients present it verbatim as
// their CONNECT address.
type SessionKey string

type SessionState int

const (
	SessionPending SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionPending:
		return "pending"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const maxParticipants = 2

type session struct {
	key          SessionKey
	participants []*Conn
	state        SessionState
	created      time.Time
	activated    time.Time
	timer        *time.Timer
}

func (s *session) has(c *Conn) bool {
	for _, p := range s.participants {
		if p == c {
			return true
		}
	}
	return false
}

func (s *session) remove(c *Conn) {
	for i, p := range s.participants {
		if p == c {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			return
		}
	}
}

func (s *session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SessionInfo is a point-in-time view of a session.
type SessionInfo struct {
	Key          SessionKey
	State        SessionState
	Participants int
	Created      time.Time
}

// sessionTable is only touched with the Coordinator lock held.
type sessionTable map[SessionKey]*session

func (t sessionTable) get(key SessionKey) *session {
	return t[key]
}

func (t sessionTable) put(s *session) {
	t[s.key] = s
}

func (t sessionTable) delete(key SessionKey) {
	delete(t, key)
}
