package gateway

import (
	"sync"

	"github.com/liveclass/liveclass/pkg/auth"
	"github.com/liveclass/liveclass/pkg/logger"
	"github.com/liveclass/liveclass/pkg/session"
)

type State uint8

const (
	StateUnauthenticated State = iota
	StateAuthorizing
	StateJoined
	StateLeft
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizing:
		return "authorizing"
	case StateJoined:
		return "joined"
	case StateLeft:
		return "left"
	default:
		return "error"
	}
}

// User is one signaling connection and its per-connection state machine:
// unauthenticated → authorizing → joined → left|error.
type User struct {
	Transport
	log *logger.Logger

	mu        sync.Mutex
	state     State
	identity  auth.Identity
	role      session.Role
	sessionID string
}

func NewUser(c Transport, log *logger.Logger) *User {
	return &User{
		Transport: c,
		log:       log.Extend(log.With().Str("u", c.Id().Short())),
	}
}

func (u *User) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

func (u *User) setState(s State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *User) setJoined(id auth.Identity, role session.Role, sessionID string) {
	u.mu.Lock()
	u.state = StateJoined
	u.identity = id
	u.role = role
	u.sessionID = sessionID
	u.mu.Unlock()
}

// Joined returns the identity and session when the connection has completed
// the join handshake for that session.
func (u *User) Joined(sessionID string) (auth.Identity, session.Role, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state != StateJoined || u.sessionID != sessionID {
		return auth.Identity{}, "", false
	}
	return u.identity, u.role, true
}

func (u *User) SessionID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sessionID
}
