// Package session provides read-only access to scheduled sessions and class
// membership. Session CRUD and scheduling live in another service; the
// gateway only validates and authorizes against this data.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("session not found")
	ErrEnded     = errors.New("session has ended")
	ErrForbidden = errors.New("not a member of this session")
)

type Role string

const (
	RoleHost    Role = "host"
	RoleTeacher Role = "teacher"
	RoleMember  Role = "member"
)

type Session struct {
	ID      string
	ClassID string
	Title   string
	HostID  string
	StartAt time.Time
	EndAt   *time.Time // nil for open-ended sessions
}

// Ended reports whether the session is immutable and joins are rejected.
func (s *Session) Ended(now time.Time) bool {
	return s.EndAt != nil && now.After(*s.EndAt)
}

// Directory resolves sessions and authorizes identities against them.
type Directory interface {
	// Session returns ErrNotFound for unknown ids.
	Session(ctx context.Context, id string) (*Session, error)
	// Authorize returns the caller's role in the session: the host, the
	// class creator and class teachers get elevated roles, active class
	// members get RoleMember, anyone else gets ErrForbidden.
	Authorize(ctx context.Context, s *Session, userID string) (Role, error)
}
