package session

import (
	"context"
	"sync"
)

// MemDirectory is an in-memory Directory for tests and single-box setups.
type MemDirectory struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	creators map[string]string          // classID -> creatorID
	members  map[string]map[string]Role // classID -> userID -> role
}

func NewMemDirectory() *MemDirectory {
	return &MemDirectory{
		sessions: make(map[string]*Session),
		creators: make(map[string]string),
		members:  make(map[string]map[string]Role),
	}
}

func (d *MemDirectory) AddSession(s *Session) {
	d.mu.Lock()
	d.sessions[s.ID] = s
	d.mu.Unlock()
}

func (d *MemDirectory) SetCreator(classID, userID string) {
	d.mu.Lock()
	d.creators[classID] = userID
	d.mu.Unlock()
}

func (d *MemDirectory) AddMember(classID, userID string, role Role) {
	d.mu.Lock()
	if d.members[classID] == nil {
		d.members[classID] = make(map[string]Role)
	}
	d.members[classID][userID] = role
	d.mu.Unlock()
}

func (d *MemDirectory) Session(_ context.Context, id string) (*Session, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (d *MemDirectory) Authorize(_ context.Context, s *Session, userID string) (Role, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if userID == s.HostID || d.creators[s.ClassID] == userID {
		return RoleHost, nil
	}
	if role, ok := d.members[s.ClassID][userID]; ok {
		return role, nil
	}
	return "", ErrForbidden
}
