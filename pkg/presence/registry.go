// Package presence is the in-process bookkeeping of connected participants.
// It is deliberately single-process: scaling the gateway horizontally
// requires replacing this with an external shared store.
package presence

import (
	"sync"
	"time"

	"github.com/liveclass/liveclass/pkg/com"
	"github.com/liveclass/liveclass/pkg/session"
)

// Participant is owned by the registry for the duration of one connection.
type Participant struct {
	UserID        string
	SessionID     string
	ConnID        com.Uid
	FullName      string
	Avatar        string
	Role          session.Role
	AudioEnabled  bool
	VideoEnabled  bool
	ScreenSharing bool
	JoinedAt      time.Time
}

type key struct{ sessionID, userID string }

// Registry keeps two indices over the same entries: session buckets keyed by
// user, and a connection-id index. Every entry is reachable by exactly one
// connection id; removing by connection id also removes the bucket entry,
// and an emptied session bucket is pruned.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]map[string]*Participant
	byConn   map[com.Uid]key
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]map[string]*Participant),
		byConn:   make(map[com.Uid]key),
	}
}

// Add registers a participant. A user has at most one active entry per
// session: re-registration (reconnect) overwrites, and the connection id of
// the evicted entry is returned so the caller can close the stale socket.
func (r *Registry) Add(p *Participant) (evicted com.Uid, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.sessions[p.SessionID]
	if bucket == nil {
		bucket = make(map[string]*Participant)
		r.sessions[p.SessionID] = bucket
	}
	if old, exists := bucket[p.UserID]; exists {
		delete(r.byConn, old.ConnID)
		evicted, ok = old.ConnID, true
	}
	cp := *p
	bucket[p.UserID] = &cp
	r.byConn[p.ConnID] = key{p.SessionID, p.UserID}
	return
}

// RemoveByConnection unregisters whatever entry the connection owns and
// returns it, or nil when the connection had none.
func (r *Registry) RemoveByConnection(connID com.Uid) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.byConn[connID]
	if !ok {
		return nil
	}
	delete(r.byConn, connID)
	bucket := r.sessions[k.sessionID]
	p := bucket[k.userID]
	delete(bucket, k.userID)
	if len(bucket) == 0 {
		delete(r.sessions, k.sessionID)
	}
	return p
}

func (r *Registry) Get(userID, sessionID string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[sessionID][userID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

func (r *Registry) IsOnline(userID, sessionID string) bool {
	_, ok := r.Get(userID, sessionID)
	return ok
}

func (r *Registry) ConnectionFor(userID, sessionID string) (com.Uid, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[sessionID][userID]
	if !ok {
		return com.NilUid, false
	}
	return p.ConnID, true
}

// ListSession returns the session roster ordered by join time.
func (r *Registry) ListSession(sessionID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	bucket := r.sessions[sessionID]
	out := make([]Participant, 0, len(bucket))
	for _, p := range bucket {
		out = append(out, *p)
	}
	sortByJoin(out)
	return out
}

// Update mutates an entry's media flags in place under the registry lock.
func (r *Registry) Update(userID, sessionID string, fn func(p *Participant)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.sessions[sessionID][userID]
	if !ok {
		return false
	}
	fn(p)
	return true
}

func sortByJoin(ps []Participant) {
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].JoinedAt.Before(ps[j-1].JoinedAt); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}
