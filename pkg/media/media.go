// Package media provisions rooms on the media-routing server and mints the
// time-bounded capability credentials participants use to join them.
package media

import (
	"context"
	"time"
)

// Grants scope what a credential allows inside the room.
type Grants struct {
	Publish     bool
	Subscribe   bool
	PublishData bool
}

// Credential grants one identity access to one room until ExpiresAt.
// Credentials are never persisted server-side.
type Credential struct {
	URL         string
	RoomName    string
	AccessToken string
	ExpiresAt   time.Time
}

// Stale reports whether the credential is expired or close enough to expiry
// that a reconnecting client should not reuse it.
func (c *Credential) Stale(now time.Time, margin time.Duration) bool {
	return c.AccessToken == "" || !now.Add(margin).Before(c.ExpiresAt)
}

// Identity is the participant identity encoded into a credential.
type Identity struct {
	ID       string
	Name     string
	Metadata string // opaque JSON: role, avatar, email
}

type Provisioner interface {
	// EnsureRoom creates the session's media room when missing (with
	// empty/departure GC timeouts) and returns its name. Idempotent.
	EnsureRoom(ctx context.Context, sessionID string) (string, error)
	// MintCredential issues a signed capability token for the identity.
	MintCredential(roomName string, id Identity, grants Grants) (Credential, error)
	// Relay publishes an application event into the room's data channel so
	// participants connected only through the media transport observe it.
	// Callers treat failures as best-effort: log, never propagate.
	Relay(ctx context.Context, sessionID, topic string, payload []byte) error
}
