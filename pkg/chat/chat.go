// Package chat stores meeting chat messages. Persistence is best-effort at
// the gateway: a failed save never blocks broadcast delivery. Messages are
// immutable; edit/delete is out of scope for meeting chat.
package chat

import (
	"context"
	"time"
)

type Message struct {
	ID           string
	SessionID    string
	SenderID     string
	SenderName   string
	SenderAvatar string
	Content      string
	CreatedAt    time.Time
}

type Store interface {
	Save(ctx context.Context, m *Message) error
	// Recent returns up to limit newest messages, newest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// History pages backwards: messages strictly older than before
	// (zero time means "from the latest"), newest first.
	History(ctx context.Context, sessionID string, before time.Time, limit int) (msgs []Message, hasMore bool, total int, err error)
}
