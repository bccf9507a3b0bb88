package chat

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore { return &PgStore{db: db} }

func (s *PgStore) Save(ctx context.Context, m *Message) error {
	return s.db.QueryRow(ctx, `
		INSERT INTO meet_messages (id, session_id, sender_id, sender_name, sender_avatar, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, m.ID, m.SessionID, m.SenderID, m.SenderName, m.SenderAvatar, m.Content, m.CreatedAt).Scan(&m.ID)
}

func (s *PgStore) Recent(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, sender_id, sender_name, sender_avatar, content, created_at
		FROM meet_messages
		WHERE session_id=$1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAll(rows)
}

func (s *PgStore) History(ctx context.Context, sessionID string, before time.Time, limit int) ([]Message, bool, int, error) {
	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM meet_messages WHERE session_id=$1`, sessionID).Scan(&total); err != nil {
		return nil, false, 0, err
	}
	// fetch one extra row to learn whether an older page exists
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, sender_id, sender_name, sender_avatar, content, created_at
		FROM meet_messages
		WHERE session_id=$1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, sessionID, nullableTime(before), limit+1)
	if err != nil {
		return nil, false, 0, err
	}
	defer rows.Close()
	msgs, err := scanAll(rows)
	if err != nil {
		return nil, false, 0, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	return msgs, hasMore, total, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAll(rows pgRows) ([]Message, error) {
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.SenderName,
			&m.SenderAvatar, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
