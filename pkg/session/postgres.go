package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgDirectory reads session and class membership rows owned by the
// scheduling service.
type PgDirectory struct {
	db *pgxpool.Pool
}

func NewPgDirectory(db *pgxpool.Pool) *PgDirectory { return &PgDirectory{db: db} }

func (d *PgDirectory) Session(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := d.db.QueryRow(ctx, `
		SELECT id, class_id, title, host_id, start_at, end_at
		FROM sessions WHERE id=$1
	`, id).Scan(&s.ID, &s.ClassID, &s.Title, &s.HostID, &s.StartAt, &s.EndAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (d *PgDirectory) Authorize(ctx context.Context, s *Session, userID string) (Role, error) {
	if userID == s.HostID {
		return RoleHost, nil
	}
	var creator string
	if err := d.db.QueryRow(ctx,
		`SELECT creator_id FROM classes WHERE id=$1`, s.ClassID).Scan(&creator); err == nil && creator == userID {
		return RoleHost, nil
	}
	var role string
	err := d.db.QueryRow(ctx, `
		SELECT role FROM class_members
		WHERE class_id=$1 AND user_id=$2 AND status='active'
	`, s.ClassID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrForbidden
		}
		return "", err
	}
	if role == "teacher" {
		return RoleTeacher, nil
	}
	return RoleMember, nil
}
