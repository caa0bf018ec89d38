package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classpulse/internal/database"
	"classpulse/internal/models"
)

type SessionRepository struct {
	db database.DBTX
}

func NewSessionRepository(db database.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *SessionRepository) WithTx(tx database.DBTX) *SessionRepository {
	return &SessionRepository{db: tx}
}

// CreateSession inserts an active session. A taken code yields ErrDuplicate.
func (r *SessionRepository) CreateSession(ctx context.Context, code, teacherName, teacherEmail string) (*models.Session, error) {
	s := &models.Session{
		Code:         code,
		TeacherName:  teacherName,
		TeacherEmail: teacherEmail,
		Active:       true,
		CreatedAt:    now(),
	}

	query := `INSERT INTO sessions (code, teacher_name, teacher_email, active, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, s.Code, s.TeacherName, s.TeacherEmail, true, s.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "session")
	}
	return s, nil
}

// GetSession returns the session with the given code, active or not
func (r *SessionRepository) GetSession(ctx context.Context, code string) (*models.Session, error) {
	query := `SELECT code, teacher_name, teacher_email, active, created_at, ended_at FROM sessions WHERE code = ?`

	var s models.Session
	var endedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, code).Scan(
		&s.Code, &s.TeacherName, &s.TeacherEmail, &s.Active, &s.CreatedAt, &endedAt,
	)
	if err != nil {
		return nil, notFound(err, "session "+code)
	}
	s.EndedAt = timePtr(endedAt)
	return &s, nil
}

// DeactivateSession marks the session inactive. It reports false when the
// session was already inactive.
func (r *SessionRepository) DeactivateSession(ctx context.Context, code string, at time.Time) (bool, error) {
	query := `UPDATE sessions SET active = ?, ended_at = ? WHERE code = ? AND active = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, false, at, code, true))
	if err != nil {
		return false, fmt.Errorf("failed to end session %s: %w", code, err)
	}
	if changed {
		return true, nil
	}
	if _, err := r.GetSession(ctx, code); err != nil {
		return false, err
	}
	return false, nil
}

// ListActiveSessionsBefore returns active sessions created before cutoff
func (r *SessionRepository) ListActiveSessionsBefore(ctx context.Context, cutoff time.Time) ([]models.Session, error) {
	query := `
		SELECT code, teacher_name, teacher_email, active, created_at, ended_at
		FROM sessions
		WHERE active = ? AND created_at < ?
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, true, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var endedAt sql.NullTime
		if err := rows.Scan(&s.Code, &s.TeacherName, &s.TeacherEmail, &s.Active, &s.CreatedAt, &endedAt); err != nil {
			return nil, err
		}
		s.EndedAt = timePtr(endedAt)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
