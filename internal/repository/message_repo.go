package repository

import (
	"context"

	"github.com/google/uuid"

	"classpulse/internal/database"
	"classpulse/internal/models"
)

type MessageRepository struct {
	db database.DBTX
}

func NewMessageRepository(db database.DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// CreateMessage stores a teacher broadcast
func (r *MessageRepository) CreateMessage(ctx context.Context, sessionCode, message string) (*models.TeacherMessage, error) {
	m := &models.TeacherMessage{
		ID:          uuid.NewString(),
		SessionCode: sessionCode,
		Message:     message,
		CreatedAt:   now(),
	}

	query := `INSERT INTO teacher_messages (id, session_code, message, created_at) VALUES (?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, m.ID, m.SessionCode, m.Message, m.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "message")
	}
	return m, nil
}

// ListMessages returns a session's messages newest first
func (r *MessageRepository) ListMessages(ctx context.Context, sessionCode string) ([]models.TeacherMessage, error) {
	query := `SELECT id, session_code, message, created_at FROM teacher_messages WHERE session_code = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, sessionCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.TeacherMessage
	for rows.Next() {
		var m models.TeacherMessage
		if err := rows.Scan(&m.ID, &m.SessionCode, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
