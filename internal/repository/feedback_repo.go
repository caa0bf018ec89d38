package repository

import (
	"context"

	"github.com/google/uuid"

	"classpulse/internal/database"
	"classpulse/internal/models"
)

type FeedbackRepository struct {
	db database.DBTX
}

func NewFeedbackRepository(db database.DBTX) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// CreateFeedback appends a reaction. Repeats from the same student are kept.
func (r *FeedbackRepository) CreateFeedback(ctx context.Context, sessionCode, studentName string, value models.FeedbackValue) (*models.Feedback, error) {
	f := &models.Feedback{
		ID:          uuid.NewString(),
		SessionCode: sessionCode,
		StudentName: studentName,
		Value:       value,
		CreatedAt:   now(),
	}

	query := `INSERT INTO feedback (id, session_code, student_name, value, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, f.ID, f.SessionCode, f.StudentName, string(f.Value), f.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "feedback")
	}
	return f, nil
}

// ListSessionFeedback returns feedback newest first. limit <= 0 returns all.
func (r *FeedbackRepository) ListSessionFeedback(ctx context.Context, sessionCode string, limit int) ([]models.Feedback, error) {
	query := `SELECT id, session_code, student_name, value, created_at FROM feedback WHERE session_code = ? ORDER BY created_at DESC, id DESC`
	args := []interface{}{sessionCode}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedback []models.Feedback
	for rows.Next() {
		var f models.Feedback
		var value string
		if err := rows.Scan(&f.ID, &f.SessionCode, &f.StudentName, &value, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.Value = models.FeedbackValue(value)
		feedback = append(feedback, f)
	}
	return feedback, rows.Err()
}
