package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classpulse/internal/database"
	"classpulse/internal/models"
)

const questionColumns = `id, presentation_id, student_name, question, answered, created_at, answered_at`

type TeachingRepository struct {
	db database.DBTX
}

func NewTeachingRepository(db database.DBTX) *TeachingRepository {
	return &TeachingRepository{db: db}
}

// CreateTeachingFeedback appends a pacing signal for a presentation
func (r *TeachingRepository) CreateTeachingFeedback(ctx context.Context, presentationID, studentName string, feedbackType models.TeachingFeedbackType) (*models.TeachingFeedback, error) {
	f := &models.TeachingFeedback{
		ID:             uuid.NewString(),
		PresentationID: presentationID,
		StudentName:    studentName,
		FeedbackType:   feedbackType,
		CreatedAt:      now(),
	}

	query := `INSERT INTO teaching_feedback (id, presentation_id, student_name, feedback_type, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, f.ID, f.PresentationID, f.StudentName, string(f.FeedbackType), f.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "teaching feedback")
	}
	return f, nil
}

// ListTeachingFeedback returns pacing signals newest first
func (r *TeachingRepository) ListTeachingFeedback(ctx context.Context, presentationID string) ([]models.TeachingFeedback, error) {
	query := `
		SELECT id, presentation_id, student_name, feedback_type, created_at
		FROM teaching_feedback
		WHERE presentation_id = ?
		ORDER BY created_at DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feedback []models.TeachingFeedback
	for rows.Next() {
		var f models.TeachingFeedback
		var feedbackType string
		if err := rows.Scan(&f.ID, &f.PresentationID, &f.StudentName, &feedbackType, &f.CreatedAt); err != nil {
			return nil, err
		}
		f.FeedbackType = models.TeachingFeedbackType(feedbackType)
		feedback = append(feedback, f)
	}
	return feedback, rows.Err()
}

// CreateQuestion stores an unanswered question
func (r *TeachingRepository) CreateQuestion(ctx context.Context, presentationID, studentName, question string) (*models.TeachingQuestion, error) {
	q := &models.TeachingQuestion{
		ID:             uuid.NewString(),
		PresentationID: presentationID,
		StudentName:    studentName,
		Question:       question,
		CreatedAt:      now(),
	}

	query := `INSERT INTO teaching_questions (id, presentation_id, student_name, question, answered, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, q.ID, q.PresentationID, q.StudentName, q.Question, false, q.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "question")
	}
	return q, nil
}

// GetQuestion retrieves a question by id
func (r *TeachingRepository) GetQuestion(ctx context.Context, id string) (*models.TeachingQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM teaching_questions WHERE id = ?`
	q, err := scanQuestion(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "question "+id)
	}
	return q, nil
}

// MarkAnswered flags a question answered. ErrConflict means it already was.
func (r *TeachingRepository) MarkAnswered(ctx context.Context, id string, at time.Time) (*models.TeachingQuestion, error) {
	query := `UPDATE teaching_questions SET answered = ?, answered_at = ? WHERE id = ? AND answered = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, true, at, id, false))
	if err != nil {
		return nil, fmt.Errorf("failed to answer question %s: %w", id, err)
	}

	q, err := r.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return q, ErrConflict
	}
	return q, nil
}

// ListQuestions returns questions of a presentation newest first
func (r *TeachingRepository) ListQuestions(ctx context.Context, presentationID string) ([]models.TeachingQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM teaching_questions WHERE presentation_id = ? ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, presentationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []models.TeachingQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

func scanQuestion(row rowScanner) (*models.TeachingQuestion, error) {
	var q models.TeachingQuestion
	var answeredAt sql.NullTime
	if err := row.Scan(&q.ID, &q.PresentationID, &q.StudentName, &q.Question, &q.Answered, &q.CreatedAt, &answeredAt); err != nil {
		return nil, err
	}
	q.AnsweredAt = timePtr(answeredAt)
	return &q, nil
}
