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

const participantColumns = `id, session_code, student_name, status, join_token, joined_at, decided_at`

type ParticipantRepository struct {
	db database.DBTX
}

func NewParticipantRepository(db database.DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

// CreateParticipant inserts a pending participant. joinToken may be empty;
// a repeated non-empty token yields ErrDuplicate.
func (r *ParticipantRepository) CreateParticipant(ctx context.Context, sessionCode, studentName, joinToken string) (*models.Participant, error) {
	p := &models.Participant{
		ID:          uuid.NewString(),
		SessionCode: sessionCode,
		StudentName: studentName,
		Status:      models.StatusPending,
		JoinToken:   joinToken,
		JoinedAt:    now(),
	}

	var token sql.NullString
	if joinToken != "" {
		token = sql.NullString{String: joinToken, Valid: true}
	}

	query := `INSERT INTO session_participants (id, session_code, student_name, status, join_token, joined_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.SessionCode, p.StudentName, string(p.Status), token, p.JoinedAt); err != nil {
		return nil, insertError(r.db, err, "participant")
	}
	return p, nil
}

// GetParticipant retrieves a participant by id
func (r *ParticipantRepository) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants WHERE id = ?`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "participant "+id)
	}
	return p, nil
}

// GetParticipantByJoinToken retrieves the participant created with token
func (r *ParticipantRepository) GetParticipantByJoinToken(ctx context.Context, token string) (*models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants WHERE join_token = ?`
	p, err := scanParticipant(r.db.QueryRowContext(ctx, query, token))
	if err != nil {
		return nil, notFound(err, "participant")
	}
	return p, nil
}

// ListSessionParticipants returns participants in join order
func (r *ParticipantRepository) ListSessionParticipants(ctx context.Context, sessionCode string) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM session_participants WHERE session_code = ? ORDER BY joined_at, id`

	rows, err := r.db.QueryContext(ctx, query, sessionCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, *p)
	}
	return participants, rows.Err()
}

// DecideParticipant moves a pending participant to status. ErrConflict means
// the participant had already been decided.
func (r *ParticipantRepository) DecideParticipant(ctx context.Context, id string, status models.ParticipantStatus, at time.Time) (*models.Participant, error) {
	query := `UPDATE session_participants SET status = ?, decided_at = ? WHERE id = ? AND status = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, string(status), at, id, string(models.StatusPending)))
	if err != nil {
		return nil, fmt.Errorf("failed to update participant %s: %w", id, err)
	}

	p, err := r.GetParticipant(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, ErrConflict
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var p models.Participant
	var status string
	var token sql.NullString
	var decidedAt sql.NullTime
	if err := row.Scan(&p.ID, &p.SessionCode, &p.StudentName, &status, &token, &p.JoinedAt, &decidedAt); err != nil {
		return nil, err
	}
	p.Status = models.ParticipantStatus(status)
	p.JoinToken = token.String
	p.DecidedAt = timePtr(decidedAt)
	return &p, nil
}
