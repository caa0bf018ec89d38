package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"classpulse/internal/database"
	"classpulse/internal/models"
)

const presentationColumns = `id, lesson_id, session_code, cards, current_card_index, active, revision, cards_revision, created_at, ended_at`

type PresentationRepository struct {
	db database.DBTX
}

func NewPresentationRepository(db database.DBTX) *PresentationRepository {
	return &PresentationRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PresentationRepository) WithTx(tx database.DBTX) *PresentationRepository {
	return &PresentationRepository{db: tx}
}

// CreatePresentation inserts an active presentation positioned on the first card
func (r *PresentationRepository) CreatePresentation(ctx context.Context, sessionCode, lessonID string, cards []models.LessonCard) (*models.LessonPresentation, error) {
	p := &models.LessonPresentation{
		ID:          uuid.NewString(),
		LessonID:    lessonID,
		SessionCode: sessionCode,
		Cards:       cards,
		Active:      true,
		CreatedAt:   now(),
	}

	encoded, err := json.Marshal(cards)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cards: %w", err)
	}

	query := `
		INSERT INTO lesson_presentations (id, lesson_id, session_code, cards, current_card_index, active, revision, cards_revision, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, p.ID, p.LessonID, p.SessionCode, string(encoded), 0, true, 0, 0, p.CreatedAt); err != nil {
		return nil, insertError(r.db, err, "presentation")
	}
	return p, nil
}

// GetPresentation retrieves a presentation with its cards
func (r *PresentationRepository) GetPresentation(ctx context.Context, id string) (*models.LessonPresentation, error) {
	query := `SELECT ` + presentationColumns + ` FROM lesson_presentations WHERE id = ?`
	p, err := scanPresentation(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "presentation "+id)
	}
	return p, nil
}

// GetActivePresentation returns the newest active presentation of a session
func (r *PresentationRepository) GetActivePresentation(ctx context.Context, sessionCode string) (*models.LessonPresentation, error) {
	query := `
		SELECT ` + presentationColumns + `
		FROM lesson_presentations
		WHERE session_code = ? AND active = ?
		ORDER BY created_at DESC
		LIMIT 1
	`
	p, err := scanPresentation(r.db.QueryRowContext(ctx, query, sessionCode, true))
	if err != nil {
		return nil, notFound(err, "active presentation for "+sessionCode)
	}
	return p, nil
}

// ListSessionPresentations returns every presentation of a session, oldest first
func (r *PresentationRepository) ListSessionPresentations(ctx context.Context, sessionCode string) ([]models.LessonPresentation, error) {
	query := `SELECT ` + presentationColumns + ` FROM lesson_presentations WHERE session_code = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, sessionCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var presentations []models.LessonPresentation
	for rows.Next() {
		p, err := scanPresentation(rows)
		if err != nil {
			return nil, err
		}
		presentations = append(presentations, *p)
	}
	return presentations, rows.Err()
}

// SetCardIndex moves an active presentation to index and bumps its revision
func (r *PresentationRepository) SetCardIndex(ctx context.Context, id string, index int) (*models.LessonPresentation, error) {
	query := `UPDATE lesson_presentations SET current_card_index = ?, revision = revision + 1 WHERE id = ? AND active = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, index, id, true))
	if err != nil {
		return nil, fmt.Errorf("failed to move presentation %s: %w", id, err)
	}
	return r.afterGuardedUpdate(ctx, id, changed)
}

// ReplaceCards swaps the card list if the presentation is still at
// expectRevision. Both revisions move.
func (r *PresentationRepository) ReplaceCards(ctx context.Context, id string, cards []models.LessonCard, expectRevision int64) (*models.LessonPresentation, error) {
	encoded, err := json.Marshal(cards)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cards: %w", err)
	}

	query := `UPDATE lesson_presentations SET cards = ?, revision = revision + 1, cards_revision = cards_revision + 1 WHERE id = ? AND active = ? AND revision = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, string(encoded), id, true, expectRevision))
	if err != nil {
		return nil, fmt.Errorf("failed to update cards of %s: %w", id, err)
	}
	return r.afterGuardedUpdate(ctx, id, changed)
}

// DeactivatePresentation ends a presentation. It reports false when the
// presentation had already ended.
func (r *PresentationRepository) DeactivatePresentation(ctx context.Context, id string, at time.Time) (*models.LessonPresentation, bool, error) {
	query := `UPDATE lesson_presentations SET active = ?, ended_at = ?, revision = revision + 1 WHERE id = ? AND active = ?`
	changed, err := rowsChanged(r.db.ExecContext(ctx, query, false, at, id, true))
	if err != nil {
		return nil, false, fmt.Errorf("failed to end presentation %s: %w", id, err)
	}
	p, err := r.GetPresentation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return p, changed, nil
}

// ListOrphanedSessions returns codes of active sessions whose presentations
// have all ended. These are left behind when ending a presentation could not
// also end its session.
func (r *PresentationRepository) ListOrphanedSessions(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT s.code
		FROM sessions s
		JOIN lesson_presentations p ON p.session_code = s.code
		WHERE s.active = ? AND p.active = ?
		AND NOT EXISTS (
			SELECT 1 FROM lesson_presentations live
			WHERE live.session_code = s.code AND live.active = ?
		)
	`

	rows, err := r.db.QueryContext(ctx, query, true, false, true)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (r *PresentationRepository) afterGuardedUpdate(ctx context.Context, id string, changed bool) (*models.LessonPresentation, error) {
	p, err := r.GetPresentation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, ErrConflict
	}
	return p, nil
}

func scanPresentation(row rowScanner) (*models.LessonPresentation, error) {
	var p models.LessonPresentation
	var cards string
	var endedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.LessonID, &p.SessionCode, &cards, &p.CurrentCardIndex,
		&p.Active, &p.Revision, &p.CardsRevision, &p.CreatedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cards), &p.Cards); err != nil {
		return nil, fmt.Errorf("failed to decode cards of %s: %w", p.ID, err)
	}
	p.EndedAt = timePtr(endedAt)
	return &p, nil
}
