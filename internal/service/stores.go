package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"classpulse/internal/content"
	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
)

// SessionStore is the session persistence used by the services
type SessionStore interface {
	CreateSession(ctx context.Context, code, teacherName, teacherEmail string) (*models.Session, error)
	GetSession(ctx context.Context, code string) (*models.Session, error)
	DeactivateSession(ctx context.Context, code string, at time.Time) (bool, error)
}

// ParticipantStore is the participant persistence used by the services
type ParticipantStore interface {
	CreateParticipant(ctx context.Context, sessionCode, studentName, joinToken string) (*models.Participant, error)
	GetParticipant(ctx context.Context, id string) (*models.Participant, error)
	GetParticipantByJoinToken(ctx context.Context, token string) (*models.Participant, error)
	ListSessionParticipants(ctx context.Context, sessionCode string) ([]models.Participant, error)
	DecideParticipant(ctx context.Context, id string, status models.ParticipantStatus, at time.Time) (*models.Participant, error)
}

// PresentationStore is the presentation persistence used by the services
type PresentationStore interface {
	CreatePresentation(ctx context.Context, sessionCode, lessonID string, cards []models.LessonCard) (*models.LessonPresentation, error)
	GetPresentation(ctx context.Context, id string) (*models.LessonPresentation, error)
	GetActivePresentation(ctx context.Context, sessionCode string) (*models.LessonPresentation, error)
	ListSessionPresentations(ctx context.Context, sessionCode string) ([]models.LessonPresentation, error)
	SetCardIndex(ctx context.Context, id string, index int) (*models.LessonPresentation, error)
	ReplaceCards(ctx context.Context, id string, cards []models.LessonCard, expectRevision int64) (*models.LessonPresentation, error)
	DeactivatePresentation(ctx context.Context, id string, at time.Time) (*models.LessonPresentation, bool, error)
	ListOrphanedSessions(ctx context.Context) ([]string, error)
}

// ContentGenerator produces alternate card text
type ContentGenerator interface {
	Enabled() bool
	AnalyzeLesson(ctx context.Context, title string, objectives []string) (content.Result, error)
	ExpandActivity(ctx context.Context, card models.LessonCard) (content.Result, error)
	SimplifyVocabulary(ctx context.Context, text string) (content.Result, error)
	Differentiate(ctx context.Context, text, level string) (content.Result, error)
}

// publisher emits committed rows on the change feed. The row is already
// stored when it runs, so failures are logged rather than returned.
type publisher struct {
	feed realtime.Feed
}

func (p publisher) publish(ctx context.Context, kind realtime.EventKind, rec realtime.Record) {
	if p.feed == nil {
		return
	}
	if err := realtime.Emit(ctx, p.feed, kind, rec); err != nil {
		logger.Error("failed to publish change", err, map[string]interface{}{
			"table": string(rec.TableName()),
			"key":   rec.FilterKey(),
		})
	}
}

// validID reports whether id can name a stored row. Malformed ids never
// reach the store, so every dialect answers them with the same not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func now() time.Time {
	return time.Now().UTC()
}
