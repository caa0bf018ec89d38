package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"classpulse/internal/database"
	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
)

// maxEditAttempts bounds how often a card edit is re-applied after losing a
// race with navigation
const maxEditAttempts = 3

// PresentationService drives a lesson presentation. The teacher's writes are
// the only source of navigation; students follow the published state.
type PresentationService struct {
	presentations PresentationStore
	sessions      *SessionService
	tx            repository.Transactor
	generator     ContentGenerator
	publisher
}

// NewPresentationService creates a new presentation service. tx may be nil,
// in which case Close falls back to the two-step End.
func NewPresentationService(presentations PresentationStore, sessions *SessionService, tx repository.Transactor, generator ContentGenerator, feed realtime.Feed) *PresentationService {
	return &PresentationService{
		presentations: presentations,
		sessions:      sessions,
		tx:            tx,
		generator:     generator,
		publisher:     publisher{feed: feed},
	}
}

// Start creates a presentation positioned on the first card
func (s *PresentationService) Start(ctx context.Context, code, lessonID string, cards []models.LessonCard) (*models.LessonPresentation, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		return nil, ErrNoCards
	}

	prepared := make([]models.LessonCard, len(cards))
	for i, card := range cards {
		if card.ID == "" {
			card.ID = uuid.NewString()
		}
		if !card.Type.Valid() {
			card.Type = models.CardCustom
		}
		if card.Attachments == nil {
			card.Attachments = []models.CardAttachment{}
		}
		prepared[i] = card
	}
	if lessonID == "" {
		lessonID = uuid.NewString()
	}

	p, err := s.presentations.CreatePresentation(ctx, session.Code, lessonID, prepared)
	if err != nil {
		return nil, fmt.Errorf("failed to start presentation: %w", err)
	}
	s.publish(ctx, realtime.Insert, p.State())
	logger.Printf("Presentation %s started in session %s with %d cards", p.ID, p.SessionCode, len(p.Cards))
	return p, nil
}

// Get returns a presentation with its cards
func (s *PresentationService) Get(ctx context.Context, id string) (*models.LessonPresentation, error) {
	if !validID(id) {
		return nil, ErrPresentationNotFound
	}
	p, err := s.presentations.GetPresentation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPresentationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load presentation: %w", err)
	}
	return p, nil
}

// GetBySession returns the newest active presentation of an active session
func (s *PresentationService) GetBySession(ctx context.Context, code string) (*models.LessonPresentation, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	p, err := s.presentations.GetActivePresentation(ctx, session.Code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPresentationNotFound
	}
	return p, err
}

// owned loads a presentation and checks it belongs to sessionCode
func (s *PresentationService) owned(ctx context.Context, sessionCode, id string) (*models.LessonPresentation, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.SessionCode != sessionCode {
		return nil, ErrPresentationNotFound
	}
	return p, nil
}

// Advance moves the presentation to card index. Each move bumps the revision
// so followers can discard out-of-order updates.
func (s *PresentationService) Advance(ctx context.Context, sessionCode, id string, index int) (*models.LessonPresentation, error) {
	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPresentationEnded
	}
	if !p.ValidIndex(index) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrCardOutOfRange, index, len(p.Cards))
	}

	moved, err := s.presentations.SetCardIndex(ctx, id, index)
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrPresentationEnded
	}
	if err != nil {
		return nil, fmt.Errorf("failed to move presentation: %w", err)
	}
	s.publish(ctx, realtime.Update, moved.State())
	return moved, nil
}

// End stops the presentation and then its session as two separate writes.
// When the second write fails the presentation stays ended, the session
// stays active and a *PartialEndError describes that state. Calling End
// again completes it.
func (s *PresentationService) End(ctx context.Context, sessionCode, id string) (*models.LessonPresentation, error) {
	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}

	ended, changed, err := s.presentations.DeactivatePresentation(ctx, id, now())
	if err != nil {
		return nil, fmt.Errorf("failed to end presentation: %w", err)
	}
	if changed {
		s.publish(ctx, realtime.Update, ended.State())
	}

	if _, err := s.sessions.End(ctx, p.SessionCode); err != nil {
		logger.Error("presentation ended but session did not", err, map[string]interface{}{
			"presentation_id": id,
			"session_code":    p.SessionCode,
		})
		return ended, &PartialEndError{
			PresentationID:     id,
			SessionCode:        p.SessionCode,
			PresentationActive: false,
			SessionActive:      true,
			Err:                err,
		}
	}
	return ended, nil
}

// Close ends the presentation and its session in one transaction, so the
// split state End can leave is never observable.
func (s *PresentationService) Close(ctx context.Context, sessionCode, id string) (*models.LessonPresentation, error) {
	if s.tx == nil {
		return s.End(ctx, sessionCode, id)
	}
	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}

	var (
		ended          *models.LessonPresentation
		presChanged    bool
		sessionChanged bool
	)
	at := now()
	err = s.tx.WithTx(ctx, func(tx database.DBTX) error {
		var err error
		ended, presChanged, err = repository.NewPresentationRepository(tx).DeactivatePresentation(ctx, id, at)
		if err != nil {
			return err
		}
		sessionChanged, err = repository.NewSessionRepository(tx).DeactivateSession(ctx, p.SessionCode, at)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to close presentation: %w", err)
	}

	if presChanged {
		s.publish(ctx, realtime.Update, ended.State())
	}
	if sessionChanged {
		session, err := s.sessions.Lookup(ctx, p.SessionCode)
		if err != nil {
			return ended, err
		}
		s.sessions.ended(ctx, session)
	}
	return ended, nil
}

// Reconcile ends sessions left active after their presentations ended. It
// returns how many sessions it closed.
func (s *PresentationService) Reconcile(ctx context.Context) (int, error) {
	codes, err := s.presentations.ListOrphanedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned sessions: %w", err)
	}

	var errs []error
	closed := 0
	for _, code := range codes {
		if _, err := s.sessions.End(ctx, code); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", code, err))
			continue
		}
		closed++
	}
	if closed > 0 {
		logger.Printf("Reconciled %d sessions left active after their presentation ended", closed)
	}
	return closed, errors.Join(errs...)
}

// Reorder rearranges cards while the class is still on the first card. order
// must list every card id exactly once.
func (s *PresentationService) Reorder(ctx context.Context, sessionCode, id string, order []string) (*models.LessonPresentation, error) {
	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPresentationEnded
	}
	if p.CurrentCardIndex != 0 {
		return nil, ErrNavigationStarted
	}

	reordered, err := reorderCardsByIDs(p.Cards, order)
	if err != nil {
		return nil, err
	}
	return s.replaceCards(ctx, p, reordered)
}

// AddBackgroundCard puts a generated topic background card first. Like
// Reorder it is only allowed before the class moves on.
func (s *PresentationService) AddBackgroundCard(ctx context.Context, sessionCode, id, title string, objectives []string) (*models.LessonPresentation, error) {
	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPresentationEnded
	}
	if p.CurrentCardIndex != 0 {
		return nil, ErrNavigationStarted
	}
	if s.generator == nil {
		return nil, ErrContentUnavailable
	}

	res, err := s.generator.AnalyzeLesson(ctx, title, objectives)
	if err != nil {
		return nil, err
	}

	card := models.LessonCard{
		ID:          uuid.NewString(),
		Type:        models.CardTopicBackground,
		Title:       "Background: " + title,
		Content:     res.Text,
		Attachments: []models.CardAttachment{},
	}
	cards := append([]models.LessonCard{card}, p.Cards...)
	return s.replaceCards(ctx, p, cards)
}

func (s *PresentationService) replaceCards(ctx context.Context, p *models.LessonPresentation, cards []models.LessonCard) (*models.LessonPresentation, error) {
	updated, err := s.presentations.ReplaceCards(ctx, p.ID, cards, p.Revision)
	if errors.Is(err, repository.ErrConflict) {
		if updated != nil && !updated.Active {
			return nil, ErrPresentationEnded
		}
		return nil, ErrConcurrentEdit
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cards: %w", err)
	}
	s.publish(ctx, realtime.Update, updated.State())
	return updated, nil
}

// SimplifyCard adds a student-friendly rewrite of a card. The teacher's text
// is kept in OriginalContent.
func (s *PresentationService) SimplifyCard(ctx context.Context, sessionCode, id, cardID string) (*models.LessonPresentation, error) {
	return s.generateVariant(ctx, sessionCode, id, cardID,
		func(card models.LessonCard) (string, error) {
			source := card.Content
			if card.OriginalContent != "" {
				source = card.OriginalContent
			}
			res, err := s.generator.SimplifyVocabulary(ctx, source)
			return res.Text, err
		},
		func(card *models.LessonCard, text string) {
			if card.OriginalContent == "" {
				card.OriginalContent = card.Content
			}
			card.Content = text
			card.StudentFriendly = true
		},
	)
}

// DifferentiateCard adds a version of a card adapted to level
func (s *PresentationService) DifferentiateCard(ctx context.Context, sessionCode, id, cardID, level string) (*models.LessonPresentation, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = "support"
	}
	return s.generateVariant(ctx, sessionCode, id, cardID,
		func(card models.LessonCard) (string, error) {
			res, err := s.generator.Differentiate(ctx, card.Content, level)
			return res.Text, err
		},
		func(card *models.LessonCard, text string) {
			card.DifferentiatedContent = text
			card.IsDifferentiated = true
		},
	)
}

// ExtendCard adds an extension activity to a card
func (s *PresentationService) ExtendCard(ctx context.Context, sessionCode, id, cardID string) (*models.LessonPresentation, error) {
	return s.generateVariant(ctx, sessionCode, id, cardID,
		func(card models.LessonCard) (string, error) {
			res, err := s.generator.ExpandActivity(ctx, card)
			return res.Text, err
		},
		func(card *models.LessonCard, text string) {
			card.ExtensionActivity = text
		},
	)
}

// generateVariant produces text for one card, then merges it into the latest
// card list. Navigation during generation bumps the revision, so the merge is
// re-applied on a fresh read instead of regenerating.
func (s *PresentationService) generateVariant(ctx context.Context, sessionCode, id, cardID string,
	generate func(models.LessonCard) (string, error), apply func(*models.LessonCard, string)) (*models.LessonPresentation, error) {
	if s.generator == nil {
		return nil, ErrContentUnavailable
	}

	p, err := s.owned(ctx, sessionCode, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPresentationEnded
	}
	idx := cardIndex(p.Cards, cardID)
	if idx < 0 {
		return nil, ErrCardNotFound
	}

	text, err := generate(p.Cards[idx])
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxEditAttempts; attempt++ {
		if attempt > 0 {
			if p, err = s.owned(ctx, sessionCode, id); err != nil {
				return nil, err
			}
			if idx = cardIndex(p.Cards, cardID); idx < 0 {
				return nil, ErrCardNotFound
			}
		}

		cards := append([]models.LessonCard(nil), p.Cards...)
		apply(&cards[idx], text)

		updated, err := s.replaceCards(ctx, p, cards)
		if !errors.Is(err, ErrConcurrentEdit) {
			return updated, err
		}
	}
	return nil, ErrConcurrentEdit
}

func cardIndex(cards []models.LessonCard, cardID string) int {
	for i, card := range cards {
		if card.ID == cardID {
			return i
		}
	}
	return -1
}

// reorderCardsByIDs returns cards in the order given by ids, which must be a
// permutation of the card ids
func reorderCardsByIDs(cards []models.LessonCard, ids []string) ([]models.LessonCard, error) {
	if len(ids) != len(cards) {
		return nil, ErrInvalidOrder
	}

	byID := make(map[string]models.LessonCard, len(cards))
	for _, card := range cards {
		byID[card.ID] = card
	}

	reordered := make([]models.LessonCard, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		card, ok := byID[strings.TrimSpace(id)]
		if !ok || seen[card.ID] {
			return nil, ErrInvalidOrder
		}
		seen[card.ID] = true
		reordered = append(reordered, card)
	}
	return reordered, nil
}
