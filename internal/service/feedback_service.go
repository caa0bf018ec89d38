package service

import (
	"context"
	"fmt"
	"strings"

	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/validation"
)

// FeedbackService records emoji reactions during a session
type FeedbackService struct {
	feedback *repository.FeedbackRepository
	sessions *SessionService
	publisher
}

// NewFeedbackService creates a new feedback service
func NewFeedbackService(feedback *repository.FeedbackRepository, sessions *SessionService, feed realtime.Feed) *FeedbackService {
	return &FeedbackService{feedback: feedback, sessions: sessions, publisher: publisher{feed: feed}}
}

// Submit appends a reaction. Reactions are not deduplicated.
func (s *FeedbackService) Submit(ctx context.Context, code, studentName string, value models.FeedbackValue) (*models.Feedback, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if !value.Valid() {
		return nil, ErrInvalidFeedback
	}
	studentName = strings.TrimSpace(studentName)
	if err := validation.ValidateName(studentName); err != nil {
		return nil, err
	}

	f, err := s.feedback.CreateFeedback(ctx, session.Code, studentName, value)
	if err != nil {
		return nil, fmt.Errorf("failed to save feedback: %w", err)
	}
	s.publish(ctx, realtime.Insert, *f)
	return f, nil
}

// List returns a session's reactions newest first
func (s *FeedbackService) List(ctx context.Context, code string, limit int) ([]models.Feedback, error) {
	session, err := s.sessions.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.feedback.ListSessionFeedback(ctx, session.Code, limit)
}

// Tally counts reactions by value
func Tally(feedback []models.Feedback) map[models.FeedbackValue]int {
	counts := make(map[models.FeedbackValue]int, len(models.FeedbackValues))
	for _, v := range models.FeedbackValues {
		counts[v] = 0
	}
	for _, f := range feedback {
		counts[f.Value]++
	}
	return counts
}
