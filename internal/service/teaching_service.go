package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/validation"
)

// TeachingService collects pacing feedback and questions during a presentation
type TeachingService struct {
	teaching      *repository.TeachingRepository
	presentations *PresentationService
	publisher
}

// NewTeachingService creates a new teaching service
func NewTeachingService(teaching *repository.TeachingRepository, presentations *PresentationService, feed realtime.Feed) *TeachingService {
	return &TeachingService{teaching: teaching, presentations: presentations, publisher: publisher{feed: feed}}
}

func (s *TeachingService) activePresentation(ctx context.Context, presentationID string) (*models.LessonPresentation, error) {
	p, err := s.presentations.Get(ctx, presentationID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPresentationEnded
	}
	return p, nil
}

// SubmitFeedback appends a pacing signal
func (s *TeachingService) SubmitFeedback(ctx context.Context, presentationID, studentName string, feedbackType models.TeachingFeedbackType) (*models.TeachingFeedback, error) {
	if !feedbackType.Valid() {
		return nil, ErrInvalidFeedback
	}
	studentName = strings.TrimSpace(studentName)
	if err := validation.ValidateName(studentName); err != nil {
		return nil, err
	}
	p, err := s.activePresentation(ctx, presentationID)
	if err != nil {
		return nil, err
	}

	f, err := s.teaching.CreateTeachingFeedback(ctx, p.ID, studentName, feedbackType)
	if err != nil {
		return nil, fmt.Errorf("failed to save teaching feedback: %w", err)
	}
	s.publish(ctx, realtime.Insert, *f)
	return f, nil
}

// AskQuestion stores a student question
func (s *TeachingService) AskQuestion(ctx context.Context, presentationID, studentName, question string) (*models.TeachingQuestion, error) {
	studentName = strings.TrimSpace(studentName)
	if err := validation.ValidateName(studentName); err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if err := validation.ValidateQuestion(question); err != nil {
		return nil, err
	}
	p, err := s.activePresentation(ctx, presentationID)
	if err != nil {
		return nil, err
	}

	q, err := s.teaching.CreateQuestion(ctx, p.ID, studentName, question)
	if err != nil {
		return nil, fmt.Errorf("failed to save question: %w", err)
	}
	s.publish(ctx, realtime.Insert, *q)
	return q, nil
}

// AnswerQuestion marks a question answered. Answering twice is a no-op and
// an answered question never reverts.
func (s *TeachingService) AnswerQuestion(ctx context.Context, sessionCode, questionID string) (*models.TeachingQuestion, error) {
	if !validID(questionID) {
		return nil, ErrQuestionNotFound
	}
	existing, err := s.teaching.GetQuestion(ctx, questionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	p, err := s.presentations.Get(ctx, existing.PresentationID)
	if err != nil {
		return nil, err
	}
	if p.SessionCode != sessionCode {
		return nil, ErrQuestionNotFound
	}

	q, err := s.teaching.MarkAnswered(ctx, questionID, now())
	if errors.Is(err, repository.ErrConflict) {
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to answer question: %w", err)
	}
	s.publish(ctx, realtime.Update, *q)
	return q, nil
}

// ListFeedback returns a presentation's pacing signals newest first
func (s *TeachingService) ListFeedback(ctx context.Context, presentationID string) ([]models.TeachingFeedback, error) {
	if !validID(presentationID) {
		return nil, ErrPresentationNotFound
	}
	return s.teaching.ListTeachingFeedback(ctx, presentationID)
}

// ListQuestions returns a presentation's questions newest first
func (s *TeachingService) ListQuestions(ctx context.Context, presentationID string) ([]models.TeachingQuestion, error) {
	if !validID(presentationID) {
		return nil, ErrPresentationNotFound
	}
	return s.teaching.ListQuestions(ctx, presentationID)
}
