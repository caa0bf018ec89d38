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

// MessageService broadcasts teacher messages to a session
type MessageService struct {
	messages *repository.MessageRepository
	sessions *SessionService
	publisher
}

// NewMessageService creates a new message service
func NewMessageService(messages *repository.MessageRepository, sessions *SessionService, feed realtime.Feed) *MessageService {
	return &MessageService{messages: messages, sessions: sessions, publisher: publisher{feed: feed}}
}

// Send stores a message for an active session
func (s *MessageService) Send(ctx context.Context, code, text string) (*models.TeacherMessage, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if err := validation.ValidateMessage(text); err != nil {
		return nil, err
	}

	m, err := s.messages.CreateMessage(ctx, session.Code, text)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	s.publish(ctx, realtime.Insert, *m)
	return m, nil
}

// List returns a session's messages newest first
func (s *MessageService) List(ctx context.Context, code string) ([]models.TeacherMessage, error) {
	session, err := s.sessions.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, session.Code)
}
