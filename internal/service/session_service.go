package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"classpulse/internal/credentials"
	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/validation"
)

// maxCodeAttempts bounds how many codes Create tries before giving up
const maxCodeAttempts = 5

// SessionService manages live classroom sessions
type SessionService struct {
	sessions SessionStore
	tokens   *credentials.TokenIssuer
	publisher
	newCode func() (string, error)

	mu      sync.RWMutex
	onEnded []func(code string)
}

// NewSessionService creates a new session service
func NewSessionService(sessions SessionStore, tokens *credentials.TokenIssuer, feed realtime.Feed) *SessionService {
	return &SessionService{
		sessions:  sessions,
		tokens:    tokens,
		publisher: publisher{feed: feed},
		newCode:   credentials.GenerateSessionCode,
	}
}

// OnEnded registers fn to run after a session becomes inactive
func (s *SessionService) OnEnded(fn func(code string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEnded = append(s.onEnded, fn)
}

// Create starts a session under a fresh code and returns the teacher token
// that authorizes managing it
func (s *SessionService) Create(ctx context.Context, teacherName, teacherEmail string) (*models.Session, string, error) {
	teacherName = strings.TrimSpace(teacherName)
	teacherEmail = strings.TrimSpace(teacherEmail)
	if err := validation.ValidateName(teacherName); err != nil {
		return nil, "", err
	}
	if teacherEmail != "" {
		if err := validation.ValidateEmail(teacherEmail); err != nil {
			return nil, "", err
		}
	}

	var session *models.Session
	for attempt := 1; session == nil; attempt++ {
		if attempt > maxCodeAttempts {
			return nil, "", ErrCodeExhausted
		}
		code, err := s.newCode()
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate class code: %w", err)
		}
		session, err = s.sessions.CreateSession(ctx, code, teacherName, teacherEmail)
		if errors.Is(err, repository.ErrDuplicate) {
			logger.Printf("Class code %s already taken, retrying (attempt %d)", code, attempt)
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to create session: %w", err)
		}
	}

	token, err := s.tokens.Issue(session.Code, session.TeacherName)
	if err != nil {
		return nil, "", err
	}

	s.publish(ctx, realtime.Insert, public(session))
	logger.Printf("Session %s created by %s", session.Code, session.TeacherName)
	return session, token, nil
}

// Get returns an active session by the code a student typed
func (s *SessionService) Get(ctx context.Context, code string) (*models.Session, error) {
	session, err := s.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !session.Active {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Lookup returns a session whether or not it is still active
func (s *SessionService) Lookup(ctx context.Context, code string) (*models.Session, error) {
	code = credentials.NormalizeCode(code)
	if !credentials.ValidCode(code) {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessions.GetSession(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	return session, nil
}

// End deactivates a session. Ending an inactive session is a no-op.
func (s *SessionService) End(ctx context.Context, code string) (*models.Session, error) {
	code = credentials.NormalizeCode(code)
	changed, err := s.sessions.DeactivateSession(ctx, code, now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetSession(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to reload session: %w", err)
	}
	if changed {
		s.ended(ctx, session)
	}
	return session, nil
}

// ended publishes the deactivated session and runs the end hooks
func (s *SessionService) ended(ctx context.Context, session *models.Session) {
	s.publish(ctx, realtime.Update, public(session))
	logger.Printf("Session %s ended", session.Code)

	s.mu.RLock()
	hooks := append([]func(string){}, s.onEnded...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(session.Code)
	}
}

// public strips fields students should not see from a session row
func public(session *models.Session) models.Session {
	out := *session
	out.TeacherEmail = ""
	return out
}
