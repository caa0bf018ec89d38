package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"classpulse/internal/logger"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/validation"
)

// ParticipantService runs the join and approval workflow
type ParticipantService struct {
	participants ParticipantStore
	sessions     *SessionService
	publisher
}

// NewParticipantService creates a new participant service
func NewParticipantService(participants ParticipantStore, sessions *SessionService, feed realtime.Feed) *ParticipantService {
	return &ParticipantService{
		participants: participants,
		sessions:     sessions,
		publisher:    publisher{feed: feed},
	}
}

// Join adds a pending participant to an active session. When joinToken is set
// a repeated join with the same token returns the participant created first.
func (s *ParticipantService) Join(ctx context.Context, code, studentName, joinToken string) (*models.Participant, error) {
	session, err := s.sessions.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	studentName = strings.TrimSpace(studentName)
	if err := validation.ValidateName(studentName); err != nil {
		return nil, err
	}
	joinToken = strings.TrimSpace(joinToken)

	if joinToken != "" {
		if existing, err := s.byJoinToken(ctx, session.Code, joinToken); err == nil || !errors.Is(err, repository.ErrNotFound) {
			return existing, err
		}
	}

	p, err := s.participants.CreateParticipant(ctx, session.Code, studentName, joinToken)
	if errors.Is(err, repository.ErrDuplicate) && joinToken != "" {
		// Lost a race with a concurrent join using the same token
		return s.byJoinToken(ctx, session.Code, joinToken)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join session: %w", err)
	}

	s.publish(ctx, realtime.Insert, *p)
	logger.Printf("%s asked to join session %s", p.StudentName, p.SessionCode)
	return p, nil
}

func (s *ParticipantService) byJoinToken(ctx context.Context, code, token string) (*models.Participant, error) {
	p, err := s.participants.GetParticipantByJoinToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.SessionCode != code {
		return nil, ErrJoinTokenReused
	}
	return p, nil
}

// Approve admits a pending participant of the teacher's session
func (s *ParticipantService) Approve(ctx context.Context, sessionCode, id string) (*models.Participant, error) {
	return s.Decide(ctx, sessionCode, id, models.StatusApproved)
}

// Reject turns away a pending participant of the teacher's session
func (s *ParticipantService) Reject(ctx context.Context, sessionCode, id string) (*models.Participant, error) {
	return s.Decide(ctx, sessionCode, id, models.StatusRejected)
}

// Decide moves a pending participant to a terminal status. Repeating the same
// decision is a no-op; contradicting an earlier one fails with ErrStatusFinal.
func (s *ParticipantService) Decide(ctx context.Context, sessionCode, id string, status models.ParticipantStatus) (*models.Participant, error) {
	if !models.StatusPending.CanTransition(status) {
		return nil, ErrInvalidStatus
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.SessionCode != sessionCode {
		return nil, ErrParticipantNotFound
	}

	p, err := s.participants.DecideParticipant(ctx, id, status, now())
	switch {
	case errors.Is(err, repository.ErrConflict):
		if p.Status == status {
			return p, nil
		}
		return p, ErrStatusFinal
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrParticipantNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to update participant: %w", err)
	}

	s.publish(ctx, realtime.Update, *p)
	logger.Printf("Participant %s %s in session %s", p.StudentName, p.Status, p.SessionCode)
	return p, nil
}

// Get returns a participant; students poll it while waiting for approval
func (s *ParticipantService) Get(ctx context.Context, id string) (*models.Participant, error) {
	if !validID(id) {
		return nil, ErrParticipantNotFound
	}
	p, err := s.participants.GetParticipant(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load participant: %w", err)
	}
	return p, nil
}

// List returns the participants of a session in join order
func (s *ParticipantService) List(ctx context.Context, sessionCode string) ([]models.Participant, error) {
	return s.participants.ListSessionParticipants(ctx, sessionCode)
}
