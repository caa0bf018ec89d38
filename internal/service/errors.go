package service

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound      = errors.New("Invalid class code or expired session")
	ErrParticipantNotFound  = errors.New("participant not found")
	ErrPresentationNotFound = errors.New("presentation not found")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrCardNotFound         = errors.New("card not found")

	ErrStatusFinal        = errors.New("participant has already been decided")
	ErrInvalidStatus      = errors.New("invalid participant status")
	ErrInvalidFeedback    = errors.New("invalid feedback value")
	ErrPresentationEnded  = errors.New("presentation has ended")
	ErrCardOutOfRange     = errors.New("card index out of range")
	ErrNoCards            = errors.New("presentation needs at least one card")
	ErrNavigationStarted  = errors.New("cards can only be changed before the class moves past the first card")
	ErrInvalidOrder       = errors.New("order must list every card exactly once")
	ErrConcurrentEdit     = errors.New("presentation changed while editing, try again")
	ErrJoinTokenReused    = errors.New("join token belongs to another session")
	ErrCodeExhausted      = errors.New("could not allocate a unique class code")
	ErrPartialEnd         = errors.New("presentation ended but session is still active")
	ErrContentUnavailable = errors.New("content generation is not available")
)

// PartialEndError reports the split state left when ending a presentation
// succeeded but ending its session did not. Retrying End or the periodic
// reconcile completes it.
type PartialEndError struct {
	PresentationID     string `json:"presentation_id"`
	SessionCode        string `json:"session_code"`
	PresentationActive bool   `json:"presentation_active"`
	SessionActive      bool   `json:"session_active"`
	Err                error  `json:"-"`
}

func (e *PartialEndError) Error() string {
	return fmt.Sprintf("presentation %s ended but session %s is still active: %v", e.PresentationID, e.SessionCode, e.Err)
}

func (e *PartialEndError) Is(target error) bool {
	return target == ErrPartialEnd
}

func (e *PartialEndError) Unwrap() error {
	return e.Err
}
