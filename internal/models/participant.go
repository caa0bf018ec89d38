package models

import "time"

// ParticipantStatus is the approval state of a join request
type ParticipantStatus string

const (
	StatusPending  ParticipantStatus = "pending"
	StatusApproved ParticipantStatus = "approved"
	StatusRejected ParticipantStatus = "rejected"
)

// Valid reports whether s is a known status
func (s ParticipantStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s
func (s ParticipantStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether a participant may move from s to next.
// Only pending may move, and only to a terminal status.
func (s ParticipantStatus) CanTransition(next ParticipantStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// Participant is a student's join request against a session
type Participant struct {
	ID          string            `json:"id"`
	SessionCode string            `json:"session_code"`
	StudentName string            `json:"student_name"`
	Status      ParticipantStatus `json:"status"`
	JoinToken   string            `json:"-"`
	JoinedAt    time.Time         `json:"joined_at"`
	DecidedAt   *time.Time        `json:"decided_at,omitempty"`
}

func (p Participant) TableName() Table { return TableParticipants }

func (p Participant) FilterKey() string { return p.SessionCode }
