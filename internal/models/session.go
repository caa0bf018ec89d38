package models

import "time"

// Session is a teacher's live class, addressed by its 6-character code
type Session struct {
	Code         string     `json:"code"`
	TeacherName  string     `json:"teacher_name"`
	TeacherEmail string     `json:"teacher_email,omitempty"`
	Active       bool       `json:"active"`
	CreatedAt    time.Time  `json:"created_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

func (s Session) TableName() Table { return TableSessions }

func (s Session) FilterKey() string { return s.Code }

// TeacherMessage is a broadcast from the teacher to everyone in a session
type TeacherMessage struct {
	ID          string    `json:"id"`
	SessionCode string    `json:"session_code"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

func (m TeacherMessage) TableName() Table { return TableTeacherMessages }

func (m TeacherMessage) FilterKey() string { return m.SessionCode }
