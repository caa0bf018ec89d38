package models

import "time"

// TeachingFeedbackType is a student's pacing signal during a presentation
type TeachingFeedbackType string

const (
	TeachingGotIt    TeachingFeedbackType = "got_it"
	TeachingConfused TeachingFeedbackType = "confused"
	TeachingTooFast  TeachingFeedbackType = "too_fast"
	TeachingExample  TeachingFeedbackType = "need_example"
)

// Valid reports whether t is a known feedback type
func (t TeachingFeedbackType) Valid() bool {
	switch t {
	case TeachingGotIt, TeachingConfused, TeachingTooFast, TeachingExample:
		return true
	}
	return false
}

// TeachingFeedback is an append-only pacing signal tied to a presentation
type TeachingFeedback struct {
	ID             string               `json:"id"`
	PresentationID string               `json:"presentation_id"`
	StudentName    string               `json:"student_name"`
	FeedbackType   TeachingFeedbackType `json:"feedback_type"`
	CreatedAt      time.Time            `json:"created_at"`
}

func (f TeachingFeedback) TableName() Table { return TableTeachingFeedback }

func (f TeachingFeedback) FilterKey() string { return f.PresentationID }

// TeachingQuestion is a student question; Answered only ever goes false -> true
type TeachingQuestion struct {
	ID             string     `json:"id"`
	PresentationID string     `json:"presentation_id"`
	StudentName    string     `json:"student_name"`
	Question       string     `json:"question"`
	Answered       bool       `json:"answered"`
	CreatedAt      time.Time  `json:"created_at"`
	AnsweredAt     *time.Time `json:"answered_at,omitempty"`
}

func (q TeachingQuestion) TableName() Table { return TableTeachingQuestions }

func (q TeachingQuestion) FilterKey() string { return q.PresentationID }
