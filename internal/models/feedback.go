package models

import "time"

// FeedbackValue is one of the emoji tokens a student can send
type FeedbackValue string

const (
	FeedbackThumbsUp   FeedbackValue = "👍"
	FeedbackThumbsDown FeedbackValue = "👎"
	FeedbackHappy      FeedbackValue = "😊"
	FeedbackConfused   FeedbackValue = "😕"
	FeedbackThinking   FeedbackValue = "🤔"
)

// FeedbackValues lists the accepted feedback tokens in display order
var FeedbackValues = []FeedbackValue{
	FeedbackThumbsUp,
	FeedbackThumbsDown,
	FeedbackHappy,
	FeedbackConfused,
	FeedbackThinking,
}

// Valid reports whether v is an accepted token
func (v FeedbackValue) Valid() bool {
	for _, known := range FeedbackValues {
		if v == known {
			return true
		}
	}
	return false
}

// Feedback is a single append-only reaction from a student
type Feedback struct {
	ID          string        `json:"id"`
	SessionCode string        `json:"session_code"`
	StudentName string        `json:"student_name"`
	Value       FeedbackValue `json:"value"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (f Feedback) TableName() Table { return TableFeedback }

func (f Feedback) FilterKey() string { return f.SessionCode }
