package models

// Table names a store table that emits change events
type Table string

const (
	TableSessions          Table = "sessions"
	TableParticipants      Table = "session_participants"
	TableFeedback          Table = "feedback"
	TablePresentations     Table = "lesson_presentations"
	TableTeachingFeedback  Table = "teaching_feedback"
	TableTeachingQuestions Table = "teaching_questions"
	TableTeacherMessages   Table = "teacher_messages"
)

// Tables lists every table that can be subscribed to
var Tables = []Table{
	TableSessions,
	TableParticipants,
	TableFeedback,
	TablePresentations,
	TableTeachingFeedback,
	TableTeachingQuestions,
	TableTeacherMessages,
}

// Valid reports whether t is a known table
func (t Table) Valid() bool {
	for _, known := range Tables {
		if t == known {
			return true
		}
	}
	return false
}
