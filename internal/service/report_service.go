package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"classpulse/internal/models"
	"classpulse/internal/repository"
)

const reportVersion = "1"

// SessionReport is the exported record of one session
type SessionReport struct {
	Version       string                       `json:"version"`
	ExportedAt    time.Time                    `json:"exported_at"`
	Session       models.Session               `json:"session"`
	Participants  []models.Participant         `json:"participants"`
	Approved      int                          `json:"approved"`
	Rejected      int                          `json:"rejected"`
	Pending       int                          `json:"pending"`
	Feedback      map[models.FeedbackValue]int `json:"feedback"`
	Messages      []models.TeacherMessage      `json:"messages"`
	Presentations []PresentationReport         `json:"presentations"`
}

// PresentationReport summarizes one presentation of a session
type PresentationReport struct {
	ID               string                              `json:"id"`
	LessonID         string                              `json:"lesson_id"`
	Cards            int                                 `json:"cards"`
	CurrentCardIndex int                                 `json:"current_card_index"`
	Active           bool                                `json:"active"`
	CreatedAt        time.Time                           `json:"created_at"`
	EndedAt          *time.Time                          `json:"ended_at,omitempty"`
	Pacing           map[models.TeachingFeedbackType]int `json:"pacing"`
	Questions        []models.TeachingQuestion           `json:"questions"`
	Unanswered       int                                 `json:"unanswered"`
}

// ReportService builds session reports for export and summary mail
type ReportService struct {
	sessions      *SessionService
	participants  ParticipantStore
	feedback      *repository.FeedbackRepository
	messages      *repository.MessageRepository
	presentations PresentationStore
	teaching      *repository.TeachingRepository
}

// NewReportService creates a new report service
func NewReportService(sessions *SessionService, participants ParticipantStore, feedback *repository.FeedbackRepository,
	messages *repository.MessageRepository, presentations PresentationStore, teaching *repository.TeachingRepository) *ReportService {
	return &ReportService{
		sessions:      sessions,
		participants:  participants,
		feedback:      feedback,
		messages:      messages,
		presentations: presentations,
		teaching:      teaching,
	}
}

// Build collects everything recorded for a session, active or not
func (s *ReportService) Build(ctx context.Context, code string) (*SessionReport, error) {
	session, err := s.sessions.Lookup(ctx, code)
	if err != nil {
		return nil, err
	}

	report := &SessionReport{
		Version:    reportVersion,
		ExportedAt: now(),
		Session:    *session,
	}

	if err := s.addParticipants(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to export participants: %w", err)
	}

	feedback, err := s.feedback.ListSessionFeedback(ctx, session.Code, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to export feedback: %w", err)
	}
	report.Feedback = Tally(feedback)

	if report.Messages, err = s.messages.ListMessages(ctx, session.Code); err != nil {
		return nil, fmt.Errorf("failed to export messages: %w", err)
	}

	if err := s.addPresentations(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to export presentations: %w", err)
	}
	return report, nil
}

func (s *ReportService) addParticipants(ctx context.Context, report *SessionReport) error {
	participants, err := s.participants.ListSessionParticipants(ctx, report.Session.Code)
	if err != nil {
		return err
	}
	report.Participants = participants
	for _, p := range participants {
		switch p.Status {
		case models.StatusApproved:
			report.Approved++
		case models.StatusRejected:
			report.Rejected++
		default:
			report.Pending++
		}
	}
	return nil
}

func (s *ReportService) addPresentations(ctx context.Context, report *SessionReport) error {
	presentations, err := s.presentations.ListSessionPresentations(ctx, report.Session.Code)
	if err != nil {
		return err
	}

	for _, p := range presentations {
		pr := PresentationReport{
			ID:               p.ID,
			LessonID:         p.LessonID,
			Cards:            len(p.Cards),
			CurrentCardIndex: p.CurrentCardIndex,
			Active:           p.Active,
			CreatedAt:        p.CreatedAt,
			EndedAt:          p.EndedAt,
			Pacing:           make(map[models.TeachingFeedbackType]int),
		}

		pacing, err := s.teaching.ListTeachingFeedback(ctx, p.ID)
		if err != nil {
			return err
		}
		for _, f := range pacing {
			pr.Pacing[f.FeedbackType]++
		}

		if pr.Questions, err = s.teaching.ListQuestions(ctx, p.ID); err != nil {
			return err
		}
		for _, q := range pr.Questions {
			if !q.Answered {
				pr.Unanswered++
			}
		}
		report.Presentations = append(report.Presentations, pr)
	}
	return nil
}

// Export writes a session report as JSON to outputPath
func (s *ReportService) Export(ctx context.Context, code, outputPath string) error {
	log.Printf("Exporting session %s to %s", code, outputPath)

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer file.Close()

	if err := s.ExportToWriter(ctx, code, file); err != nil {
		return err
	}

	log.Printf("Report exported successfully")
	return nil
}

// ExportToWriter writes a session report as JSON to w
func (s *ReportService) ExportToWriter(ctx context.Context, code string, w io.Writer) error {
	report, err := s.Build(ctx, code)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
