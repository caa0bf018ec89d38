package service

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"classpulse/internal/logger"
	"classpulse/internal/models"
)

// sesAPI is the part of the SES client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends session summaries via Amazon SES
type EmailService struct {
	client     sesAPI
	fromEmail  string
	fromName   string
	appBaseURL string
	enabled    bool
	debug      bool
}

// NewEmailService creates a new email service. Without fromEmail it is
// disabled and every send is skipped.
func NewEmailService(awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{enabled: false, debug: debug}, nil
	}

	if debug {
		log.Printf("[DEBUG] Initializing email service with AWS SES (region %s, from %s)", awsRegion, fromEmail)
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Email service enabled: from=%s, region=%s", fromEmail, awsRegion)
	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, appBaseURL, debug), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, appBaseURL string, debug bool) *EmailService {
	return &EmailService{
		client:     client,
		fromEmail:  fromEmail,
		fromName:   fromName,
		appBaseURL: appBaseURL,
		enabled:    true,
		debug:      debug,
	}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.enabled
}

// SendSessionSummary mails the teacher a summary of an ended session. Sessions
// created without an email address are skipped.
func (s *EmailService) SendSessionSummary(ctx context.Context, report *SessionReport) error {
	to := report.Session.TeacherEmail
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): summary for %s", report.Session.Code)
		return nil
	}
	if to == "" {
		if s.debug {
			log.Printf("[DEBUG] Session %s has no teacher email, no summary sent", report.Session.Code)
		}
		return nil
	}

	subject := fmt.Sprintf("Class %s summary", report.Session.Code)
	textBody := summaryText(report, s.appBaseURL)
	htmlBody := "<pre>" + html.EscapeString(textBody) + "</pre>"
	return s.sendEmail(ctx, to, subject, htmlBody, textBody)
}

func summaryText(report *SessionReport, appBaseURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", report.Session.TeacherName)
	fmt.Fprintf(&b, "Here is how class %s went.\n\n", report.Session.Code)
	fmt.Fprintf(&b, "Students: %d approved, %d rejected, %d still waiting\n", report.Approved, report.Rejected, report.Pending)

	b.WriteString("\nReactions:\n")
	for _, v := range models.FeedbackValues {
		fmt.Fprintf(&b, "  %s  %d\n", v, report.Feedback[v])
	}

	for i, p := range report.Presentations {
		fmt.Fprintf(&b, "\nPresentation %d: reached card %d of %d\n", i+1, p.CurrentCardIndex+1, p.Cards)
		kinds := make([]string, 0, len(p.Pacing))
		for t := range p.Pacing {
			kinds = append(kinds, string(t))
		}
		sort.Strings(kinds)
		for _, t := range kinds {
			fmt.Fprintf(&b, "  %s: %d\n", t, p.Pacing[models.TeachingFeedbackType(t)])
		}
		if p.Unanswered > 0 {
			fmt.Fprintf(&b, "  %d questions were not answered:\n", p.Unanswered)
			for _, q := range p.Questions {
				if !q.Answered {
					fmt.Fprintf(&b, "  - %s: %s\n", q.StudentName, q.Question)
				}
			}
		}
	}

	if appBaseURL != "" {
		fmt.Fprintf(&b, "\nFull report: %s/api/sessions/%s/report\n", appBaseURL, report.Session.Code)
	}
	b.WriteString("\n---\nThis is an automated email from ClassPulse. Please do not reply.\n")
	return b.String()
}

func (s *EmailService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	if s.debug && result.MessageId != nil {
		log.Printf("[DEBUG] Message ID: %s", *result.MessageId)
	}
	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}

// SummaryOnEnd returns a session end hook that mails the teacher a summary in
// the background
func SummaryOnEnd(reports *ReportService, email *EmailService, timeout time.Duration) func(code string) {
	return func(code string) {
		if !email.IsEnabled() {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			report, err := reports.Build(ctx, code)
			if err != nil {
				logger.Error("failed to build session summary", err, map[string]interface{}{"session_code": code})
				return
			}
			if err := email.SendSessionSummary(ctx, report); err != nil {
				logger.Error("failed to send session summary", err, map[string]interface{}{"session_code": code})
			}
		}()
	}
}
