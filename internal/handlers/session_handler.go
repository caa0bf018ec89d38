package handlers

import (
	"net/http"
	"strconv"

	"classpulse/internal/models"
	"classpulse/internal/service"
)

// SessionHandler serves sessions and everything students post into them
type SessionHandler struct {
	sessions     *service.SessionService
	participants *service.ParticipantService
	feedback     *service.FeedbackService
	messages     *service.MessageService
	reports      *service.ReportService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService, participants *service.ParticipantService, feedback *service.FeedbackService,
	messages *service.MessageService, reports *service.ReportService) *SessionHandler {
	return &SessionHandler{
		sessions:     sessions,
		participants: participants,
		feedback:     feedback,
		messages:     messages,
		reports:      reports,
	}
}

type createSessionRequest struct {
	TeacherName  string `json:"teacher_name" validate:"required,max=60"`
	TeacherEmail string `json:"teacher_email" validate:"omitempty,email"`
}

type createSessionResponse struct {
	Session models.Session `json:"session"`
	Token   string         `json:"token"`
}

// CreateSession starts a session and hands the teacher its token
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding session request", err)
		return
	}

	session, token, err := h.sessions.Create(r.Context(), req.TeacherName, req.TeacherEmail)
	if err != nil {
		respondWithServiceError(w, "Error creating session", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, createSessionResponse{Session: *session, Token: token})
}

// GetSession resolves a typed class code. The teacher email is not exposed.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), r.PathValue("code"))
	if err != nil {
		respondWithServiceError(w, "Error loading session", err)
		return
	}
	session.TeacherEmail = ""
	respondWithJSON(w, http.StatusOK, session)
}

// EndSession deactivates the teacher's session
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.End(r.Context(), r.PathValue("code"))
	if err != nil {
		respondWithServiceError(w, "Error ending session", err)
		return
	}
	respondWithJSON(w, http.StatusOK, session)
}

// Report returns the session report as JSON
func (h *SessionHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Build(r.Context(), r.PathValue("code"))
	if err != nil {
		respondWithServiceError(w, "Error building report", err)
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}

type joinRequest struct {
	StudentName string `json:"student_name" validate:"required,max=60"`
	JoinToken   string `json:"join_token" validate:"omitempty,max=64"`
}

// Join records a student's request to enter a session
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding join request", err)
		return
	}

	p, err := h.participants.Join(r.Context(), r.PathValue("code"), req.StudentName, req.JoinToken)
	if err != nil {
		respondWithServiceError(w, "Error joining session", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

// GetParticipant is polled by a student waiting for approval
func (h *SessionHandler) GetParticipant(w http.ResponseWriter, r *http.Request) {
	p, err := h.participants.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error loading participant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// ListParticipants returns the session's join requests
func (h *SessionHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	list, err := h.participants.List(r.Context(), GetTeacherFromContext(r.Context()).SessionCode)
	if err != nil {
		respondWithServiceError(w, "Error listing participants", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// ApproveParticipant admits a student
func (h *SessionHandler) ApproveParticipant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.StatusApproved)
}

// RejectParticipant turns a student away
func (h *SessionHandler) RejectParticipant(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.StatusRejected)
}

func (h *SessionHandler) decide(w http.ResponseWriter, r *http.Request, status models.ParticipantStatus) {
	teacher := GetTeacherFromContext(r.Context())
	p, err := h.participants.Decide(r.Context(), teacher.SessionCode, r.PathValue("id"), status)
	if err != nil {
		respondWithServiceError(w, "Error deciding participant", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

type feedbackRequest struct {
	StudentName string `json:"student_name" validate:"required,max=60"`
	Value       string `json:"value" validate:"required"`
}

// SubmitFeedback appends a reaction
func (h *SessionHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding feedback", err)
		return
	}

	f, err := h.feedback.Submit(r.Context(), r.PathValue("code"), req.StudentName, models.FeedbackValue(req.Value))
	if err != nil {
		respondWithServiceError(w, "Error submitting feedback", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, f)
}

type feedbackList struct {
	Feedback []models.Feedback            `json:"feedback"`
	Tally    map[models.FeedbackValue]int `json:"tally"`
}

// ListFeedback returns reactions newest first with a tally. ?limit=n
// bounds the list; the tally covers what is returned.
func (h *SessionHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := h.feedback.List(r.Context(), r.PathValue("code"), limit)
	if err != nil {
		respondWithServiceError(w, "Error listing feedback", err)
		return
	}
	respondWithJSON(w, http.StatusOK, feedbackList{Feedback: list, Tally: service.Tally(list)})
}

type messageRequest struct {
	Message string `json:"message" validate:"required,max=1000"`
}

// SendMessage posts a teacher message to the class
func (h *SessionHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding message", err)
		return
	}

	m, err := h.messages.Send(r.Context(), r.PathValue("code"), req.Message)
	if err != nil {
		respondWithServiceError(w, "Error sending message", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, m)
}

// ListMessages returns the teacher's messages newest first
func (h *SessionHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	list, err := h.messages.List(r.Context(), r.PathValue("code"))
	if err != nil {
		respondWithServiceError(w, "Error listing messages", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}
