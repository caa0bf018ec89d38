package handlers

import (
	"net/http"

	"classpulse/internal/models"
	"classpulse/internal/service"
)

// PresentationHandler serves lesson presentations and the pacing signals and
// questions students send during them
type PresentationHandler struct {
	presentations *service.PresentationService
	teaching      *service.TeachingService
}

// NewPresentationHandler creates a new presentation handler
func NewPresentationHandler(presentations *service.PresentationService, teaching *service.TeachingService) *PresentationHandler {
	return &PresentationHandler{presentations: presentations, teaching: teaching}
}

type startRequest struct {
	LessonID string              `json:"lesson_id" validate:"max=64"`
	Cards    []models.LessonCard `json:"cards" validate:"required,min=1"`
}

// Start begins presenting a lesson in the teacher's session
func (h *PresentationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding presentation", err)
		return
	}

	p, err := h.presentations.Start(r.Context(), r.PathValue("code"), req.LessonID, req.Cards)
	if err != nil {
		respondWithServiceError(w, "Error starting presentation", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, p)
}

// Get returns a presentation with its cards
func (h *PresentationHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error loading presentation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// GetBySession returns the presentation running in a session
func (h *PresentationHandler) GetBySession(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.GetBySession(r.Context(), r.PathValue("code"))
	if err != nil {
		respondWithServiceError(w, "Error loading presentation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

type advanceRequest struct {
	Index *int `json:"index" validate:"required"`
}

// Advance moves the class to another card
func (h *PresentationHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding advance", err)
		return
	}

	p, err := h.presentations.Advance(r.Context(), sessionOf(r), r.PathValue("id"), *req.Index)
	if err != nil {
		respondWithServiceError(w, "Error advancing presentation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p.State())
}

// End stops the presentation and then its session. A half-finished end is
// answered with the split state so the teacher can retry.
func (h *PresentationHandler) End(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.End(r.Context(), sessionOf(r), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error ending presentation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p.State())
}

// Close ends the presentation and its session in one transaction
func (h *PresentationHandler) Close(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.Close(r.Context(), sessionOf(r), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error closing presentation", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p.State())
}

type reorderRequest struct {
	Order []string `json:"order" validate:"required,min=1"`
}

// Reorder rearranges the cards before the class moves on
func (h *PresentationHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding reorder", err)
		return
	}

	p, err := h.presentations.Reorder(r.Context(), sessionOf(r), r.PathValue("id"), req.Order)
	if err != nil {
		respondWithServiceError(w, "Error reordering cards", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

type backgroundRequest struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Objectives []string `json:"objectives"`
}

// AddBackground puts a generated topic background card first
func (h *PresentationHandler) AddBackground(w http.ResponseWriter, r *http.Request) {
	var req backgroundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding background request", err)
		return
	}

	p, err := h.presentations.AddBackgroundCard(r.Context(), sessionOf(r), r.PathValue("id"), req.Title, req.Objectives)
	if err != nil {
		respondWithServiceError(w, "Error adding background card", err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

// SimplifyCard adds a student-friendly version of a card
func (h *PresentationHandler) SimplifyCard(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.SimplifyCard(r.Context(), sessionOf(r), r.PathValue("id"), r.PathValue("cardID"))
	h.respondWithCards(w, "Error simplifying card", p, err)
}

// DifferentiateCard adds a version of a card for ?level= (default support)
func (h *PresentationHandler) DifferentiateCard(w http.ResponseWriter, r *http.Request) {
	level := r.URL.Query().Get("level")
	p, err := h.presentations.DifferentiateCard(r.Context(), sessionOf(r), r.PathValue("id"), r.PathValue("cardID"), level)
	h.respondWithCards(w, "Error differentiating card", p, err)
}

// ExtendCard adds an extension activity to a card
func (h *PresentationHandler) ExtendCard(w http.ResponseWriter, r *http.Request) {
	p, err := h.presentations.ExtendCard(r.Context(), sessionOf(r), r.PathValue("id"), r.PathValue("cardID"))
	h.respondWithCards(w, "Error extending card", p, err)
}

func (h *PresentationHandler) respondWithCards(w http.ResponseWriter, logMsg string, p *models.LessonPresentation, err error) {
	if err != nil {
		respondWithServiceError(w, logMsg, err)
		return
	}
	respondWithJSON(w, http.StatusOK, p)
}

type pacingRequest struct {
	StudentName  string `json:"student_name" validate:"required,max=60"`
	FeedbackType string `json:"feedback_type" validate:"required"`
}

// SubmitPacing records a student's pacing signal
func (h *PresentationHandler) SubmitPacing(w http.ResponseWriter, r *http.Request) {
	var req pacingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding pacing feedback", err)
		return
	}

	f, err := h.teaching.SubmitFeedback(r.Context(), r.PathValue("id"), req.StudentName, models.TeachingFeedbackType(req.FeedbackType))
	if err != nil {
		respondWithServiceError(w, "Error submitting pacing feedback", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, f)
}

// ListPacing returns pacing signals newest first
func (h *PresentationHandler) ListPacing(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedPresentation(w, r); !ok {
		return
	}
	list, err := h.teaching.ListFeedback(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error listing pacing feedback", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

type questionRequest struct {
	StudentName string `json:"student_name" validate:"required,max=60"`
	Question    string `json:"question" validate:"required,max=500"`
}

// AskQuestion stores a student question
func (h *PresentationHandler) AskQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithServiceError(w, "Error decoding question", err)
		return
	}

	q, err := h.teaching.AskQuestion(r.Context(), r.PathValue("id"), req.StudentName, req.Question)
	if err != nil {
		respondWithServiceError(w, "Error asking question", err)
		return
	}
	respondWithJSON(w, http.StatusCreated, q)
}

// ListQuestions returns questions newest first
func (h *PresentationHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.ownedPresentation(w, r); !ok {
		return
	}
	list, err := h.teaching.ListQuestions(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error listing questions", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// AnswerQuestion marks a question answered
func (h *PresentationHandler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.teaching.AnswerQuestion(r.Context(), sessionOf(r), r.PathValue("id"))
	if err != nil {
		respondWithServiceError(w, "Error answering question", err)
		return
	}
	respondWithJSON(w, http.StatusOK, q)
}

// ownedPresentation checks the presentation in the path belongs to the
// teacher's session
func (h *PresentationHandler) ownedPresentation(w http.ResponseWriter, r *http.Request) (*models.LessonPresentation, bool) {
	p, err := h.presentations.Get(r.Context(), r.PathValue("id"))
	if err == nil && p.SessionCode != sessionOf(r) {
		err = service.ErrPresentationNotFound
	}
	if err != nil {
		respondWithServiceError(w, "Error loading presentation", err)
		return nil, false
	}
	return p, true
}

// sessionOf returns the session the teacher token grants
func sessionOf(r *http.Request) string {
	if teacher := GetTeacherFromContext(r.Context()); teacher != nil {
		return teacher.SessionCode
	}
	return ""
}
