package handlers

import "net/http"

// Handlers groups the HTTP handlers of the API
type Handlers struct {
	Middleware    *Middleware
	Sessions      *SessionHandler
	Presentations *PresentationHandler
	Stream        *StreamHandler
}

// Register mounts every route on mux
func (h *Handlers) Register(mux *http.ServeMux) {
	m := h.Middleware
	s := h.Sessions
	p := h.Presentations

	mux.HandleFunc("GET /healthz", h.Stream.Health)
	mux.HandleFunc("GET /api/stream/{table}/{filter}", h.Stream.Stream)
	mux.HandleFunc("GET /api/client-config", h.Stream.ClientConfig)

	// Sessions
	mux.HandleFunc("POST /api/sessions", m.RateLimit(s.CreateSession))
	mux.HandleFunc("GET /api/sessions/{code}", s.GetSession)
	mux.HandleFunc("POST /api/sessions/{code}/end", m.RequireTeacher(s.EndSession))
	mux.HandleFunc("GET /api/sessions/{code}/report", m.RequireTeacher(s.Report))

	// Participants
	mux.HandleFunc("POST /api/sessions/{code}/participants", m.RateLimit(s.Join))
	mux.HandleFunc("GET /api/sessions/{code}/participants", m.RequireTeacher(s.ListParticipants))
	mux.HandleFunc("GET /api/participants/{id}", s.GetParticipant)
	mux.HandleFunc("POST /api/participants/{id}/approve", m.RequireTeacher(s.ApproveParticipant))
	mux.HandleFunc("POST /api/participants/{id}/reject", m.RequireTeacher(s.RejectParticipant))

	// Feedback and messages
	mux.HandleFunc("POST /api/sessions/{code}/feedback", s.SubmitFeedback)
	mux.HandleFunc("GET /api/sessions/{code}/feedback", m.RequireTeacher(s.ListFeedback))
	mux.HandleFunc("POST /api/sessions/{code}/messages", m.RequireTeacher(s.SendMessage))
	mux.HandleFunc("GET /api/sessions/{code}/messages", s.ListMessages)

	// Presentations
	mux.HandleFunc("POST /api/sessions/{code}/presentations", m.RequireTeacher(p.Start))
	mux.HandleFunc("GET /api/sessions/{code}/presentation", p.GetBySession)
	mux.HandleFunc("GET /api/presentations/{id}", p.Get)
	mux.HandleFunc("POST /api/presentations/{id}/advance", m.RequireTeacher(p.Advance))
	mux.HandleFunc("POST /api/presentations/{id}/end", m.RequireTeacher(p.End))
	mux.HandleFunc("POST /api/presentations/{id}/close", m.RequireTeacher(p.Close))
	mux.HandleFunc("POST /api/presentations/{id}/reorder", m.RequireTeacher(p.Reorder))
	mux.HandleFunc("POST /api/presentations/{id}/background", m.RequireTeacher(p.AddBackground))
	mux.HandleFunc("POST /api/presentations/{id}/cards/{cardID}/simplify", m.RequireTeacher(p.SimplifyCard))
	mux.HandleFunc("POST /api/presentations/{id}/cards/{cardID}/differentiate", m.RequireTeacher(p.DifferentiateCard))
	mux.HandleFunc("POST /api/presentations/{id}/cards/{cardID}/extend", m.RequireTeacher(p.ExtendCard))

	// Pacing and questions
	mux.HandleFunc("POST /api/presentations/{id}/pacing", p.SubmitPacing)
	mux.HandleFunc("GET /api/presentations/{id}/pacing", m.RequireTeacher(p.ListPacing))
	mux.HandleFunc("POST /api/presentations/{id}/questions", p.AskQuestion)
	mux.HandleFunc("GET /api/presentations/{id}/questions", m.RequireTeacher(p.ListQuestions))
	mux.HandleFunc("POST /api/questions/{id}/answer", m.RequireTeacher(p.AnswerQuestion))
}
