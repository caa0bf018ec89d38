package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classpulse/internal/credentials"
	"classpulse/internal/database"
	"classpulse/internal/models"
	"classpulse/internal/realtime"
	"classpulse/internal/repository"
	"classpulse/internal/security"
	"classpulse/internal/service"
)

type apiServer struct {
	*httptest.Server
	hub *realtime.Hub
}

func newAPIServer(t *testing.T, joinLimit int) *apiServer {
	t.Helper()

	db, err := database.Initialize(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.RunMigrations(""))

	hub := realtime.NewHub(realtime.DefaultQueueSize)
	t.Cleanup(func() { hub.Close() })

	tokens := credentials.NewTokenIssuer("api-test", time.Hour)
	sessionRepo := repository.NewSessionRepository(db)
	participantRepo := repository.NewParticipantRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	presentationRepo := repository.NewPresentationRepository(db)
	teachingRepo := repository.NewTeachingRepository(db)

	sessions := service.NewSessionService(sessionRepo, tokens, hub)
	presentations := service.NewPresentationService(presentationRepo, sessions, db, nil, hub)

	limiter := security.NewRateLimiter(joinLimit, time.Hour)
	t.Cleanup(limiter.Stop)

	h := &Handlers{
		Middleware: NewMiddleware(tokens, limiter),
		Sessions: NewSessionHandler(sessions,
			service.NewParticipantService(participantRepo, sessions, hub),
			service.NewFeedbackService(feedbackRepo, sessions, hub),
			service.NewMessageService(messageRepo, sessions, hub),
			service.NewReportService(sessions, participantRepo, feedbackRepo, messageRepo, presentationRepo, teachingRepo)),
		Presentations: NewPresentationHandler(presentations, service.NewTeachingService(teachingRepo, presentations, hub)),
		Stream:        NewStreamHandler(hub, db),
	}
	mux := http.NewServeMux()
	h.Register(mux)

	srv := httptest.NewServer(Logging(mux))
	t.Cleanup(srv.Close)
	return &apiServer{Server: srv, hub: hub}
}

func (s *apiServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *apiServer) createSession(t *testing.T) (models.Session, string) {
	t.Helper()
	var created createSessionResponse
	code := s.do(t, "POST", "/api/sessions", "", map[string]string{"teacher_name": "Ms Frizzle", "teacher_email": "frizzle@example.com"}, &created)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, created.Token)
	return created.Session, created.Token
}

func TestSessionLifecycleAPI(t *testing.T) {
	s := newAPIServer(t, 100)
	session, token := s.createSession(t)

	var got models.Session
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/api/sessions/"+strings.ToLower(session.Code), "", nil, &got))
	assert.Equal(t, session.Code, got.Code)
	assert.Empty(t, got.TeacherEmail)

	var notFound errorBody
	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/sessions/ZZZZZZ", "", nil, &notFound))
	assert.Equal(t, "Invalid class code or expired session", notFound.Error)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, "POST", "/api/sessions/"+session.Code+"/end", "", nil, nil))
	assert.Equal(t, http.StatusUnauthorized, s.do(t, "POST", "/api/sessions/"+session.Code+"/end", "not-a-token", nil, nil))

	other, otherToken := s.createSession(t)
	assert.NotEqual(t, other.Code, session.Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, "POST", "/api/sessions/"+session.Code+"/end", otherToken, nil, nil))

	assert.Equal(t, http.StatusOK, s.do(t, "POST", "/api/sessions/"+session.Code+"/end", token, nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/sessions/"+session.Code, "", nil, nil))
}

func TestJoinAndApproveAPI(t *testing.T) {
	s := newAPIServer(t, 100)
	session, token := s.createSession(t)
	_, otherToken := s.createSession(t)

	var ava models.Participant
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/sessions/"+session.Code+"/participants", "",
		map[string]string{"student_name": "Ava"}, &ava))
	assert.Equal(t, models.StatusPending, ava.Status)

	assert.Equal(t, http.StatusNotFound, s.do(t, "POST", "/api/participants/"+ava.ID+"/approve", otherToken, nil, nil))

	var approved models.Participant
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/participants/"+ava.ID+"/approve", token, nil, &approved))
	assert.Equal(t, models.StatusApproved, approved.Status)

	assert.Equal(t, http.StatusOK, s.do(t, "POST", "/api/participants/"+ava.ID+"/approve", token, nil, nil))
	assert.Equal(t, http.StatusConflict, s.do(t, "POST", "/api/participants/"+ava.ID+"/reject", token, nil, nil))

	var polled models.Participant
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/api/participants/"+ava.ID, "", nil, &polled))
	assert.Equal(t, models.StatusApproved, polled.Status)

	var invalid errorBody
	assert.Equal(t, http.StatusBadRequest, s.do(t, "POST", "/api/sessions/"+session.Code+"/participants", "",
		map[string]string{"student_name": ""}, &invalid))
	assert.Contains(t, invalid.Fields, "student_name")
}

func TestFeedbackAPI(t *testing.T) {
	s := newAPIServer(t, 100)
	session, token := s.createSession(t)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/sessions/"+session.Code+"/feedback", "",
			map[string]string{"student_name": "Ava", "value": string(models.FeedbackThumbsUp)}, nil))
	}
	assert.Equal(t, http.StatusBadRequest, s.do(t, "POST", "/api/sessions/"+session.Code+"/feedback", "",
		map[string]string{"student_name": "Ava", "value": "nope"}, nil))

	var list feedbackList
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/api/sessions/"+session.Code+"/feedback", token, nil, &list))
	assert.Len(t, list.Feedback, 2)
	assert.Equal(t, 2, list.Tally[models.FeedbackThumbsUp])
}

func TestPresentationAPI(t *testing.T) {
	s := newAPIServer(t, 100)
	session, token := s.createSession(t)

	cards := []models.LessonCard{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	var p models.LessonPresentation
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/sessions/"+session.Code+"/presentations", token,
		map[string]interface{}{"lesson_id": "l1", "cards": cards}, &p))

	var state models.PresentationState
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/presentations/"+p.ID+"/advance", token, map[string]int{"index": 1}, &state))
	assert.Equal(t, 1, state.CurrentCardIndex)

	assert.Equal(t, http.StatusBadRequest, s.do(t, "POST", "/api/presentations/"+p.ID+"/advance", token, map[string]int{"index": 5}, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, "POST", "/api/presentations/"+p.ID+"/advance", token, map[string]string{}, nil))
	assert.Equal(t, http.StatusConflict, s.do(t, "POST", "/api/presentations/"+p.ID+"/reorder", token,
		map[string][]string{"order": {"b", "a"}}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, "POST", "/api/presentations/"+p.ID+"/cards/a/simplify", token, nil, nil))

	var q models.TeachingQuestion
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/presentations/"+p.ID+"/questions", "",
		map[string]string{"student_name": "Ava", "question": "Why is the sky blue?"}, &q))
	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/questions/"+q.ID+"/answer", token, nil, &q))
	assert.True(t, q.Answered)

	for _, req := range []struct{ method, path, token string }{
		{"GET", "/api/presentations/not-a-uuid", ""},
		{"GET", "/api/presentations/not-a-uuid/questions", token},
		{"POST", "/api/presentations/not-a-uuid/advance", token},
		{"POST", "/api/questions/not-a-uuid/answer", token},
		{"GET", "/api/participants/not-a-uuid", ""},
	} {
		var body interface{}
		if req.method == "POST" {
			body = map[string]interface{}{"index": 0}
		}
		assert.Equal(t, http.StatusNotFound, s.do(t, req.method, req.path, req.token, body, nil), req.path)
	}

	var current models.LessonPresentation
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/api/sessions/"+session.Code+"/presentation", "", nil, &current))
	assert.Equal(t, 1, current.CurrentCardIndex)

	require.Equal(t, http.StatusOK, s.do(t, "POST", "/api/presentations/"+p.ID+"/close", token, nil, &state))
	assert.False(t, state.Active)
	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/sessions/"+session.Code, "", nil, nil))
}

func TestJoinIsRateLimited(t *testing.T) {
	s := newAPIServer(t, 1)
	s.createSession(t)

	var body errorBody
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, "POST", "/api/sessions", "",
		map[string]string{"teacher_name": "Mr Keating"}, &body))
	assert.Equal(t, ErrTooManyRequests, body.Error)
}

func TestStreamDeliversChanges(t *testing.T) {
	s := newAPIServer(t, 100)
	session, _ := s.createSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", s.URL+"/api/stream/feedback/"+strings.ToLower(session.Code)+"?event=INSERT", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": subscribed\n", line)

	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/sessions/"+session.Code+"/feedback", "",
		map[string]string{"student_name": "Ava", "value": string(models.FeedbackHappy)}, nil))

	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if rest, ok := strings.CutPrefix(line, "data: "); ok {
			data = rest
		}
	}

	var ev struct {
		Table  models.Table    `json:"table"`
		Kind   string          `json:"kind"`
		Record models.Feedback `json:"record"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, models.TableFeedback, ev.Table)
	assert.Equal(t, "INSERT", ev.Kind)
	assert.Equal(t, models.FeedbackHappy, ev.Record.Value)
}

func TestStreamRejects(t *testing.T) {
	s := newAPIServer(t, 100)

	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/stream/users/ABCDEF", "", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do(t, "GET", "/api/stream/feedback/ABCDEF?event=DELETE", "", nil, nil))

	require.NoError(t, s.hub.Close())
	var body errorBody
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, "GET", "/api/stream/feedback/ABCDEF", "", nil, &body))
	assert.Equal(t, ErrFeedUnavailable, body.Error)
}

func TestHealth(t *testing.T) {
	s := newAPIServer(t, 100)
	s.createSession(t)

	var health healthResponse
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/healthz", "", nil, &health))
	assert.Equal(t, "ok", health.Status)
	require.NotNil(t, health.Feed)
	assert.Equal(t, uint64(1), health.Feed.Published)
}

func TestClientConfig(t *testing.T) {
	s := newAPIServer(t, 100)

	var got clientTimings
	require.Equal(t, http.StatusOK, s.do(t, "GET", "/api/client-config", "", nil, &got))
	assert.Equal(t, int64(5000), got.PollIntervalMS)
	assert.Equal(t, int64(1500), got.DisplayDelayMS)
	assert.Equal(t, int64(600000), got.ApprovalMaxWaitMS)
}
