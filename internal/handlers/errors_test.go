package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"classpulse/internal/service"
	"classpulse/internal/validation"
)

func TestRespondWithErrorWritesStatusAndBody(t *testing.T) {
	recorder := httptest.NewRecorder()

	respondWithError(recorder, 418, "Teapot", "", nil)

	if recorder.Code != 418 {
		t.Fatalf("expected status 418, got %d", recorder.Code)
	}

	var body errorBody
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body, got %q", recorder.Body.String())
	}
	if body.Error != "Teapot" {
		t.Fatalf("expected error 'Teapot', got %q", body.Error)
	}
}

func TestRespondWithErrorLogsMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Default()
	originalOutput := logger.Writer()
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	recorder := httptest.NewRecorder()
	err := errors.New("boom")

	respondWithError(recorder, 500, "Internal server error", "", err)

	logOutput := buf.String()
	if !strings.Contains(logOutput, "Internal server error") {
		t.Fatalf("expected log to include user message, got %q", logOutput)
	}
	if !strings.Contains(logOutput, "boom") {
		t.Fatalf("expected log to include error, got %q", logOutput)
	}
}

func TestRespondWithServiceError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"session not found", service.ErrSessionNotFound, http.StatusNotFound, "Invalid class code or expired session"},
		{"wrapped not found", fmt.Errorf("lookup: %w", service.ErrPresentationNotFound), http.StatusNotFound, "presentation not found"},
		{"final status", service.ErrStatusFinal, http.StatusConflict, service.ErrStatusFinal.Error()},
		{"ended", service.ErrPresentationEnded, http.StatusConflict, service.ErrPresentationEnded.Error()},
		{"out of range", fmt.Errorf("%w: 9 not in [0, 3)", service.ErrCardOutOfRange), http.StatusBadRequest, service.ErrCardOutOfRange.Error()},
		{"field", validation.ValidationError{Field: "name", Message: "name is required"}, http.StatusBadRequest, "name: name is required"},
		{"fields", validation.Errors{{Field: "value", Message: "is required"}}, http.StatusBadRequest, ErrInvalidRequest},
		{"unavailable", service.ErrContentUnavailable, http.StatusServiceUnavailable, service.ErrContentUnavailable.Error()},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, ErrInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondWithServiceError(recorder, "test", tt.err)

			if recorder.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", recorder.Code, tt.wantCode)
			}
			var body errorBody
			if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON body: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestRespondWithServiceErrorSplitState(t *testing.T) {
	recorder := httptest.NewRecorder()
	err := &service.PartialEndError{PresentationID: "p1", SessionCode: "ABCDEF", SessionActive: true, Err: errors.New("timeout")}

	respondWithServiceError(recorder, "test", err)

	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", recorder.Code)
	}
	var body struct {
		Error string                  `json:"error"`
		Split service.PartialEndError `json:"split_state"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body.Split.SessionCode != "ABCDEF" || !body.Split.SessionActive || body.Split.PresentationActive {
		t.Errorf("unexpected split state %+v", body.Split)
	}
}
