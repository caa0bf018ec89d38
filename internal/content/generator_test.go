package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"classpulse/internal/models"
)

func TestGeneratorUsesProviderAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Model != "small" || len(req.Messages) != 2 {
			t.Errorf("unexpected request %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Plants eat sunlight.  "}}]}`))
	}))
	defer server.Close()

	g := NewGenerator(server.URL, "key", "small")
	res, err := g.SimplifyVocabulary(context.Background(), "Photosynthesis converts light energy.")
	if err != nil {
		t.Fatalf("SimplifyVocabulary() error = %v", err)
	}
	if res.Fallback || res.Text != "Plants eat sunlight." {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestGeneratorFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		apiKey  string
	}{
		{
			name:    "missing key",
			handler: func(w http.ResponseWriter, r *http.Request) { t.Error("provider should not be called") },
		},
		{
			name:    "server error",
			apiKey:  "key",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		},
		{
			name:    "malformed body",
			apiKey:  "key",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("not json")) },
		},
		{
			name:    "no choices",
			apiKey:  "key",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"choices":[]}`)) },
		},
		{
			name:    "empty content",
			apiKey:  "key",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"choices":[{"message":{"content":" "}}]}`)) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			g := NewGenerator(server.URL, tt.apiKey, "small")
			res, err := g.Differentiate(context.Background(), "Fractions are parts of a whole.", "support")
			if err != nil {
				t.Fatalf("Differentiate() error = %v", err)
			}
			if !res.Fallback {
				t.Errorf("expected fallback, got %+v", res)
			}
			if !strings.Contains(res.Text, "Fractions are parts of a whole.") {
				t.Errorf("fallback should keep the original text, got %q", res.Text)
			}
		})
	}
}

func TestGeneratorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	g := NewGenerator(server.URL, "key", "small")
	card := models.LessonCard{Title: "Pizza fractions", Content: "Cut the pizza"}
	if _, err := g.ExpandActivity(context.Background(), card); err != nil {
		t.Fatalf("ExpandActivity() error = %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
}

func TestGeneratorHonoursCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	g := NewGenerator(server.URL, "key", "small")
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := g.AnalyzeLesson(ctx, "Volcanoes", []string{"Explain eruptions"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
