// Package content asks an OpenAI-compatible chat endpoint for alternate card
// text. Every call has a templated fallback, so a missing key or a failing
// provider degrades the text rather than the lesson.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"classpulse/internal/logger"
	"classpulse/internal/models"
)

const (
	requestTimeout  = 30 * time.Second
	maxResponseSize = 1 << 20
)

var errNotConfigured = errors.New("content generation not configured")

// Result is generated text and whether it came from the fallback template
type Result struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"`
}

// Generator produces card variants. Calls are never retried.
type Generator struct {
	apiURL string
	apiKey string
	model  string
	client *http.Client
}

// NewGenerator creates a generator. An empty apiKey makes every call return
// its fallback.
func NewGenerator(apiURL, apiKey, model string) *Generator {
	return &Generator{
		apiURL: apiURL,
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: requestTimeout},
	}
}

// Enabled reports whether a provider is configured
func (g *Generator) Enabled() bool {
	return g.apiKey != "" && g.apiURL != ""
}

// AnalyzeLesson writes teacher-facing background for a lesson topic
func (g *Generator) AnalyzeLesson(ctx context.Context, title string, objectives []string) (Result, error) {
	prompt := fmt.Sprintf("Lesson: %s\nObjectives:\n- %s\n\nWrite a short topic background a teacher can read before class.",
		title, strings.Join(objectives, "\n- "))
	fallback := fmt.Sprintf("Background for %s: review the key terms, connect them to what the class already knows, and check understanding after each objective.", title)
	return g.generate(ctx, "You help teachers prepare lessons.", prompt, fallback)
}

// ExpandActivity suggests an extension task for students who finish early
func (g *Generator) ExpandActivity(ctx context.Context, card models.LessonCard) (Result, error) {
	prompt := fmt.Sprintf("Activity: %s\n%s\n\nSuggest one extension task for students who finish early.", card.Title, card.Content)
	fallback := fmt.Sprintf("Extension: create your own example for \"%s\" and explain it to a partner.", card.Title)
	return g.generate(ctx, "You design classroom activities.", prompt, fallback)
}

// SimplifyVocabulary rewrites content in student-friendly language
func (g *Generator) SimplifyVocabulary(ctx context.Context, text string) (Result, error) {
	prompt := "Rewrite for a younger reader using short sentences and simple words:\n\n" + text
	fallback := "In simple words: " + text
	return g.generate(ctx, "You rewrite text for students.", prompt, fallback)
}

// Differentiate adapts content for a learner level such as "support" or "challenge"
func (g *Generator) Differentiate(ctx context.Context, text, level string) (Result, error) {
	prompt := fmt.Sprintf("Adapt this for students who need %s:\n\n%s", level, text)
	fallback := fmt.Sprintf("[%s] %s", level, text)
	return g.generate(ctx, "You differentiate classroom material.", prompt, fallback)
}

// generate returns the provider's answer or fallback. The only error it
// returns is ctx's, so a caller whose view has gone away writes nothing.
func (g *Generator) generate(ctx context.Context, system, prompt, fallback string) (Result, error) {
	text, err := g.complete(ctx, system, prompt)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, ctxErr
	}
	if err != nil {
		if !errors.Is(err, errNotConfigured) {
			logger.Warn("content generation failed, using fallback", err)
		}
		return Result{Text: fallback, Fallback: true}, nil
	}
	return Result{Text: text}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *Generator) complete(ctx context.Context, system, prompt string) (string, error) {
	if !g.Enabled() {
		return "", errNotConfigured
	}

	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var decoded chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response has no choices")
	}

	text := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("response is empty")
	}
	return text, nil
}
