package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"classpulse/internal/credentials"
	"classpulse/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const TeacherContextKey ContextKey = "teacher"

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens  *credentials.TokenIssuer
	limiter *security.RateLimiter
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(tokens *credentials.TokenIssuer, limiter *security.RateLimiter) *Middleware {
	return &Middleware{
		tokens:  tokens,
		limiter: limiter,
	}
}

// RequireTeacher is middleware that requires a valid teacher bearer token.
// When the route names a session code it must be the token's session.
func (m *Middleware) RequireTeacher(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		claims, err := m.tokens.Verify(token)
		if err != nil {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "Rejected teacher token", err)
			return
		}

		if code := r.PathValue("code"); code != "" && credentials.NormalizeCode(code) != claims.SessionCode {
			respondWithError(w, http.StatusForbidden, ErrForbidden, "", nil)
			return
		}

		ctx := context.WithValue(r.Context(), TeacherContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

// RateLimit is middleware that limits requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
			return
		}
		next(w, r)
	}
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Call next handler
		next.ServeHTTP(w, r)

		// Log request
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}

// GetTeacherFromContext retrieves the verified teacher claims from the request context
func GetTeacherFromContext(ctx context.Context) *credentials.TeacherClaims {
	claims, ok := ctx.Value(TeacherContextKey).(*credentials.TeacherClaims)
	if !ok {
		return nil
	}
	return claims
}
