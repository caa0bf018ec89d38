package credentials

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid teacher token")

// TeacherClaims identifies the teacher who owns a session
type TeacherClaims struct {
	SessionCode string `json:"session_code"`
	TeacherName string `json:"teacher_name"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies per-session teacher tokens (HS256)
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer. ttl bounds how long a teacher can
// drive a session with the same token.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token granting teacher rights over sessionCode
func (i *TokenIssuer) Issue(sessionCode, teacherName string) (string, error) {
	now := i.now()
	claims := TeacherClaims{
		SessionCode: sessionCode,
		TeacherName: teacherName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sessionCode,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign teacher token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its claims
func (i *TokenIssuer) Verify(token string) (*TeacherClaims, error) {
	claims := &TeacherClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionCode == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
