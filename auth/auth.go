package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionIssuer   = "stegoshield-api"
	sessionAudience = "stegoshield-web"
)

// Sessions issues and validates the HS256 tokens kept in the session cookie.
type Sessions struct {
	secret []byte
	ttl    time.Duration
}

func NewSessions(secret string, ttl time.Duration) (*Sessions, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth.go: JWT secret key not set")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Sessions{secret: []byte(secret), ttl: ttl}, nil
}

func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

func (s *Sessions) CreateToken(userID uint) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    sessionIssuer,
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Audience:  jwt.ClaimStrings{sessionAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Validator returns the validator used by the session middleware.
func (s *Sessions) Validator() (*validator.Validator, error) {
	return validator.New(
		func(context.Context) (interface{}, error) { return s.secret, nil },
		validator.HS256,
		sessionIssuer,
		[]string{sessionAudience},
		validator.WithAllowedClockSkew(30*time.Second),
	)
}

// VerifyToken validates tokenString and returns the user ID it was issued for.
func (s *Sessions) VerifyToken(ctx context.Context, tokenString string) (uint, error) {
	v, err := s.Validator()
	if err != nil {
		return 0, err
	}

	claims, err := v.ValidateToken(ctx, tokenString)
	if err != nil {
		return 0, err
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token")
	}
	return SubjectUserID(validated.RegisteredClaims.Subject)
}

// SubjectUserID parses a session subject into a user ID.
func SubjectUserID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid token subject %q", subject)
	}
	return uint(id), nil
}
