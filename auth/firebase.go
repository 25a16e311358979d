package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
)

var ErrInvalidIDToken = errors.New("invalid identity token")

// GoogleIdentity is what a verified Firebase ID token says about its holder.
type GoogleIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

type IDTokenVerifier interface {
	VerifyIDToken(ctx context.Context, token string) (*GoogleIdentity, error)
}

// FirebaseClaims are the Firebase-specific claims of an ID token.
type FirebaseClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (c *FirebaseClaims) Validate(ctx context.Context) error {
	if c.Email == "" {
		return errors.New("token carries no email")
	}
	return nil
}

// FirebaseVerifier checks Firebase ID tokens against Google's published keys.
type FirebaseVerifier struct {
	validator *validator.Validator
}

// NewFirebaseVerifier fetches signing keys through the project's OpenID
// discovery document and caches them.
func NewFirebaseVerifier(projectID string) (*FirebaseVerifier, error) {
	issuerURL, err := url.Parse(firebaseIssuer(projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to parse the issuer url: %w", err)
	}
	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)
	return newFirebaseVerifier(projectID, provider.KeyFunc)
}

func newFirebaseVerifier(projectID string, keyFunc func(context.Context) (interface{}, error)) (*FirebaseVerifier, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, errors.New("firebase project id not set")
	}

	v, err := validator.New(
		keyFunc,
		validator.RS256,
		firebaseIssuer(projectID),
		[]string{projectID},
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &FirebaseClaims{}
		}),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the firebase validator: %w", err)
	}
	return &FirebaseVerifier{validator: v}, nil
}

func (f *FirebaseVerifier) VerifyIDToken(ctx context.Context, token string) (*GoogleIdentity, error) {
	claims, err := f.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	validated, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, ErrInvalidIDToken
	}
	custom, ok := validated.CustomClaims.(*FirebaseClaims)
	if !ok || validated.RegisteredClaims.Subject == "" {
		return nil, ErrInvalidIDToken
	}

	return &GoogleIdentity{
		UID:           validated.RegisteredClaims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(custom.Email)),
		EmailVerified: custom.EmailVerified,
		Name:          custom.Name,
		Picture:       custom.Picture,
	}, nil
}

func firebaseIssuer(projectID string) string {
	return "https://securetoken.google.com/" + projectID
}
