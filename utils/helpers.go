package utils

import (
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"

	"github.com/stegoshield/stegoshield-api/auth"
)

// GetSessionSubject returns the subject of the session validated upstream.
func GetSessionSubject(r *http.Request) (string, bool) {
	claims, ok := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if !ok {
		return "", false
	}
	return claims.RegisteredClaims.Subject, true
}

func GetSessionUserID(r *http.Request) (uint, bool) {
	subject, ok := GetSessionSubject(r)
	if !ok {
		return 0, false
	}
	id, err := auth.SubjectUserID(subject)
	if err != nil {
		return 0, false
	}
	return id, true
}

// SessionCookieExtractor reads the session token from a cookie. A missing
// cookie yields an empty token so the middleware reports it as absent.
func SessionCookieExtractor(name string) jwtmiddleware.TokenExtractor {
	return func(r *http.Request) (string, error) {
		cookie, err := r.Cookie(name)
		if err == http.ErrNoCookie {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		return cookie.Value, nil
	}
}
