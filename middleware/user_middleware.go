package middleware

import (
	"context"
	"errors"
	"net/http"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/models"
	"github.com/stegoshield/stegoshield-api/utils"
)

type contextKey string

const userContextKey contextKey = "user"

// SessionGuard validates the session cookie and loads the signed-in user.
type SessionGuard struct {
	db       *gorm.DB
	checkJWT func(http.Handler) http.Handler
	log      *logrus.Logger
}

func NewSessionGuard(db *gorm.DB, sessions *auth.Sessions, cookieName string, log *logrus.Logger) (*SessionGuard, error) {
	v, err := sessions.Validator()
	if err != nil {
		return nil, err
	}

	mw := jwtmiddleware.New(
		v.ValidateToken,
		jwtmiddleware.WithTokenExtractor(utils.SessionCookieExtractor(cookieName)),
		jwtmiddleware.WithErrorHandler(func(w http.ResponseWriter, r *http.Request, err error) {
			if !errors.Is(err, jwtmiddleware.ErrJWTMissing) {
				log.WithField("request_id", RequestID(r.Context())).Debugf("session rejected: %v", err)
			}
			apierr.Write(w, apierr.ErrUnauthorized)
		}),
	)

	return &SessionGuard{db: db, checkJWT: mw.CheckJWT, log: log}, nil
}

// RequireUser rejects requests without a valid session and attaches the
// session's user to the request context.
func (g *SessionGuard) RequireUser(next http.HandlerFunc) http.HandlerFunc {
	loader := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := utils.GetSessionUserID(r)
		if !ok {
			apierr.Write(w, apierr.ErrUnauthorized)
			return
		}

		var user models.User
		err := g.db.WithContext(r.Context()).First(&user, userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Token outlived its account.
			apierr.Write(w, apierr.ErrUnauthorized)
			return
		}
		if err != nil {
			g.log.WithError(err).WithField("user_id", userID).Error("failed to load session user")
			apierr.Write(w, apierr.ErrInternal)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, &user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
	return g.checkJWT(loader).ServeHTTP
}

// RequireAdmin is RequireUser restricted to admins.
func (g *SessionGuard) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return g.RequireUser(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || !user.IsAdmin {
			apierr.Write(w, apierr.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// WithUser returns ctx carrying user, as RequireUser would.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
