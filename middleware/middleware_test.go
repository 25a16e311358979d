package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/models"
)

func testLogger(out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.JSONFormatter{})
	return log
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	var seen string
	h := RequestLogger(testLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))

	t.Run("generates an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
		assert.Equal(t, rec.Header().Get(RequestIDHeader), seen)
		assert.Contains(t, buf.String(), `"status":418`)
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "req-123", seen)
	})
}

func TestRecoverer(t *testing.T) {
	var buf bytes.Buffer
	h := Recoverer(testLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
	assert.NotContains(t, rec.Body.String(), "boom")
	assert.Contains(t, buf.String(), "boom")
}

func TestSessionGuard(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	defer sqlDB.Close()
	require.NoError(t, db.AutoMigrate(&models.User{}))

	member := models.User{Name: "Member", Email: "member@example.com"}
	admin := models.User{Name: "Admin", Email: "admin@example.com", IsAdmin: true}
	require.NoError(t, db.Create(&member).Error)
	require.NoError(t, db.Create(&admin).Error)

	sessions, err := auth.NewSessions("guard-secret", time.Hour)
	require.NoError(t, err)
	guard, err := NewSessionGuard(db, sessions, "stego_session", testLogger(io.Discard))
	require.NoError(t, err)

	whoami := func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !assert.True(t, ok) {
			return
		}
		io.WriteString(w, user.Email)
	}
	cookieFor := func(id uint) *http.Cookie {
		token, err := sessions.CreateToken(id)
		require.NoError(t, err)
		return &http.Cookie{Name: "stego_session", Value: token}
	}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		cookie  *http.Cookie
		want    int
		body    string
	}{
		{"no cookie", guard.RequireUser(whoami), nil, http.StatusUnauthorized, ""},
		{"member", guard.RequireUser(whoami), cookieFor(member.ID), http.StatusOK, "member@example.com"},
		{"unknown user", guard.RequireUser(whoami), cookieFor(9999), http.StatusUnauthorized, ""},
		{"member on admin route", guard.RequireAdmin(whoami), cookieFor(member.ID), http.StatusForbidden, ""},
		{"admin on admin route", guard.RequireAdmin(whoami), cookieFor(admin.ID), http.StatusOK, "admin@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			tt.handler(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}
