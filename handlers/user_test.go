package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stegoshield/stegoshield-api/middleware"
	"github.com/stegoshield/stegoshield-api/models"
)

func TestUpdateProfile(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup(t, "Alice", "alice@example.com")

	rec := env.do(t, http.MethodPut, "/api/profile", map[string]string{
		"name": "Alice Liddell", "theme": "dark", "avatar_url": "https://example.com/a.png",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	user := decodeBody[userResponse](t, rec).User
	assert.Equal(t, "Alice Liddell", user.Name)
	assert.Equal(t, models.ThemeDark, user.Theme)
	assert.Equal(t, "https://example.com/a.png", user.AvatarURL)

	rec = env.do(t, http.MethodGet, "/api/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ThemeDark, decodeBody[userResponse](t, rec).User.Theme)

	rec = env.do(t, http.MethodPut, "/api/profile", map[string]string{"avatar_url": ""}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, decodeBody[userResponse](t, rec).User.AvatarURL)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"unknown theme", map[string]string{"theme": "purple"}},
		{"bad avatar url", map[string]string{"avatar_url": "not a url"}},
		{"blank name", map[string]string{"name": "   "}},
		{"nothing to update", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/profile", tt.body, cookie)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	cookie := env.signup(t, "Alice", "alice@example.com")

	rec := env.do(t, http.MethodPost, "/api/change-password", map[string]string{
		"current_password": "wrong-password", "new_password": "new-password-1",
	}, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/change-password", map[string]string{
		"current_password": "password123", "new_password": "new-password-1",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/login", map[string]string{
		"email": "alice@example.com", "password": "new-password-1",
	}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "Alice", "alice@example.com")
	admin := env.signup(t, "Root", "root@example.com")
	require.NoError(t, env.db.Model(&models.User{}).Where("email = ?", "root@example.com").Update("is_admin", true).Error)

	rec := env.upload(t, "/upload", "a.png", []byte("a"), alice)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/users", nil, alice)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/admin/users", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	users := decodeBody[[]map[string]any](t, rec)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0]["email"])
	assert.Equal(t, float64(1), users[0]["upload_count"])
	assert.Equal(t, float64(0), users[1]["upload_count"])
	assert.NotContains(t, rec.Body.String(), "password_hash")
}

func TestMeReadsUserFromContext(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.handler.Me(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	user := &models.User{Name: "Ctx", Email: "ctx@example.com"}
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(middleware.WithUser(req.Context(), user))
	rec = httptest.NewRecorder()
	env.handler.Me(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ctx@example.com", decodeBody[userResponse](t, rec).User.Email)
}
