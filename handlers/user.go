package handlers

import (
	"net/http"
	"strings"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/middleware"
	"github.com/stegoshield/stegoshield-api/models"
)

type adminUser struct {
	models.User
	UploadCount int64 `json:"upload_count"`
}

// ListUsers returns every user with their upload count.
func (db *DBHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	var users []models.User
	if err := db.WithContext(r.Context()).Order("id").Find(&users).Error; err != nil {
		db.logFor(r).WithError(err).Error("ListUsers: failed to load users")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	var counts []struct {
		UserID uint
		Count  int64
	}
	err := db.WithContext(r.Context()).Model(&models.Upload{}).
		Select("user_id, count(*) as count").
		Group("user_id").
		Scan(&counts).Error
	if err != nil {
		db.logFor(r).WithError(err).Error("ListUsers: failed to count uploads")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	byUser := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byUser[c.UserID] = c.Count
	}

	out := make([]adminUser, 0, len(users))
	for _, u := range users {
		out = append(out, adminUser{User: u, UploadCount: byUser[u.ID]})
	}
	writeJSON(w, http.StatusOK, out)
}

func (db *DBHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

type profileRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=1,max=100"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,max=1024,len=0|url"`
	Theme     *string `json:"theme" validate:"omitempty,oneof=light dark"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

func (db *DBHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}

	updates := map[string]any{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			apierr.Write(w, apierr.Validation("name is required"))
			return
		}
		updates["name"] = name
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Theme != nil {
		updates["theme"] = *req.Theme
	}
	if len(updates) == 0 {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("Nothing to update"))
		return
	}

	if err := db.WithContext(r.Context()).Model(user).Updates(updates).Error; err != nil {
		db.logFor(r).WithError(err).Error("UpdateProfile: failed to update user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if err := db.WithContext(r.Context()).First(user, user.ID).Error; err != nil {
		db.logFor(r).WithError(err).Error("UpdateProfile: failed to reload user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Profile updated", User: user})
}

func (db *DBHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}

	if !user.HasPassword() {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("This account uses Google sign-in"))
		return
	}
	if !auth.CheckPassword(*user.PasswordHash, req.CurrentPassword) {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("Current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		db.logFor(r).WithError(err).Error("ChangePassword: failed to hash password")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if err := db.WithContext(r.Context()).Model(user).Update("password_hash", hash).Error; err != nil {
		db.logFor(r).WithError(err).Error("ChangePassword: failed to update user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	writeMessage(w, http.StatusOK, "Password updated")
}
