package handlers

import (
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/models"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type googleRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	Name    string `json:"name" validate:"max=100"`
}

type userResponse struct {
	Message string       `json:"message,omitempty"`
	User    *models.User `json:"user"`
}

var errEmailTaken = apierr.ErrConflict.WithMessage("Email already registered")

var errGoogleLinked = errors.New("email linked to a different firebase uid")

func (db *DBHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	email := normalizeEmail(req.Email)

	var count int64
	if err := db.WithContext(r.Context()).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		db.logFor(r).WithError(err).Error("Signup: failed to check email")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if count > 0 {
		apierr.Write(w, errEmailTaken)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		db.logFor(r).WithError(err).Error("Signup: failed to hash password")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: &hash,
		Theme:        models.ThemeLight,
		AuthProvider: models.ProviderLocal,
	}
	if err := db.WithContext(r.Context()).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			apierr.Write(w, errEmailTaken)
			return
		}
		db.logFor(r).WithError(err).Error("Signup: failed to create user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	db.logFor(r).WithField("user_id", user.ID).Info("user signed up")
	writeJSON(w, http.StatusCreated, userResponse{Message: "User created successfully", User: &user})
}

func (db *DBHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}

	invalid := apierr.ErrUnauthorized.WithMessage("Invalid email or password")

	var user models.User
	err := db.WithContext(r.Context()).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		apierr.Write(w, invalid)
		return
	}
	if err != nil {
		db.logFor(r).WithError(err).Error("Login: failed to load user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	if !user.HasPassword() {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("This account uses Google sign-in"))
		return
	}
	if !auth.CheckPassword(*user.PasswordHash, req.Password) {
		apierr.Write(w, invalid)
		return
	}

	if !db.startSession(w, r, &user) {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Message: "Login successful", User: &user})
}

func (db *DBHandler) Logout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, db.Cookies)
	writeMessage(w, http.StatusOK, "Logged out")
}

// GoogleLogin signs in with a Firebase ID token, creating the account on
// first use.
func (db *DBHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	db.google(w, r, true)
}

// GoogleSignup registers a Google account without starting a session.
func (db *DBHandler) GoogleSignup(w http.ResponseWriter, r *http.Request) {
	db.google(w, r, false)
}

func (db *DBHandler) google(w http.ResponseWriter, r *http.Request, login bool) {
	if db.IDTokens == nil {
		apierr.Write(w, apierr.ErrUnavailable.WithMessage("Google sign-in is not configured"))
		return
	}

	var req googleRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}

	identity, err := db.IDTokens.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		db.logFor(r).WithError(err).Info("google: token rejected")
		apierr.Write(w, apierr.ErrUnauthorized.WithMessage("Invalid Google token"))
		return
	}
	// Accounts are matched by email, so the provider must vouch for it.
	if !identity.EmailVerified {
		db.logFor(r).WithField("firebase_uid", identity.UID).Info("google: email not verified")
		apierr.Write(w, apierr.ErrUnauthorized.WithMessage("Google account email is not verified"))
		return
	}

	user, created, err := db.findOrCreateGoogleUser(r, identity, req.Name)
	if errors.Is(err, errGoogleLinked) {
		apierr.Write(w, apierr.ErrConflict.WithMessage("Email is linked to another Google account"))
		return
	}
	if err != nil {
		db.logFor(r).WithError(err).Error("google: failed to sync user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	status := http.StatusOK
	message := "Login successful"
	if created {
		status = http.StatusCreated
		message = "User created successfully"
	}
	if login && !db.startSession(w, r, user) {
		return
	}
	writeJSON(w, status, userResponse{Message: message, User: user})
}

func (db *DBHandler) findOrCreateGoogleUser(r *http.Request, identity *auth.GoogleIdentity, fallbackName string) (*models.User, bool, error) {
	var user models.User
	created := false

	err := db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("firebase_uid = ?", identity.UID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = tx.Where("email = ?", identity.Email).First(&user).Error
			if err == nil && user.FirebaseUID != nil && *user.FirebaseUID != identity.UID {
				return errGoogleLinked
			}
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			uid := identity.UID
			user = models.User{
				Name:         googleName(identity, fallbackName),
				Email:        identity.Email,
				AvatarURL:    identity.Picture,
				Theme:        models.ThemeLight,
				AuthProvider: models.ProviderGoogle,
				FirebaseUID:  &uid,
			}
			created = true
			return tx.Create(&user).Error
		}
		if err != nil {
			return err
		}

		// Link an existing email account to this Google identity.
		updates := map[string]any{}
		if user.FirebaseUID == nil {
			updates["firebase_uid"] = identity.UID
		}
		if user.AvatarURL == "" && identity.Picture != "" {
			updates["avatar_url"] = identity.Picture
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&user).Updates(updates).Error
	})
	if err != nil {
		return nil, false, err
	}
	return &user, created, nil
}

func googleName(identity *auth.GoogleIdentity, fallback string) string {
	if name := strings.TrimSpace(identity.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(fallback); name != "" {
		return name
	}
	local, _, _ := strings.Cut(identity.Email, "@")
	return local
}

// startSession sets the session cookie. It writes the error response and
// returns false on failure.
func (db *DBHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User) bool {
	token, err := db.Sessions.CreateToken(user.ID)
	if err != nil {
		db.logFor(r).WithError(err).Error("failed to create session token")
		apierr.Write(w, apierr.ErrInternal)
		return false
	}
	auth.SetSessionCookie(w, db.Cookies, token)
	return true
}
