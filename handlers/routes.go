package handlers

import (
	"net/http"

	"github.com/stegoshield/stegoshield-api/middleware"
)

// NewRouter registers the API routes. Routes that need a signed-in user are
// wrapped by guard.
func NewRouter(db *DBHandler, guard *middleware.SessionGuard) *http.ServeMux {
	mux := http.NewServeMux()

	// Auth
	mux.HandleFunc("POST /signup", db.Signup)
	mux.HandleFunc("POST /login", db.Login)
	mux.HandleFunc("POST /logout", db.Logout)
	mux.HandleFunc("POST /google-login", db.GoogleLogin)
	mux.HandleFunc("POST /google-signup", db.GoogleSignup)
	mux.HandleFunc("GET /api/me", guard.RequireUser(db.Me))
	mux.HandleFunc("PUT /api/profile", guard.RequireUser(db.UpdateProfile))
	mux.HandleFunc("POST /api/change-password", guard.RequireUser(db.ChangePassword))

	// Password reset
	mux.HandleFunc("POST /api/send-otp", db.SendOTP)
	mux.HandleFunc("POST /api/verify-otp", db.VerifyOTP)
	mux.HandleFunc("POST /api/reset-password", db.ResetPassword)

	// Prediction
	mux.HandleFunc("GET /predict", db.PredictInfo)
	mux.HandleFunc("POST /upload", guard.RequireUser(db.Predict))
	mux.HandleFunc("POST /api/predict", guard.RequireUser(db.Predict))

	// History
	mux.HandleFunc("GET /api/history", guard.RequireUser(db.GetHistory))
	mux.HandleFunc("DELETE /api/history/all", guard.RequireUser(db.DeleteAllHistory))
	mux.HandleFunc("DELETE /api/history/{id}", guard.RequireUser(db.DeleteHistoryItem))

	// Admin
	mux.HandleFunc("GET /api/admin/users", guard.RequireAdmin(db.ListUsers))

	mux.HandleFunc("GET /healthz", db.Health)

	return mux
}
