package handlers

import (
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/models"
	"github.com/stegoshield/stegoshield-api/otp"
)

const otpSentMessage = "If the account exists, an OTP has been sent"

type sendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

type resetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

var errInvalidOTP = apierr.ErrBadRequest.WithMessage("Invalid or expired OTP")

// SendOTP issues a reset code. The response does not reveal whether the
// email is registered; codes are only mailed to registered ones.
func (db *DBHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	email := normalizeEmail(req.Email)

	var user models.User
	err := db.WithContext(r.Context()).Where("email = ?", email).First(&user).Error
	registered := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		db.logFor(r).WithError(err).Error("SendOTP: failed to load user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	code, err := otp.GenerateCode()
	if err != nil {
		db.logFor(r).WithError(err).Error("SendOTP: failed to generate code")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	// Unknown emails are throttled the same way so 429s reveal nothing.
	if err := db.OTP.Issue(r.Context(), email, code); err != nil {
		if errors.Is(err, otp.ErrTooSoon) {
			apierr.Write(w, apierr.ErrRateLimited.WithMessage("Please wait before requesting another OTP"))
			return
		}
		db.logFor(r).WithError(err).Error("SendOTP: failed to store code")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	if registered {
		if err := db.Mailer.SendOTP(r.Context(), email, code, db.OTPTTL); err != nil {
			db.logFor(r).WithError(err).Error("SendOTP: failed to send email")
			apierr.Write(w, apierr.ErrUnavailable.WithMessage("Could not send the OTP email"))
			return
		}
	}
	writeMessage(w, http.StatusOK, otpSentMessage)
}

func (db *DBHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}

	err := db.OTP.Verify(r.Context(), normalizeEmail(req.Email), req.OTP)
	switch {
	case err == nil:
		writeMessage(w, http.StatusOK, "OTP verified")
	case errors.Is(err, otp.ErrMismatch), errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrTooManyAttempts):
		apierr.Write(w, errInvalidOTP)
	default:
		db.logFor(r).WithError(err).Error("VerifyOTP: failed to check code")
		apierr.Write(w, apierr.ErrInternal)
	}
}

// ResetPassword sets a new password for an email verified through VerifyOTP.
func (db *DBHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, err)
		return
	}
	email := normalizeEmail(req.Email)

	verified, err := db.OTP.ConsumeVerified(r.Context(), email)
	if err != nil {
		db.logFor(r).WithError(err).Error("ResetPassword: failed to check verification")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if !verified {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("OTP verification required"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		db.logFor(r).WithError(err).Error("ResetPassword: failed to hash password")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	res := db.WithContext(r.Context()).Model(&models.User{}).Where("email = ?", email).Update("password_hash", hash)
	if res.Error != nil {
		db.logFor(r).WithError(res.Error).Error("ResetPassword: failed to update user")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if res.RowsAffected == 0 {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("OTP verification required"))
		return
	}
	writeMessage(w, http.StatusOK, "Password reset successful")
}
