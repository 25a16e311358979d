package handlers

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/auth"
	"github.com/stegoshield/stegoshield-api/detector"
	"github.com/stegoshield/stegoshield-api/mailer"
	"github.com/stegoshield/stegoshield-api/otp"
	"github.com/stegoshield/stegoshield-api/storage"
)

// Predictor labels one uploaded file.
type Predictor interface {
	Predict(ctx context.Context, m detector.Modality, filename string, body io.Reader) (*detector.Prediction, error)
}

// DBHandler carries the database and the services the HTTP handlers use.
// IDTokens may be nil, which disables Google sign-in.
type DBHandler struct {
	*gorm.DB

	Sessions *auth.Sessions
	Cookies  auth.CookieOptions
	IDTokens auth.IDTokenVerifier
	Storage  storage.Store
	Detector Predictor
	OTP      otp.Store
	Mailer   mailer.Mailer
	Log      *logrus.Logger

	OTPTTL         time.Duration
	MaxUploadBytes int64
}
