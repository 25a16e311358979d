package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/stegoshield/stegoshield-api/apierr"
)

// pinger is implemented by OTP stores backed by a remote server.
type pinger interface {
	Ping(ctx context.Context) error
}

func (db *DBHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := db.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		db.logFor(r).WithError(err).Warn("Health: database unreachable")
		apierr.Write(w, apierr.ErrUnavailable)
		return
	}

	if p, ok := db.OTP.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			db.logFor(r).WithError(err).Warn("Health: otp store unreachable")
			apierr.Write(w, apierr.ErrUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
