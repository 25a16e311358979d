package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/middleware"
	"github.com/stegoshield/stegoshield-api/models"
)

// GetHistory lists a user's uploads with their verdicts, newest first.
// Admins may read any user's history through ?user_id=.
func (db *DBHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	target := user.ID
	if q := r.URL.Query().Get("user_id"); q != "" {
		id, err := strconv.ParseUint(q, 10, 0)
		if err != nil || id == 0 {
			apierr.Write(w, apierr.Validation("user_id must be a positive integer"))
			return
		}
		if uint(id) != user.ID && !user.IsAdmin {
			apierr.Write(w, apierr.ErrForbidden)
			return
		}
		target = uint(id)
	}

	var uploads []models.Upload
	if err := db.WithContext(r.Context()).Where("user_id = ?", target).Order("created_at desc, id desc").Find(&uploads).Error; err != nil {
		db.logFor(r).WithError(err).Error("GetHistory: failed to load uploads")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	byUpload := make(map[uint]*models.Result, len(uploads))
	if len(uploads) > 0 {
		ids := make([]uint, len(uploads))
		for i, u := range uploads {
			ids[i] = u.ID
		}
		var results []models.Result
		if err := db.WithContext(r.Context()).Where("upload_id IN ?", ids).Find(&results).Error; err != nil {
			db.logFor(r).WithError(err).Error("GetHistory: failed to load results")
			apierr.Write(w, apierr.ErrInternal)
			return
		}
		for i := range results {
			byUpload[results[i].UploadID] = &results[i]
		}
	}

	items := make([]historyItem, 0, len(uploads))
	for i := range uploads {
		items = append(items, newHistoryItem(&uploads[i], byUpload[uploads[i].ID]))
	}
	writeJSON(w, http.StatusOK, items)
}

func (db *DBHandler) DeleteHistoryItem(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	id, err := strconv.ParseUint(r.PathValue("id"), 10, 0)
	if err != nil || id == 0 {
		apierr.Write(w, apierr.ErrNotFound.WithMessage("Upload not found"))
		return
	}

	var upload models.Upload
	err = db.WithContext(r.Context()).First(&upload, uint(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		apierr.Write(w, apierr.ErrNotFound.WithMessage("Upload not found"))
		return
	}
	if err != nil {
		db.logFor(r).WithError(err).Error("DeleteHistoryItem: failed to load upload")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if upload.UserID != user.ID {
		apierr.Write(w, apierr.ErrForbidden)
		return
	}

	err = db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", upload.ID).Delete(&models.Result{}).Error; err != nil {
			return err
		}
		return tx.Delete(&upload).Error
	})
	if err != nil {
		db.logFor(r).WithError(err).WithField("upload_id", upload.ID).Error("DeleteHistoryItem: failed to delete upload")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	db.removeObject(r.Context(), r, upload.StorageKey)
	writeMessage(w, http.StatusOK, "Upload deleted")
}

func (db *DBHandler) DeleteAllHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}

	var uploads []models.Upload
	if err := db.WithContext(r.Context()).Where("user_id = ?", user.ID).Find(&uploads).Error; err != nil {
		db.logFor(r).WithError(err).Error("DeleteAllHistory: failed to load uploads")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	if len(uploads) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"message": "No history to delete", "deleted": 0})
		return
	}

	ids := make([]uint, len(uploads))
	for i, u := range uploads {
		ids[i] = u.ID
	}

	var deleted int64
	err := db.WithContext(r.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id IN ?", ids).Delete(&models.Result{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ? AND user_id = ?", ids, user.ID).Delete(&models.Upload{})
		deleted = res.RowsAffected
		return res.Error
	})
	if err != nil {
		db.logFor(r).WithError(err).Error("DeleteAllHistory: failed to delete uploads")
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	for _, u := range uploads {
		db.removeObject(r.Context(), r, u.StorageKey)
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "All history deleted", "deleted": deleted})
}
