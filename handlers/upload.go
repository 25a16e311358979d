package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stegoshield/stegoshield-api/apierr"
	"github.com/stegoshield/stegoshield-api/detector"
	"github.com/stegoshield/stegoshield-api/metrics"
	"github.com/stegoshield/stegoshield-api/middleware"
	"github.com/stegoshield/stegoshield-api/models"
	"github.com/stegoshield/stegoshield-api/utils"
)

const predictBanner = "StegoShield API is running! Use POST request to analyze files."

// multipartMemory is how much of a form is kept in memory before spilling
// to temporary files.
const multipartMemory = 32 << 20

type historyItem struct {
	ID         uint      `json:"id"`
	PublicID   string    `json:"public_id"`
	Filename   string    `json:"filename"`
	Filetype   string    `json:"filetype"`
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
	FileURL    string    `json:"file_url"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}

func newHistoryItem(u *models.Upload, res *models.Result) historyItem {
	item := historyItem{
		ID:        u.ID,
		PublicID:  u.PublicID,
		Filename:  u.Filename,
		Filetype:  u.Filetype,
		Result:    u.Result,
		FileURL:   u.FileURL,
		FileSize:  u.FileSize,
		CreatedAt: u.CreatedAt,
	}
	if res != nil {
		item.Result = res.Prediction
		item.Confidence = res.Confidence
	}
	return item
}

func (db *DBHandler) PredictInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, predictBanner)
}

// Predict stores an uploaded file, labels it and records the verdict.
func (db *DBHandler) Predict(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		apierr.Write(w, apierr.ErrUnauthorized)
		return
	}
	ctx := r.Context()
	log := db.logFor(r)

	if r.ContentLength > db.MaxUploadBytes {
		apierr.Write(w, apierr.ErrPayloadTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, db.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierr.Write(w, apierr.ErrPayloadTooLarge)
			return
		}
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("No file part"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("No file part"))
		return
	}
	defer file.Close()

	filename := utils.CleanFilename(header.Filename)
	if filename == "" {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("No selected file"))
		return
	}
	contentType := header.Header.Get("Content-Type")
	modality := utils.ModalityFor(filename, contentType)
	if modality == "" {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("Unsupported file type"))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		log.WithError(err).Error("Predict: failed to read upload")
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("Could not read file"))
		return
	}
	if len(data) == 0 {
		apierr.Write(w, apierr.ErrBadRequest.WithMessage("File is empty"))
		return
	}
	metrics.UploadBytes.Observe(float64(len(data)))

	publicID, err := gonanoid.New()
	if err != nil {
		log.WithError(err).Error("Predict: failed to generate id")
		apierr.Write(w, apierr.ErrInternal)
		return
	}
	key := fmt.Sprintf("uploads/%d/%s%s", user.ID, publicID, utils.Extension(filename))

	obj, err := db.Storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		log.WithError(err).WithField("key", key).Error("Predict: failed to store file")
		apierr.Write(w, apierr.ErrStorage)
		return
	}

	prediction, err := db.Detector.Predict(ctx, detector.Modality(modality), filename, bytes.NewReader(data))
	if err != nil {
		db.removeObject(ctx, r, obj.Key)
		if errors.Is(err, detector.ErrUndecodable) {
			log.WithError(err).WithField("modality", modality).Info("Predict: undecodable upload")
			apierr.Write(w, apierr.ErrUnsupportedMedia)
			return
		}
		log.WithError(err).WithField("modality", modality).Error("Predict: analysis failed")
		apierr.Write(w, apierr.ErrModel)
		return
	}

	upload := models.Upload{
		PublicID:   publicID,
		Filename:   filename,
		Filetype:   modality,
		Result:     prediction.Label,
		FileURL:    obj.URL,
		StorageKey: obj.Key,
		UserID:     user.ID,
		FileSize:   int64(len(data)),
	}
	result := models.Result{
		Filename:   filename,
		Prediction: prediction.Label,
		Confidence: prediction.Confidence,
		UserID:     user.ID,
		FileURL:    obj.URL,
		FileSize:   int64(len(data)),
	}
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&upload).Error; err != nil {
			return err
		}
		result.UploadID = upload.ID
		return tx.Create(&result).Error
	})
	if err != nil {
		log.WithError(err).Error("Predict: failed to save result")
		db.removeObject(ctx, r, obj.Key)
		apierr.Write(w, apierr.ErrInternal)
		return
	}

	log.WithFields(logrus.Fields{
		"upload_id":  upload.ID,
		"modality":   modality,
		"result":     prediction.Label,
		"confidence": prediction.Confidence,
		"source":     prediction.Source,
	}).Info("file analyzed")
	writeJSON(w, http.StatusOK, newHistoryItem(&upload, &result))
}

// removeObject deletes a stored file, logging failures. It is not cut short
// by cancellation of ctx.
func (db *DBHandler) removeObject(ctx context.Context, r *http.Request, key string) {
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := db.Storage.Delete(ctx, key); err != nil {
		db.logFor(r).WithError(err).WithField("key", key).Warn("failed to delete stored file")
	}
}
