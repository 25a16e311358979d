package models

import "time"

// Result holds the model verdict for an upload. Filename is kept for
// display; rows are joined to uploads on UploadID.
type Result struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UploadID   uint      `gorm:"not null;index" json:"upload_id"`
	Upload     Upload    `gorm:"foreignKey:UploadID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Filename   string    `gorm:"not null;size:255" json:"filename"`
	Prediction string    `gorm:"not null;size:32" json:"prediction"`
	Confidence float64   `json:"confidence"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	FileURL    string    `gorm:"size:1024" json:"file_url"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `json:"created_at"`
}
