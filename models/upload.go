package models

import "time"

// Upload is one analyzed file owned by a user.
type Upload struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PublicID   string    `gorm:"not null;size:32;uniqueIndex" json:"public_id"`
	Filename   string    `gorm:"not null;size:255" json:"filename"`
	Filetype   string    `gorm:"not null;size:16" json:"filetype"`
	Result     string    `gorm:"size:32" json:"result"`
	FileURL    string    `gorm:"size:1024" json:"file_url"`
	StorageKey string    `gorm:"size:512" json:"-"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	User       User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	FileSize   int64     `json:"file_size"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}
