package models

import "time"

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"

	ThemeLight = "light"
	ThemeDark  = "dark"
)

// User represents a user in the system
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null;size:100" json:"name"`
	Email        string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	PasswordHash *string   `gorm:"size:255" json:"-"` // nil for Google-only accounts
	AvatarURL    string    `gorm:"size:1024" json:"avatar_url"`
	Theme        string    `gorm:"not null;size:16;default:light" json:"theme"`
	IsAdmin      bool      `gorm:"default:false" json:"is_admin"`
	AuthProvider string    `gorm:"not null;size:32;default:local" json:"auth_provider"`
	FirebaseUID  *string   `gorm:"uniqueIndex;size:128" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether the user can sign in with email and password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
