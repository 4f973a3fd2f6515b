package models

import (
	"time"

	"bookswap/internal/domain"

	"gorm.io/gorm"
)

type User struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Username     string         `gorm:"uniqueIndex;size:64;not null" json:"username"`
	Email        string         `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string         `gorm:"size:255" json:"-"`
	Role         string         `gorm:"size:20;not null;default:'MEMBER';index" json:"role"`
	City         string         `gorm:"size:128" json:"city"`
	AvatarURL    string         `gorm:"size:512" json:"avatar_url"`
	FCMToken     string         `gorm:"size:512" json:"-"` // For push notifications
	// Points is the cached ledger balance. Only the ledger unit of work writes it.
	Points    int64          `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsAdmin() bool { return u.Role == domain.RoleAdmin }

// DisplayName falls back to the email when no username was chosen.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}
