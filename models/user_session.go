package models

import (
	"time"
)

// UserSession is the server-side record of one issued refresh token.
// Only the SHA-256 of the token is stored.
type UserSession struct {
	ID               uint   `gorm:"primarykey"`
	UserID           uint   `gorm:"not null;index"`
	RefreshTokenHash string `gorm:"size:64;uniqueIndex;not null"`
	IPAddress        string `gorm:"size:64"`
	UserAgent        string `gorm:"size:512"`
	Location         string `gorm:"size:128"`
	CreatedAt        time.Time
	LastUsedAt       time.Time
	ExpiresAt        time.Time `gorm:"not null;index"`
	Revoked          bool      `gorm:"not null;default:false;index"`
	User             User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Valid reports whether the session is usable at now.
func (s UserSession) Valid(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
