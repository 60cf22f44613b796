package models

import (
	"time"
)

type AuditAction string

const (
	ActionLogin                AuditAction = "LOGIN"
	ActionLogout               AuditAction = "LOGOUT"
	ActionPasswordChange       AuditAction = "PASSWORD_CHANGE"
	ActionPasswordResetRequest AuditAction = "PASSWORD_RESET_REQUEST"
	ActionPasswordReset        AuditAction = "PASSWORD_RESET"
	ActionLoginFailed          AuditAction = "LOGIN_FAILED"
	ActionAccountLocked        AuditAction = "ACCOUNT_LOCKED"
	ActionAccountUnlocked      AuditAction = "ACCOUNT_UNLOCKED"
)

func (a AuditAction) Valid() bool {
	switch a {
	case ActionLogin, ActionLogout, ActionPasswordChange, ActionPasswordResetRequest,
		ActionPasswordReset, ActionLoginFailed, ActionAccountLocked, ActionAccountUnlocked:
		return true
	}
	return false
}

// AuditLog is append-only. UserID is nil when the event could not be tied
// to an account, e.g. a failed login for an unknown username.
type AuditLog struct {
	ID        uint        `gorm:"primarykey" json:"id"`
	UserID    *uint       `gorm:"index" json:"userId,omitempty"`
	Action    AuditAction `gorm:"size:32;not null;index" json:"action"`
	IPAddress string      `gorm:"size:64;index" json:"ipAddress"`
	UserAgent string      `gorm:"size:512" json:"userAgent"`
	Details   string      `gorm:"type:text" json:"details,omitempty"`
	CreatedAt time.Time   `gorm:"index" json:"timestamp"`
}
