package services

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrSessionNotFound    = errors.New("session not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrLastAdmin          = errors.New("at least one admin must remain")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrSamePassword       = errors.New("new password must differ from the current one")
)

// AccountLockedError is returned while a username is locked out.
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	return "account temporarily locked until " + e.Until.UTC().Format(time.RFC3339)
}

// LoginFailedError wraps ErrInvalidCredentials with the attempts left
// before lockout. It never says whether the username exists.
type LoginFailedError struct {
	RemainingAttempts int
}

func (e *LoginFailedError) Error() string {
	return ErrInvalidCredentials.Error()
}

func (e *LoginFailedError) Unwrap() error {
	return ErrInvalidCredentials
}
