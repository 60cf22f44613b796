package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"github.com/xlzd/gotp"
	"gorm.io/gorm"
)

const (
	resetSecretLength   = 16
	maxResetCodeGuesses = 5
)

// CodeNotifier delivers a reset code to the account holder out of band.
type CodeNotifier interface {
	SendResetCode(ctx context.Context, user models.User, code string, expiresAt time.Time) error
}

// LogNotifier writes the code to the diagnostic log. It stands in for a
// mail or SMS channel in development deployments.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) SendResetCode(_ context.Context, user models.User, code string, expiresAt time.Time) error {
	n.Log.Info("password reset code issued",
		"user_id", user.ID,
		"username", user.Username,
		"code", code,
		"expires_at", expiresAt,
	)
	return nil
}

type PasswordResetService struct {
	db       *gorm.DB
	users    *UserService
	notifier CodeNotifier
	ttl      time.Duration
	now      func() time.Time
}

func NewPasswordResetService(db *gorm.DB, users *UserService, notifier CodeNotifier, ttl time.Duration) *PasswordResetService {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}

	return &PasswordResetService{
		db:       db,
		users:    users,
		notifier: notifier,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	s.now = now
	return s
}

func generateResetCode() string {
	return gotp.NewDefaultTOTP(gotp.RandomSecret(resetSecretLength)).Now()
}

// Decoy does the hashing work of IssueCode and discards it, so requests for
// unknown users take as long as real ones.
func (s *PasswordResetService) Decoy() {
	_, _ = s.users.HashPassword(generateResetCode())
}

// IssueCode supersedes any outstanding code for user and delivers a new one.
func (s *PasswordResetService) IssueCode(ctx context.Context, user models.User) error {
	code := generateResetCode()
	hash, err := s.users.HashPassword(code)
	if err != nil {
		return err
	}

	now := s.now()
	record := models.PasswordResetCode{
		UserID:    user.ID,
		CodeHash:  hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PasswordResetCode{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error; err != nil {
			return fmt.Errorf("supersede reset codes: %w", err)
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("store reset code: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.notifier.SendResetCode(ctx, user, code, record.ExpiresAt); err != nil {
		return fmt.Errorf("deliver reset code: %w", err)
	}
	return nil
}

// ResetPassword consumes code and sets newPassword, revoking every session
// of the user in the same transaction. Every guess is counted and a code
// stops working after maxResetCodeGuesses of them.
func (s *PasswordResetService) ResetPassword(ctx context.Context, userID uint, code, newPassword string, sessions *SessionManager) error {
	now := s.now()
	mismatch := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record models.PasswordResetCode
		err := tx.Where("user_id = ? AND used_at IS NULL AND expires_at > ?", userID, now).
			Order("created_at DESC").
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidResetCode
			}
			return fmt.Errorf("load reset code: %w", err)
		}

		// Spend a guess before comparing. The guarded increment holds the row
		// lock, so concurrent guesses cannot share one slot.
		claim := tx.Model(&models.PasswordResetCode{}).
			Where("id = ? AND attempts < ?", record.ID, maxResetCodeGuesses).
			UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
		if claim.Error != nil {
			return fmt.Errorf("count reset guess: %w", claim.Error)
		}
		if claim.RowsAffected == 0 {
			return ErrInvalidResetCode
		}

		if !CheckPassword(record.CodeHash, code) {
			mismatch = true
			return nil
		}

		if err := tx.Model(&record).Update("used_at", now).Error; err != nil {
			return fmt.Errorf("consume reset code: %w", err)
		}
		if err := s.users.WithTx(tx).UpdatePassword(ctx, userID, newPassword); err != nil {
			return err
		}
		if _, err := sessions.WithTx(tx).RevokeAllUserSessions(ctx, userID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if mismatch {
		return ErrInvalidResetCode
	}
	return nil
}
