package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"gorm.io/gorm"
)

type ClientMeta struct {
	IPAddress string
	UserAgent string
	Location  string
}

// SessionManager keeps one row per issued refresh token so that tokens can
// be revoked before they expire.
type SessionManager struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

func NewSessionManager(db *gorm.DB, ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &SessionManager{
		db:  db,
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (m *SessionManager) WithClock(now func() time.Time) *SessionManager {
	m.now = now
	return m
}

// WithTx returns a copy whose writes go through tx.
func (m *SessionManager) WithTx(tx *gorm.DB) *SessionManager {
	clone := *m
	clone.db = tx
	return &clone
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (m *SessionManager) CreateSession(ctx context.Context, userID uint, refreshToken string, meta ClientMeta) (*models.UserSession, error) {
	now := m.now()
	session := models.UserSession{
		UserID:           userID,
		RefreshTokenHash: HashToken(refreshToken),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		Location:         meta.Location,
		CreatedAt:        now,
		LastUsedAt:       now,
		ExpiresAt:        now.Add(m.ttl),
	}

	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

func (m *SessionManager) find(ctx context.Context, refreshToken string) (*models.UserSession, error) {
	var session models.UserSession
	err := m.db.WithContext(ctx).
		Where("refresh_token_hash = ?", HashToken(refreshToken)).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// ValidateSession reports whether the session for refreshToken exists, is not
// revoked and has not expired. A live session has its last-used time bumped.
func (m *SessionManager) ValidateSession(ctx context.Context, refreshToken string) (bool, error) {
	session, err := m.find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	now := m.now()
	if !session.Valid(now) {
		return false, nil
	}

	if err := m.db.WithContext(ctx).Model(session).Update("last_used_at", now).Error; err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	return true, nil
}

// RevokeSession is idempotent for known tokens and returns
// ErrSessionNotFound for unknown ones.
func (m *SessionManager) RevokeSession(ctx context.Context, refreshToken string) error {
	session, err := m.find(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session.Revoked {
		return nil
	}

	if err := m.db.WithContext(ctx).Model(session).Update("revoked", true).Error; err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeOwnSession revokes the session behind refreshToken when userID owns
// it. Sessions of other users are reported as ErrSessionNotFound.
func (m *SessionManager) RevokeOwnSession(ctx context.Context, userID uint, refreshToken string) error {
	session, err := m.find(ctx, refreshToken)
	if err != nil {
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	return m.RevokeUserSession(ctx, userID, session.ID)
}

// RevokeUserSession revokes a session by id, only if userID owns it.
func (m *SessionManager) RevokeUserSession(ctx context.Context, userID, sessionID uint) error {
	result := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("revoked", true)
	if result.Error != nil {
		return fmt.Errorf("revoke session %d: %w", sessionID, result.Error)
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := m.db.WithContext(ctx).Model(&models.UserSession{}).
			Where("id = ? AND user_id = ?", sessionID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("count session %d: %w", sessionID, err)
		}
		if count == 0 {
			return ErrSessionNotFound
		}
	}
	return nil
}

func (m *SessionManager) RevokeAllUserSessions(ctx context.Context, userID uint) (int64, error) {
	result := m.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("revoke sessions of user %d: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpiredSessions deletes every expired or revoked session.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result := m.db.WithContext(ctx).
		Where("expires_at < ? OR revoked = ?", m.now(), true).
		Delete(&models.UserSession{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (m *SessionManager) GetUserActiveSessions(ctx context.Context, userID uint) ([]models.UserSession, error) {
	var sessions []models.UserSession
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, m.now()).
		Order("last_used_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions of user %d: %w", userID, err)
	}
	return sessions, nil
}
