package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"gorm.io/gorm"
)

type LoginResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	User             models.PublicUser
}

// Locator resolves a client IP to a display location.
type Locator interface {
	GetIPLocation(ctx context.Context, ip string) string
}

// AuthService runs the login, refresh, logout and password flows on top of
// the tracker, token, session, user and audit components.
type AuthService struct {
	db       *gorm.DB
	users    *UserService
	tracker  *LoginAttemptTracker
	tokens   *TokenService
	sessions *SessionManager
	resets   *PasswordResetService
	audit    *AuditLogger
	locator  Locator
	log      *slog.Logger
}

type AuthDeps struct {
	DB       *gorm.DB
	Users    *UserService
	Tracker  *LoginAttemptTracker
	Tokens   *TokenService
	Sessions *SessionManager
	Resets   *PasswordResetService
	Audit    *AuditLogger
	Locator  Locator
	Log      *slog.Logger
}

func NewAuthService(deps AuthDeps) *AuthService {
	return &AuthService{
		db:       deps.DB,
		users:    deps.Users,
		tracker:  deps.Tracker,
		tokens:   deps.Tokens,
		sessions: deps.Sessions,
		resets:   deps.Resets,
		audit:    deps.Audit,
		locator:  deps.Locator,
		log:      deps.Log,
	}
}

func (s *AuthService) auditEntry(action models.AuditAction, userID *uint, meta ClientMeta, details map[string]any) AuditEntry {
	return AuditEntry{
		UserID:    userID,
		Action:    action,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		Details:   details,
	}
}

// Login checks the lockout before touching the credential store, so a
// locked username never costs a password comparison. The client location is
// only looked up once the credentials are good.
func (s *AuthService) Login(ctx context.Context, username, password string, meta ClientMeta) (*LoginResult, error) {
	username = NormalizeUsername(username)

	allowed, err := s.tracker.CheckLoginAttempts(ctx, username)
	if err != nil {
		return nil, err
	}
	if !allowed {
		until, err := s.tracker.GetAccountLockoutTime(ctx, username)
		if err != nil {
			return nil, err
		}
		lockedUntil := time.Now().UTC().Add(s.tracker.Policy().LockoutDuration)
		if until != nil {
			lockedUntil = *until
		}
		return nil, &AccountLockedError{Until: lockedUntil}
	}

	user, err := s.users.VerifyCredentials(ctx, username, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, s.recordFailure(ctx, username, user, meta)
		}
		return nil, err
	}

	if err := s.tracker.ResetLoginAttempts(ctx, username); err != nil {
		return nil, err
	}

	if s.locator != nil && meta.Location == "" {
		meta.Location = s.locator.GetIPLocation(ctx, meta.IPAddress)
	}

	accessToken, err := s.tokens.GenerateToken(*user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.tokens.GenerateRefreshToken(*user)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, refreshToken, meta)
	if err != nil {
		return nil, err
	}

	if err := s.users.TouchLastLogin(ctx, user.ID); err != nil {
		s.log.Warn("update last login failed", "user_id", user.ID, "error", err)
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionLogin, &user.ID, meta, map[string]any{
		"sessionId": session.ID,
	}))

	return &LoginResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: session.ExpiresAt,
		User:             user.Public(),
	}, nil
}

// recordFailure counts a failed attempt for username and returns the error
// to surface. user is nil when the username does not exist.
func (s *AuthService) recordFailure(ctx context.Context, username string, user *models.User, meta ClientMeta) error {
	rec, err := s.tracker.TrackLoginAttempt(ctx, username, false)
	if err != nil {
		return err
	}

	var userID *uint
	reason := "unknown_user"
	if user != nil {
		userID = &user.ID
		reason = "wrong_password"
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionLoginFailed, userID, meta, map[string]any{
		"username": username,
		"reason":   reason,
		"attempts": rec.Count,
	}))

	if rec.Count == s.tracker.Policy().MaxAttempts {
		s.audit.Log(ctx, s.auditEntry(models.ActionAccountLocked, userID, meta, map[string]any{
			"username":    username,
			"lockedUntil": rec.LastAttempt.Add(s.tracker.Policy().LockoutDuration),
		}))
	}

	return &LoginFailedError{RemainingAttempts: max(0, s.tracker.Policy().MaxAttempts-rec.Count)}
}

// Refresh mints a new access token. The refresh token must verify, belong
// to the caller, and map to a live session; the user must still exist.
func (s *AuthService) Refresh(ctx context.Context, callerID uint, refreshToken string) (string, error) {
	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return "", err
	}
	if claims.UserID != callerID {
		return "", ErrInvalidToken
	}

	live, err := s.sessions.ValidateSession(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	if !live {
		return "", ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}

	return s.tokens.GenerateToken(*user)
}

// Logout revokes the session behind refreshToken when there is one.
// Revocation problems are logged, never returned.
func (s *AuthService) Logout(ctx context.Context, userID uint, refreshToken string, meta ClientMeta) {
	revoked := false
	if refreshToken != "" {
		err := s.sessions.RevokeSession(ctx, refreshToken)
		switch {
		case err == nil:
			revoked = true
		case errors.Is(err, ErrSessionNotFound):
		default:
			s.log.Error("revoke session on logout failed", "user_id", userID, "error", err)
		}
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionLogout, &userID, meta, map[string]any{
		"sessionRevoked": revoked,
	}))
}

// ChangePassword updates the hash and revokes all of the user's sessions in
// one transaction.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string, meta ClientMeta) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !CheckPassword(user.PasswordHash, currentPassword) {
		return ErrInvalidCredentials
	}
	if currentPassword == newPassword {
		return ErrSamePassword
	}

	var revoked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.users.WithTx(tx).UpdatePassword(ctx, userID, newPassword); err != nil {
			return err
		}
		n, err := s.sessions.WithTx(tx).RevokeAllUserSessions(ctx, userID)
		revoked = n
		return err
	})
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionPasswordChange, &userID, meta, map[string]any{
		"sessionsRevoked": revoked,
	}))
	return nil
}

// RequestPasswordReset issues a code when username exists. Unknown usernames
// are indistinguishable to the caller.
func (s *AuthService) RequestPasswordReset(ctx context.Context, username string, meta ClientMeta) error {
	username = NormalizeUsername(username)

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.resets.Decoy()
			s.audit.Log(ctx, s.auditEntry(models.ActionPasswordResetRequest, nil, meta, map[string]any{
				"username": username,
				"reason":   "unknown_user",
			}))
			return nil
		}
		return err
	}

	if err := s.resets.IssueCode(ctx, *user); err != nil {
		return err
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionPasswordResetRequest, &user.ID, meta, nil))
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, username, code, newPassword string, meta ClientMeta) error {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetCode
		}
		return err
	}

	if err := s.resets.ResetPassword(ctx, user.ID, code, newPassword, s.sessions); err != nil {
		return err
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionPasswordReset, &user.ID, meta, nil))
	return nil
}

// UnlockAccount clears the lockout for username on behalf of actorID.
func (s *AuthService) UnlockAccount(ctx context.Context, actorID uint, username string, meta ClientMeta) error {
	username = NormalizeUsername(username)
	if err := s.tracker.ResetLoginAttempts(ctx, username); err != nil {
		return err
	}

	var userID *uint
	if user, err := s.users.FindByUsername(ctx, username); err == nil {
		userID = &user.ID
	}

	s.audit.Log(ctx, s.auditEntry(models.ActionAccountUnlocked, userID, meta, map[string]any{
		"username": username,
		"actorId":  actorID,
	}))
	return nil
}
