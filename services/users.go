package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Krish-Depani/showcase-auth/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dummyHash is compared against when a username is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type UserService struct {
	db   *gorm.DB
	cost int
	now  func() time.Time
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db:   db,
		cost: bcrypt.DefaultCost,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

func (s *UserService) WithTx(tx *gorm.DB) *UserService {
	clone := *s
	clone.db = tx
	return &clone
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *UserService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", NormalizeUsername(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user by username: %w", err)
	}
	return &user, nil
}

func (s *UserService) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user %d: %w", id, err)
	}
	return &user, nil
}

// VerifyCredentials returns the user when password matches. On mismatch the
// user is still returned alongside ErrInvalidCredentials so callers can
// attribute the failure; an unknown username returns a nil user.
func (s *UserService) VerifyCredentials(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !CheckPassword(user.PasswordHash, password) {
		return user, ErrInvalidCredentials
	}
	return user, nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *UserService) CreateUser(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("create user: unknown role %q", role)
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Username:     NormalizeUsername(username),
		PasswordHash: hash,
		Role:         role,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// DeleteUser refuses to remove the last ADMIN.
func (s *UserService) DeleteUser(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("load user %d: %w", id, err)
		}

		if user.Role == models.RoleAdmin {
			// Locking every admin row serializes concurrent admin deletes.
			var admins []uint
			if err := tx.Model(&models.User{}).
				Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("role = ?", models.RoleAdmin).
				Pluck("id", &admins).Error; err != nil {
				return fmt.Errorf("count admins: %w", err)
			}
			if len(admins) <= 1 {
				return ErrLastAdmin
			}
		}

		if err := tx.Where("user_id = ?", id).Delete(&models.UserSession{}).Error; err != nil {
			return fmt.Errorf("delete sessions of user %d: %w", id, err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.PasswordResetCode{}).Error; err != nil {
			return fmt.Errorf("delete reset codes of user %d: %w", id, err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user %d: %w", id, err)
		}
		return nil
	})
}

func (s *UserService) UpdatePassword(ctx context.Context, userID uint, password string) error {
	hash, err := s.HashPassword(password)
	if err != nil {
		return err
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"password_hash": hash,
		"updated_at":    s.now(),
	})
	if result.Error != nil {
		return fmt.Errorf("update password of user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserService) TouchLastLogin(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("last_login", s.now()).Error; err != nil {
		return fmt.Errorf("update last login of user %d: %w", userID, err)
	}
	return nil
}

// EnsureAdmin creates an ADMIN with the given credentials unless the
// username already exists. It reports whether a user was created.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) (bool, error) {
	if _, err := s.FindByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return false, err
	}

	if _, err := s.CreateUser(ctx, username, password, models.RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}
