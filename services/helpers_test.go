package services

import (
	"context"
	"testing"

	"github.com/Krish-Depani/showcase-auth/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newUsers(db *gorm.DB) *UserService {
	return NewUserService(db).WithHashCost(bcrypt.MinCost)
}

func createUser(t *testing.T, users *UserService, username, password string, role models.Role) *models.User {
	t.Helper()
	u, err := users.CreateUser(context.Background(), username, password, role)
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}
