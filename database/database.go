// Package database owns the process-wide store handles: one gorm pool for
// the relational store and an optional Redis client. Both are created once
// in main and closed on shutdown.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Krish-Depani/showcase-auth/config"
	"github.com/Krish-Depani/showcase-auth/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured relational store and tunes its pool.
func Open(env *config.Env) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch env.DBDriver {
	case "mysql":
		db, err = NewMySQLClient(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort, cfg)
	default:
		db, err = NewPostgresClient(env.DBHost, env.DBUser, env.DBPassword, env.DBName, env.DBPort, env.DBSSLMode, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", env.DBDriver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", env.DBDriver, err)
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserSession{},
		&models.AuditLog{},
		&models.PasswordResetCode{},
	)
}

// Close drains the pool. Errors are logged since shutdown has nowhere to
// report them.
func Close(db *gorm.DB, log *slog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("get sql handle on shutdown", "error", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error("close database", "error", err)
	}
}
