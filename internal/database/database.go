package database

import (
	"fmt"
	"log/slog"
	"time"

	"stream-gateway/internal/config"
	"stream-gateway/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	maxConnectAttempts = 5
	retryDelay         = 2 * time.Second
)

// NewConnection opens the identity database using the configured dialect,
// retrying the initial connection a few times.
func NewConnection(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= maxConnectAttempts; attempt++ {
		db, err = gorm.Open(dialector, &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
		if err == nil {
			break
		}
		slog.Warn("Failed to connect to database", "attempt", attempt, "maxAttempts", maxConnectAttempts, "error", err)
		time.Sleep(retryDelay)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxConnectAttempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("Database connection established", "driver", cfg.Driver)
	return db, nil
}

// Migrate creates or updates the identity tables.
func Migrate(db *gorm.DB) error {
	modelsToMigrate := []interface{}{
		&models.User{},
		&models.Role{},
		&models.UserRole{},
	}
	for _, model := range modelsToMigrate {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model: %w", err)
		}
	}
	return nil
}
