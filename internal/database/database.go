package database

import (
	"fmt"
	"time"

	"github.com/sjperalta/crm-api/internal/models"
	pkgLogger "github.com/sjperalta/crm-api/pkg/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold flags statements worth a warning.
const slowQueryThreshold = 500 * time.Millisecond

// Connect opens the PostgreSQL database. Outside production every statement
// is traced at debug level.
func Connect(databaseURL, environment string) (*gorm.DB, error) {
	logLevel := logger.Warn
	if environment != "production" {
		logLevel = logger.Info
	}
	gormLogger := pkgLogger.NewGormLogger(logLevel, slowQueryThreshold)

	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Background imports and request traffic share the pool
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Migrate creates or updates the client, audit and saved filter tables.
// Audit entries reference clients by id only so they outlive deleted clients.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Client{}, &models.AuditLog{}, &models.SavedFilter{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
