package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/onegreenvn/green-outreach-services-backend/internal/config"
	"github.com/onegreenvn/green-outreach-services-backend/internal/models"
)

// InitDB opens the database connection and performs migrations
func InitDB(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Name == "" {
		return nil, fmt.Errorf("missing required database environment variables. Please check your .env file")
	}

	// Configure GORM logger
	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Enable UUID extension
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\" SCHEMA public").Error; err != nil {
		return nil, fmt.Errorf("failed to enable UUID extension: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logrus.Info("Database connection established and migrations completed")
	return db, nil
}

// Migrate creates or updates every table the service owns
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Lead{},
		&models.Campaign{},
		&models.CampaignStep{},
		&models.Enrollment{},
		&models.CreditBalance{},
		&models.CreditTransaction{},
		&models.BatchCampaign{},
		&models.BatchCampaignRecipient{},
		&models.ScheduledMessage{},
		&models.ProcessLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Migration: balance can never go below zero
	var checkExists bool
	err = db.Raw(`
		SELECT EXISTS (
			SELECT 1
			FROM pg_constraint
			WHERE conname = 'chk_credit_balances_non_negative'
		)
	`).Scan(&checkExists).Error
	if err != nil {
		logrus.Warnf("Failed to check if balance constraint exists: %v", err)
	} else if !checkExists {
		logrus.Info("Adding non-negative constraint to credit_balances...")
		err = db.Exec("ALTER TABLE credit_balances ADD CONSTRAINT chk_credit_balances_non_negative CHECK (balance >= 0)").Error
		if err != nil {
			return fmt.Errorf("failed to add balance constraint: %w", err)
		}
	}

	// Migration: partial index for the drip sweep
	err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_enrollments_due_active
		ON enrollments(next_send_at)
		WHERE status = 'active'
	`).Error
	if err != nil {
		logrus.Warnf("Failed to create partial due index on enrollments: %v", err)
	}

	return nil
}
