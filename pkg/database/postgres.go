package database

import (
	"fmt"
	"log"
	"time"

	"reportdesk/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func Connect(config Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Println("Database connected successfully")
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS \"uuid-ossp\"").Error; err != nil {
		return fmt.Errorf("failed to create uuid extension: %w", err)
	}

	err := db.AutoMigrate(
		&models.Report{},
		&models.Pick{},
		&models.ImportAudit{},
		&models.PickHistory{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	log.Println("Database migration completed successfully")
	return nil
}

func createIndexes(db *gorm.DB) error {
	// Audit listing is always newest-first, usually filtered by status.
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_import_audits_started_status ON import_audits(started_at DESC, status)").Error; err != nil {
		return err
	}

	// Checksum duplicate pre-check scans successful reports by checksum.
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_reports_source_checksum ON reports(source_checksum) WHERE source_checksum IS NOT NULL").Error; err != nil {
		return err
	}

	// Public historical table sorts by date, filters by ticker.
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_pick_histories_date_ticker ON pick_histories(report_date DESC, ticker)").Error; err != nil {
		return err
	}

	return nil
}
