package db

import (
	"strings"
	"time"

	"github.com/Fi44er/email_attestation_bot/internal/models"
	"github.com/Fi44er/email_attestation_bot/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"

	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ConnectDb opens postgres for postgres:// URLs and an embedded sqlite file otherwise.
func ConnectDb(url string, log *utils.Logger) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: newGormLogger(log),
	}

	var dialector gorm.Dialector
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		dialector = postgres.New(postgres.Config{
			DSN:                  url,
			PreferSimpleProtocol: true,
		})
	} else {
		dialector = sqlite.Open(strings.TrimPrefix(url, "sqlite://") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	log.Info("✅ Database connection successfully")

	log.Info("📦 Setting database connection pool...")
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if dialector.Name() == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(20)
		sqlDB.SetMaxOpenConns(200)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// gormWriter sends gorm's error lines to the application log.
type gormWriter struct {
	log *utils.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Errorf(format, args...)
}

// newGormLogger reports failed queries only. A missing row is an expected
// lookup result, not an error.
func newGormLogger(log *utils.Logger) gormLogger.Interface {
	return gormLogger.New(gormWriter{log: log}, gormLogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLogger.Error,
		IgnoreRecordNotFoundError: true,
	})
}

func Migrate(db *gorm.DB, trigger bool, log *utils.Logger) error {
	if trigger {
		log.Info("📦 Migrating database...")
		if err := db.AutoMigrate(models.AllModels()...); err != nil {
			log.Errorf("✖ Failed to migrate database: %v", err)
			return err
		}
	}

	log.Info("✅ Database schema is up to date")
	return nil
}
