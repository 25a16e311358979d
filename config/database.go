package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stegoshield/stegoshield-api/models"
)

const sqlitePrefix = "sqlite://"

// Connect opens the database named by env.DatabaseURL, sizes the pool and
// migrates the schema. A sqlite:// URL selects SQLite for local runs.
func Connect(env Environment) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(env.DatabaseURL, sqlitePrefix) {
		dialector = sqlite.Open(strings.TrimPrefix(env.DatabaseURL, sqlitePrefix))
	} else {
		dialector = postgres.Open(env.DatabaseURL)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger(), TranslateError: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get sql.DB")
	}
	sqlDB.SetMaxOpenConns(env.DBMaxOpenConns)
	sqlDB.SetMaxIdleConns(env.DBMaxIdleConns)
	sqlDB.SetConnMaxLifetime(env.DBConnMaxLifetime)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(&models.User{}, &models.Upload{}, &models.Result{})
	return errors.Wrap(err, "failed to auto migrate database")
}

func gormLogger() logger.Interface {
	return logger.New(Log, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
