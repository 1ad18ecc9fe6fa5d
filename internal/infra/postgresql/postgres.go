package postgresql

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const connectTimeout = 30 * time.Second

// NewPostgres opens the database, retrying with exponential backoff so the
// engine survives the database coming up after it in orchestrated deploys.
func NewPostgres(dsn string) (*gorm.DB, error) {
	var db *gorm.DB

	connect := func() error {
		var err error
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:                 logger.Default.LogMode(logger.Warn),
			SkipDefaultTransaction: true,
		})
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = connectTimeout
	if err := backoff.Retry(connect, policy); err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}
