package persistence

import (
	"fmt"
	"time"

	"github.com/billflow/backend/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database owns the GORM handle the repositories share.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens a pooled PostgreSQL connection and verifies it with a
// ping, so a bad DSN fails at startup rather than on the first request.
// The default per-statement transaction is skipped: multi-write paths use
// Transaction explicitly, and everything else is a single statement.
func NewDatabase(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("accessing connection pool: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close drains the connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("accessing connection pool: %w", err)
	}
	return sqlDB.Close()
}

// Ping reports whether the database is reachable; the health endpoint
// calls it per check.
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("accessing connection pool: %w", err)
	}
	return sqlDB.Ping()
}

// Transaction runs fn inside a transaction, committing on nil and rolling
// back on error.
func (d *Database) Transaction(fn func(tx *gorm.DB) error) error {
	return d.DB.Transaction(fn)
}
