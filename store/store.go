// Package store provides the reference persistence adapter for the control
// plane. It implements only the access shape the spec requires of a record
// store (business-key upserts, no back-pointers between tables); a production
// deployment is free to swap in any engine behind the same method set.
package store

import (
	"fmt"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the single entry point into the persistence layer. All business
// tables are reached through it rather than handed out as raw *gorm.DB.
type Store struct {
	db *gorm.DB
	mu sync.RWMutex
}

// New opens (creating if necessary) a SQLite-backed store at path and
// migrates every table the control plane owns.
func New(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

// NewFromDB wraps an already-open *gorm.DB, migrating the control plane's
// tables into it. Used by tests that share an in-memory database.
func NewFromDB(db *gorm.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&TraderAccountModel{},
		&PositionModel{},
		&TradeModel{},
		&GridInstanceModel{},
		&GridLevelModel{},
		&GridEventModel{},
		&MarketSnapshotModel{},
		&DecisionRecordModel{},
	)
}

// Transaction runs fn inside a single database transaction, rolling back on
// any returned error.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.db.Transaction(fn)
}

// DB exposes the underlying handle for callers that need a raw query.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
