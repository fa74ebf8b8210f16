// Package sqlite implements a SQLite-backed history store using GORM.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
)

func init() {
	history.Register("sqlite", NewStore)
}

// settings holds sqlite driver settings.
type settings struct {
	// Path is the SQLite database file.
	Path string `json:"path"`
}

// Store implements history.Store on a SQLite database.
type Store struct {
	path string

	mu     sync.Mutex
	db     *gorm.DB
	closed bool
}

// NewStore creates a sqlite store from loose settings.
func NewStore(raw map[string]any) (history.Store, error) {
	var s settings
	if err := history.DecodeSettings(raw, &s); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, fmt.Errorf("path is required for sqlite history driver")
	}
	return &Store{path: s.Path}, nil
}

func (s *Store) Name() string { return "sqlite" }

// Init opens the database and migrates the schema.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&history.Entry{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Append(ctx context.Context, entry *history.Entry) error {
	s.mu.Lock()
	db, closed := s.db, s.closed
	s.mu.Unlock()
	if closed || db == nil {
		return history.ErrClosed
	}

	return db.WithContext(ctx).Create(entry).Error
}

func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]*history.Entry, error) {
	s.mu.Lock()
	db, closed := s.db, s.closed
	s.mu.Unlock()
	if closed || db == nil {
		return nil, history.ErrClosed
	}

	q := db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []*history.Entry
	if err := q.Find(&entries).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, history.ErrNotFound
		}
		return nil, err
	}
	return entries, nil
}
