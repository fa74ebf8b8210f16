// Package json implements a JSON file-based history store.
// It uses atomic writes (temp file + rename) and in-process locking.
package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
)

func init() {
	history.Register("json", NewStore)
}

// settings holds json driver settings.
type settings struct {
	// DataDir is the directory holding the history file.
	DataDir string `json:"data_dir"`
}

const fileName = "history.json"

// Store implements history.Store on a single JSON file.
type Store struct {
	dataDir string

	mu      sync.RWMutex
	entries []*history.Entry
	closed  bool
}

// NewStore creates a json store from loose settings.
func NewStore(raw map[string]any) (history.Store, error) {
	var s settings
	if err := history.DecodeSettings(raw, &s); err != nil {
		return nil, err
	}
	if s.DataDir == "" {
		return nil, fmt.Errorf("data_dir is required for json history driver")
	}
	return &Store{dataDir: s.DataDir}, nil
}

func (s *Store) Name() string { return "json" }

// Init creates the data directory and loads existing entries.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, fileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to load history: %w", err)
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return fmt.Errorf("failed to parse history: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) Append(ctx context.Context, entry *history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return history.ErrClosed
	}

	s.entries = append(s.entries, entry)
	return s.persistLocked()
}

func (s *Store) ListByAccount(ctx context.Context, accountID string, limit int) ([]*history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, history.ErrClosed
	}

	var out []*history.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].AccountID != accountID {
			continue
		}
		out = append(out, s.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// persistLocked writes the file atomically. Callers hold the lock.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dataDir, fileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
