// Package history records gateway actions for auditing.
package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// Common errors for history operations.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("history store closed")
)

// Entry is one recorded gateway action.
type Entry struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccountID string `json:"account_id" gorm:"index"`
	Action    string `json:"action"`
	Target    string `json:"target"`
	Outcome   string `json:"outcome"` // ok, error
	Detail    string `json:"detail,omitempty"`
	CreatedAt int64  `json:"created_at" gorm:"index"`
}

// Store persists action history. Implementations must be safe for
// concurrent use.
type Store interface {
	// Init prepares the backend (create tables, load data, etc).
	Init(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error

	// Name returns the driver name.
	Name() string

	// Append records one entry.
	Append(ctx context.Context, entry *Entry) error

	// ListByAccount returns the most recent entries for an account,
	// newest first, capped at limit.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]*Entry, error)
}

// Factory creates a store from driver-specific settings.
type Factory func(settings map[string]any) (Store, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register registers a driver factory by name. Typically called from
// init() in driver packages.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// New creates a store for the named driver. settings carries the
// driver-specific section of the configuration.
func New(driver string, settings map[string]any) (Store, error) {
	if driver == "" {
		driver = "memory"
	}

	driversMu.RLock()
	factory, ok := drivers[driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown history driver: %s", driver)
	}

	return factory(settings)
}

// DecodeSettings maps loose configuration values onto a driver's
// settings struct. Driver packages use it to interpret their section
// of the configuration.
func DecodeSettings(settings map[string]any, out any) error {
	if settings == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "json",
	})
	if err != nil {
		return err
	}
	return dec.Decode(settings)
}
