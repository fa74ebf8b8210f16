package history

import (
	"context"
	"sync"
)

func init() {
	Register("memory", NewMemory)
}

// memorySettings holds memory driver settings.
type memorySettings struct {
	// MaxEntries bounds the kept history; oldest entries are dropped.
	MaxEntries int `json:"max_entries"`
}

// Memory is an in-process bounded history store. The zero limit keeps
// the last 1000 entries.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
	max     int
	closed  bool
}

// NewMemory creates a memory store from loose settings.
func NewMemory(settings map[string]any) (Store, error) {
	var s memorySettings
	if err := DecodeSettings(settings, &s); err != nil {
		return nil, err
	}
	if s.MaxEntries <= 0 {
		s.MaxEntries = 1000
	}
	return &Memory{max: s.MaxEntries}, nil
}

func (m *Memory) Init(ctx context.Context) error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Append(ctx context.Context, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.entries = append(m.entries, entry)
	if len(m.entries) > m.max {
		m.entries = m.entries[len(m.entries)-m.max:]
	}
	return nil
}

func (m *Memory) ListByAccount(ctx context.Context, accountID string, limit int) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	var out []*Entry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].AccountID != accountID {
			continue
		}
		out = append(out, m.entries[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
