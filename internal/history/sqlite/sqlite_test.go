package sqlite_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
	_ "github.com/zimlet-labs/nextcloud-gateway/internal/history/sqlite"
)

func TestMissingPath(t *testing.T) {
	_, err := history.New("sqlite", nil)
	if err == nil || !strings.Contains(err.Error(), "path") {
		t.Fatalf("expected path error, got %v", err)
	}
}

func TestAppendPersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := history.New("sqlite", map[string]any{"path": dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	entries := []*history.Entry{
		{ID: "e1", AccountID: "alice", Action: "propfind", Target: "/Docs", Outcome: "ok", CreatedAt: 100},
		{ID: "e2", AccountID: "alice", Action: "createShare", Target: "/Docs/a.md", Outcome: "ok", CreatedAt: 200},
		{ID: "e3", AccountID: "bob", Action: "put", Target: "/y", Outcome: "error", CreatedAt: 300},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := history.New("sqlite", map[string]any{"path": dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("Init after reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.ListByAccount(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListByAccount: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "e2" || got[1].ID != "e1" {
		t.Fatalf("unexpected order: %q, %q", got[0].ID, got[1].ID)
	}

	limited, err := reopened.ListByAccount(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("ListByAccount limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "e2" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}
}

func TestClosedStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := history.New("sqlite", map[string]any{"path": dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Append(ctx, &history.Entry{ID: "e", AccountID: "a"}); err != history.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
