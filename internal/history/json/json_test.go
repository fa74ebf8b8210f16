package json_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zimlet-labs/nextcloud-gateway/internal/history"
	_ "github.com/zimlet-labs/nextcloud-gateway/internal/history/json"
)

func TestMissingDataDir(t *testing.T) {
	_, err := history.New("json", nil)
	if err == nil || !strings.Contains(err.Error(), "data_dir") {
		t.Fatalf("expected data_dir error, got %v", err)
	}
}

func TestAppendPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := history.New("json", map[string]any{"data_dir": dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}

	entries := []*history.Entry{
		{ID: "e1", AccountID: "alice", Action: "createShare", Target: "/Docs/a.md", Outcome: "ok", CreatedAt: 100},
		{ID: "e2", AccountID: "alice", Action: "put", Target: "/Docs/b.md", Outcome: "error", Detail: "remote status 502", CreatedAt: 200},
		{ID: "e3", AccountID: "bob", Action: "get", Target: "/x", Outcome: "ok", CreatedAt: 300},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "history.json")); err != nil {
		t.Fatalf("history file not written: %v", err)
	}

	reopened, err := history.New("json", map[string]any{"data_dir": dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("Init after reopen: %v", err)
	}

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
	if got[0].Detail != "remote status 502" {
		t.Fatalf("detail not persisted: %q", got[0].Detail)
	}
}

func TestNoTempFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := history.New("json", map[string]any{"data_dir": dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := s.Append(ctx, &history.Entry{ID: "e1", AccountID: "a", Outcome: "ok"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}
