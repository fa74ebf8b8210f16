package mailexport_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zimlet-labs/nextcloud-gateway/internal/mailexport"
)

func TestRawStrategy(t *testing.T) {
	artifact, err := mailexport.RawStrategy{}.Produce(context.Background(), strings.NewReader("raw mail"))
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}
	defer artifact.Body.Close()

	if artifact.Extension != ".eml" {
		t.Errorf("expected .eml extension, got %q", artifact.Extension)
	}
	if artifact.ContentType != "message/rfc822" {
		t.Errorf("unexpected content type %q", artifact.ContentType)
	}
	body, _ := io.ReadAll(artifact.Body)
	if string(body) != "raw mail" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestRendererStrategy_CleansUpOnSuccess(t *testing.T) {
	dir := t.TempDir()

	// cp renders the "input" to the "output" verbatim, standing in for
	// the real converter binary.
	s := &mailexport.RendererStrategy{
		Command: "cp",
		Timeout: 5 * time.Second,
		TempDir: dir,
	}

	artifact, err := s.Produce(context.Background(), strings.NewReader("<html>mail</html>"))
	if err != nil {
		t.Fatalf("Produce() error = %v", err)
	}

	if artifact.Extension != ".pdf" {
		t.Errorf("expected .pdf extension, got %q", artifact.Extension)
	}

	body, err := io.ReadAll(artifact.Body)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(body) != "<html>mail</html>" {
		t.Errorf("unexpected artifact content %q", body)
	}

	if err := artifact.Body.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	leftover, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(leftover) != 0 {
		t.Errorf("transfer files not cleaned up: %v", leftover)
	}
}

func TestRendererStrategy_CleansUpOnFailure(t *testing.T) {
	dir := t.TempDir()

	s := &mailexport.RendererStrategy{
		Command: "false",
		Timeout: 5 * time.Second,
		TempDir: dir,
	}

	_, err := s.Produce(context.Background(), strings.NewReader("input"))
	if err == nil {
		t.Fatal("expected renderer failure")
	}

	leftover, globErr := filepath.Glob(filepath.Join(dir, "*"))
	if globErr != nil {
		t.Fatalf("glob: %v", globErr)
	}
	if len(leftover) != 0 {
		t.Errorf("transfer files not cleaned up after failure: %v", leftover)
	}
}

// brokenReader fails partway through, after writeFile has created the
// input file.
type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestRendererStrategy_CleansUpOnInputWriteFailure(t *testing.T) {
	dir := t.TempDir()

	s := &mailexport.RendererStrategy{
		Command: "cp",
		Timeout: 5 * time.Second,
		TempDir: dir,
	}

	_, err := s.Produce(context.Background(), brokenReader{})
	if err == nil {
		t.Fatal("expected input write failure")
	}

	leftover, globErr := filepath.Glob(filepath.Join(dir, "*"))
	if globErr != nil {
		t.Fatalf("glob: %v", globErr)
	}
	if len(leftover) != 0 {
		t.Errorf("transfer files not cleaned up after input write failure: %v", leftover)
	}
}

func TestRendererStrategy_MissingBinary(t *testing.T) {
	dir := t.TempDir()

	s := &mailexport.RendererStrategy{
		Command: filepath.Join(dir, "does-not-exist"),
		Timeout: time.Second,
		TempDir: dir,
	}

	_, err := s.Produce(context.Background(), strings.NewReader("input"))
	if err == nil {
		t.Fatal("expected error for missing renderer binary")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		t.Errorf("leftover transfer file %s", e.Name())
	}
}
