package mailexport

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zimlet-labs/nextcloud-gateway/internal/appctx"
)

// Artifact is the exportable form of a mail item. Closing Body releases
// every temporary resource behind it.
type Artifact struct {
	Body        io.ReadCloser
	ContentType string

	// Extension is appended to the upload file name, dot included.
	Extension string
}

// Strategy converts a fetched mail body into its exportable form.
type Strategy interface {
	Produce(ctx context.Context, mail io.Reader) (*Artifact, error)
}

// RawStrategy uploads the mail body unchanged.
type RawStrategy struct{}

func (RawStrategy) Produce(ctx context.Context, mail io.Reader) (*Artifact, error) {
	return &Artifact{
		Body:        io.NopCloser(mail),
		ContentType: "message/rfc822",
		Extension:   ".eml",
	}, nil
}

// RendererStrategy renders the mail body to a document via an external
// converter subprocess. The subprocess is bounded by a hard timeout and
// both temporary files are deleted on every exit path.
type RendererStrategy struct {
	// Command is the converter binary, invoked as: command <in> <out>.
	Command string

	// Timeout bounds the subprocess run.
	Timeout time.Duration

	// TempDir is where transfer files are created. Empty uses os.TempDir.
	TempDir string
}

func (s *RendererStrategy) Produce(ctx context.Context, mail io.Reader) (*Artifact, error) {
	dir := s.TempDir
	if dir == "" {
		dir = os.TempDir()
	}

	name := uuid.NewString()
	inPath := filepath.Join(dir, name+".html")
	outPath := filepath.Join(dir, name+".pdf")

	if err := writeFile(inPath, mail); err != nil {
		return nil, fmt.Errorf("write renderer input: %w", err)
	}

	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, s.Command, inPath, outPath)
	if out, err := cmd.CombinedOutput(); err != nil {
		removeQuietly(ctx, inPath, outPath)
		return nil, fmt.Errorf("renderer failed: %w (output: %s)", err, truncate(out, 512))
	}

	f, err := os.Open(outPath)
	if err != nil {
		removeQuietly(ctx, inPath, outPath)
		return nil, fmt.Errorf("open renderer output: %w", err)
	}

	return &Artifact{
		Body:        &cleanupReader{ctx: ctx, f: f, paths: []string{inPath, outPath}},
		ContentType: "application/pdf",
		Extension:   ".pdf",
	}, nil
}

// cleanupReader deletes the temp files once the artifact is closed.
type cleanupReader struct {
	ctx   context.Context
	f     *os.File
	paths []string
}

func (r *cleanupReader) Read(p []byte) (int, error) { return r.f.Read(p) }

func (r *cleanupReader) Close() error {
	err := r.f.Close()
	removeQuietly(r.ctx, r.paths...)
	return err
}

func writeFile(path string, content io.Reader) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(f, content)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		removeQuietly(context.Background(), path)
	}
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

// removeQuietly deletes transfer files best-effort. Deletion errors are
// logged and swallowed, never escalated.
func removeQuietly(ctx context.Context, paths ...string) {
	logger := appctx.GetLogger(ctx)
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove transfer file", "path", p, "error", err)
		}
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
