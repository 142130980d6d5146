package distributor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/teemow/gistflow/internal/gist"
	"github.com/teemow/gistflow/internal/retry"
)

// LocalDestination writes one file per record into a directory.
type LocalDestination struct {
	dir    string
	format string
	policy retry.Policy
	now    func() time.Time
}

// NewLocalDestination returns a destination writing markdown or json files
// into dir. The directory is created on first write.
func NewLocalDestination(dir, format string, policy retry.Policy) (*LocalDestination, error) {
	if dir == "" {
		return nil, gist.Configuration("local", errors.New("storage path is required"))
	}
	switch format {
	case "", FormatMarkdown:
		format = FormatMarkdown
	case FormatJSON:
	default:
		return nil, gist.Configuration("local", fmt.Errorf("unknown format %q", format))
	}
	return &LocalDestination{dir: dir, format: format, policy: policy, now: time.Now}, nil
}

// Kind implements Destination.
func (l *LocalDestination) Kind() gist.DestinationKind {
	return gist.DestinationLocal
}

// Publish writes the file and returns its path. An existing file with the
// same name is replaced.
func (l *LocalDestination) Publish(ctx context.Context, rec gist.Record) (string, error) {
	var (
		data []byte
		err  error
	)
	now := l.now()
	if l.format == FormatJSON {
		data, err = RenderJSON(rec)
	} else {
		data, err = RenderMarkdown(rec, now)
	}
	if err != nil {
		return "", err
	}

	path := filepath.Join(l.dir, Filename(rec, l.format, now))
	err = l.policy.Do(ctx, "local.write", func() error {
		return classifyFSError(writeFileAtomic(l.dir, path, data))
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// writeFileAtomic writes through a temporary file so readers never see a
// partial gist.
func writeFileAtomic(dir, path string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".gist-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// classifyFSError treats permission and path problems as configuration
// errors and everything else as transient.
func classifyFSError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrExist), errors.Is(err, fs.ErrNotExist):
		return gist.Configuration("local.write", err)
	default:
		return gist.Transient("local.write", err)
	}
}
