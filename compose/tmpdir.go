package compose

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"
)

// CleanupError reports that a released directory could not be confirmed
// gone from disk.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup of %s failed: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// TempDir owns a uniquely named directory under the system temp root. The
// directory's base name doubles as the compose project name, so it must be
// unique per project instance.
type TempDir struct {
	path   string
	logger *slog.Logger

	mu       sync.Mutex
	released bool
}

// NewTempDir creates the directory. The name embeds a ULID, so concurrent
// callers never collide.
func NewTempDir(prefix string, logger *slog.Logger) (*TempDir, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	name := "berth_" + sanitizeDirName(prefix) + "_" + strings.ToLower(ulid.Make().String())
	path := filepath.Join(os.TempDir(), name)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempDir{path: path, logger: logger}, nil
}

// Path is the absolute directory path.
func (d *TempDir) Path() string { return d.path }

// Name is the directory's base name.
func (d *TempDir) Name() string { return filepath.Base(d.path) }

// WriteFile writes a file into the directory atomically: content lands
// under a temporary name and is renamed into place, so a reader never
// observes a partial file. The name must be a bare file name.
func (d *TempDir) WriteFile(name string, data []byte) error {
	if name == "" || name != filepath.Base(name) || filepath.IsAbs(name) {
		return fmt.Errorf("invalid file name %q: must be a bare name", name)
	}
	tmp, err := os.CreateTemp(d.path, name+".*")
	if err != nil {
		return fmt.Errorf("stage %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("stage %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.path, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish %s: %w", name, err)
	}
	return nil
}

// Release removes the directory tree. It reports success only once the
// path is confirmed absent; anything still on disk surfaces as a
// CleanupError. Safe to call more than once.
func (d *TempDir) Release() error {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return nil
	}
	d.released = true
	d.mu.Unlock()

	if err := os.RemoveAll(d.path); err != nil {
		return &CleanupError{Path: d.path, Err: err}
	}
	switch _, err := os.Stat(d.path); {
	case err == nil:
		return &CleanupError{Path: d.path, Err: errors.New("path still exists after removal")}
	case !errors.Is(err, fs.ErrNotExist):
		return &CleanupError{Path: d.path, Err: err}
	}
	return nil
}

// Detach announces that the directory is intentionally retained: owners
// performing automatic cleanup stop calling Release. An explicit Release
// still removes the directory.
func (d *TempDir) Detach() {
	d.logger.Info("temp dir detached, retained on disk", slog.String("path", d.path))
}

// sanitizeDirName keeps the generated directory name within the character
// set compose accepts for project names.
func sanitizeDirName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if out := strings.Trim(b.String(), "_"); out != "" {
		return out
	}
	return "project"
}
