// Package workspace materializes uploaded artifacts as short-lived files.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// Manager creates workspaces under a shared directory. Paths are unique per
// call, so concurrent scans never need to coordinate.
type Manager struct {
	dir string
}

// NewManager returns a Manager rooted at dir. An empty dir means os.TempDir().
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

// Workspace is a single artifact file exclusively owned by one scan.
type Workspace struct {
	path string
	once sync.Once
	err  error
}

// Acquire writes content to a fresh file whose name ends in ext. The content
// is synced to disk before the workspace is returned.
func (m *Manager) Acquire(content []byte, ext string) (*Workspace, error) {
	pattern := "scan-*"
	if ext != "" {
		pattern += "." + ext
	}

	f, err := os.CreateTemp(m.dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("create workspace file: %w", err)
	}
	ws := &Workspace{path: f.Name()}

	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		_ = ws.Release()
		return nil, fmt.Errorf("write workspace file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = ws.Release()
		return nil, fmt.Errorf("sync workspace file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = ws.Release()
		return nil, fmt.Errorf("close workspace file: %w", err)
	}
	return ws, nil
}

func (w *Workspace) Path() string {
	return w.path
}

// Release deletes the file. It is idempotent, and a file that has already
// disappeared is not an error.
func (w *Workspace) Release() error {
	w.once.Do(func() {
		err := os.Remove(w.path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.err = fmt.Errorf("remove workspace %s: %w", w.path, err)
		}
	})
	return w.err
}
