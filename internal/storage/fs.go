package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/cdot/Squirrel-sub002/internal/apperr"
	"github.com/cdot/Squirrel-sub002/internal/checksum"
)

// FS implements Provider backed by a local directory. Writes go through a
// temp file and rename so readers never see a partial document.
type FS struct {
	root string // absolute path to the store directory
	mu   sync.Mutex
}

// NewFS creates a new FS provider rooted at the given directory, creating
// it if needed.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (f *FS) Root() string { return f.root }

// Path returns the absolute file path backing name.
func (f *FS) Path(name string) (string, error) { return f.safePath(name) }

// safePath resolves name against the root and rejects any result that
// escapes it.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: empty object name: %w", apperr.ErrMalformed)
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", name, apperr.ErrMalformed)
	}
	abs, err := filepath.Abs(filepath.Join(f.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("storage: path escapes store root: %s: %w", name, apperr.ErrMalformed)
	}
	return abs, nil
}

// Read returns the bytes of a stored document.
func (f *FS) Read(_ context.Context, name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: read %s: %w", name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically replaces name.
func (f *FS) Write(_ context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(name, data)
}

func (f *FS) write(name string, data []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	if err := atomic.WriteFile(abs, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

// WriteIf replaces name only if its current digest equals sum. Concurrent
// writers are serialised within this process only.
func (f *FS) WriteIf(ctx context.Context, name string, data []byte, sum string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, err := f.Read(ctx, name)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if sum != "" {
			return fmt.Errorf("storage: write %s: object is gone: %w", name, apperr.ErrConflict)
		}
	case err != nil:
		return err
	case checksum.Sum(cur) != sum:
		return fmt.Errorf("storage: write %s: changed since read: %w", name, apperr.ErrConflict)
	}
	return f.write(name, data)
}

// Delete removes a stored document.
func (f *FS) Delete(_ context.Context, name string) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(abs); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: delete %s: %w", name, apperr.ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

// List walks the root and describes every regular file.
func (f *FS) List(_ context.Context) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(f.root, p)
		out = append(out, Object{
			Name:      filepath.ToSlash(rel),
			Size:      info.Size(),
			Checksum:  checksum.Sum(data),
			UpdatedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	return out, nil
}

var _ Conditional = (*FS)(nil)
