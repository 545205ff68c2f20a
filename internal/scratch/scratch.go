// Package scratch hands out private, request-scoped directories for
// temporary audio files and removes them again.
package scratch

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NormalizedName is the file name of the transcoded WAV inside a workspace.
const NormalizedName = "normalized.wav"

const uploadStem = "upload"

// UploadName is the stored name of a raw upload: a fixed stem plus the
// extension of the client's file name, so it can never equal NormalizedName.
// Names that reduce to nothing are rejected.
func UploadName(clientName string) (string, error) {
	base := filepath.Base(clientName)
	switch base {
	case ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("invalid file name %q", clientName)
	}
	return uploadStem + filepath.Ext(base), nil
}

// Store is the working directory under which request workspaces are created.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Acquire creates a new workspace directory named by a random UUID.
// Creating the root is idempotent and safe to race.
func (s *Store) Acquire() (*Workspace, error) {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{ID: id, Dir: dir}, nil
}

// Sweep removes workspace directories whose modification time is older than
// maxAge. It returns how many were removed. Active requests refresh their
// directory with Touch between stages, so maxAge must exceed the longest
// single stage.
func (s *Store) Sweep(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read scratch root: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := uuid.Parse(e.Name()); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Workspace is one request's private directory. Release on a nil or zero
// Workspace is a no-op.
type Workspace struct {
	ID  string
	Dir string

	mu    sync.Mutex
	files []string
}

// Path returns the location of name inside the workspace. Only the base
// name of the client-supplied value is kept.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.Dir, filepath.Base(name))
}

// Track records a path for removal on Release.
func (w *Workspace) Track(path string) {
	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()
}

// Touch marks the workspace as in use so Sweep leaves it alone.
func (w *Workspace) Touch() error {
	now := time.Now()
	return os.Chtimes(w.Dir, now, now)
}

// WriteFile streams r into the workspace under name and returns the written path
// and byte count.
func (w *Workspace) WriteFile(name string, r io.Reader) (string, int64, error) {
	path := w.Path(name)
	if path == w.Dir || filepath.Dir(path) != w.Dir {
		return "", 0, fmt.Errorf("invalid file name %q", name)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	w.Track(path)

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return path, n, fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return path, n, nil
}

// Release deletes every tracked file and then the workspace directory.
// Files that were never created are ignored. It never retries; the caller
// decides whether to log the returned error.
func (w *Workspace) Release() error {
	if w == nil || w.Dir == "" {
		return nil
	}

	w.mu.Lock()
	files := w.files
	w.files = nil
	w.mu.Unlock()

	var errs []error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
