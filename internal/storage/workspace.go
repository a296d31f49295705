package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Workspace hands out one staging directory per run under a shared root.
type Workspace struct {
	root string
}

// NewWorkspace creates root if needed.
func NewWorkspace(root string) (*Workspace, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Workspace{root: root}, nil
}

var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Open creates the directory for runID. Concurrent runs never share a directory.
func (w *Workspace) Open(runID string) (*RunDir, error) {
	if !runIDPattern.MatchString(runID) {
		return nil, ErrInvalidRunID
	}

	dir := filepath.Join(w.root, runID)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, newStorageError(codeInvalid, fmt.Sprintf("run %s is already staged", runID))
		}
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &RunDir{path: dir, names: make(map[string]int)}, nil
}

// RunDir is the staging directory of one run.
type RunDir struct {
	path string

	mu      sync.Mutex
	names   map[string]int
	removed bool
}

// Path returns the directory path.
func (d *RunDir) Path() string {
	return d.path
}

// Save copies r into the directory under a sanitized form of filename and
// returns the stored path. Repeated names get a numeric suffix so no upload
// overwrites another.
func (d *RunDir) Save(filename string, r io.Reader) (string, error) {
	name := d.reserve(SanitizeFilename(filename))
	if name == "" {
		return "", ErrWorkspaceClosed
	}

	path := filepath.Join(d.path, name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	return path, nil
}

func (d *RunDir) reserve(name string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.removed {
		return ""
	}

	n := d.names[name]
	d.names[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// Remove deletes the directory and everything in it. It is safe to call more than once.
func (d *RunDir) Remove() error {
	d.mu.Lock()
	d.removed = true
	d.mu.Unlock()

	if err := os.RemoveAll(d.path); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	return nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

// SanitizeFilename reduces an uploaded filename to a safe base name: path
// components are dropped, runs of unsafe characters become "_", and leading
// dots are stripped. An empty result becomes "upload".
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, "._")
	if name == "" {
		return "upload"
	}
	return name
}
