package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stores mirror files under one directory per resource identifier.
// Directory-level exclusivity is the only locking: concurrent passes for
// different identifiers never touch the same directory.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir. The root is created on
// first use, not here.
func NewLocal(dir string) *Local {
	return &Local{root: dir}
}

// Root returns the store's root directory.
func (l *Local) Root() string {
	return l.root
}

func (l *Local) dir(id string) string {
	return filepath.Join(l.root, id)
}

// Prepare creates the resource directory and returns the temp file path for
// this pass. The temp file lives in the resource directory so the final
// rename stays on one filesystem.
func (l *Local) Prepare(_ context.Context, id, name string) (string, error) {
	dir := l.dir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create resource dir %s: %w", dir, err)
	}
	return filepath.Join(dir, name+TempSuffix), nil
}

// Resolve scans the resource directory for dated file names. When several
// dated files coexist (a prior inconsistent state), the latest date wins;
// the next successful Promote removes the stragglers. A missing directory
// means no cursor.
func (l *Local) Resolve(_ context.Context, id string) (time.Time, error) {
	entries, err := os.ReadDir(l.dir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("scan resource dir for %s: %w", id, err)
	}

	var latest time.Time
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), TempSuffix) {
			continue
		}
		if d, ok := parseDatePrefix(entry.Name()); ok && d.After(latest) {
			latest = d
		}
	}
	return latest, nil
}

// Keep renames the temp file to the permanent undated name and removes any
// dated leftovers for the same base name.
func (l *Local) Keep(_ context.Context, id, name, tmpPath string) error {
	final := filepath.Join(l.dir(id), name)
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("keep %s for %s: %w", name, id, err)
	}
	return l.removeSiblings(id, name, name)
}

// Promote renames the temp file to its dated name and removes every other
// current file for the same base name, restoring the at-most-one invariant.
func (l *Local) Promote(_ context.Context, id, name, tmpPath string, latest time.Time) error {
	dated := DatedName(name, latest)
	final := filepath.Join(l.dir(id), dated)
	if err := os.Rename(tmpPath, final); err != nil {
		return fmt.Errorf("promote %s for %s: %w", dated, id, err)
	}
	return l.removeSiblings(id, name, dated)
}

// Discard removes the temp file. A temp file that is already gone is fine.
func (l *Local) Discard(_ context.Context, _ string, tmpPath string) error {
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("discard temp file: %w", err)
	}
	return nil
}

// removeSiblings deletes every file belonging to the resource base name
// except the one just installed.
func (l *Local) removeSiblings(id, name, installed string) error {
	dir := l.dir(id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan resource dir for %s: %w", id, err)
	}

	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || fileName == installed {
			continue
		}
		if strings.HasSuffix(fileName, TempSuffix) {
			continue
		}
		if !isSibling(fileName, name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, fileName)); err != nil {
			return fmt.Errorf("remove stale file %s for %s: %w", fileName, id, err)
		}
	}
	return nil
}
