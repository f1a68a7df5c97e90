// Package trash implements enumeration, restore, purge, and auto-expiry of
// deleted documents living under the documents folder's .trash subtree.
package trash

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/errors"
)

// RetentionPeriod is how long a trashed item is kept before auto-cleanup
// may remove it.
const RetentionPeriod = 30 * 24 * time.Hour

// Item describes one file living under .trash/.
type Item struct {
	FileName       string
	OriginalFolder string // folder_path before deletion
	TrashPath      string // relative to .trash/, equal to pre-deletion folder_path+name
	DeletedAt      time.Time
	SizeBytes      int64
}

// RecoveryStrategy selects restore behavior on a destination conflict.
type RecoveryStrategy int

const (
	// OriginalLocation fails with AlreadyExists on conflict.
	OriginalLocation RecoveryStrategy = iota
	// WithSuffix finds the first non-conflicting " (N)" name, N starting at 1.
	WithSuffix
)

// Manager operates on the trash subtree of the documents folder at Root.
type Manager struct {
	Root string
	// Now is injectable for deterministic auto-cleanup tests.
	Now func() time.Time
}

// New creates a Manager rooted at the documents folder.
func New(root string) *Manager {
	return &Manager{Root: root, Now: time.Now}
}

func (m *Manager) trashRoot() string {
	return filepath.Join(m.Root, docstore.TrashDirName)
}

// List enumerates only .md files below .trash/.
func (m *Manager) List() ([]Item, error) {
	var items []Item
	root := m.trashRoot()
	err := filepath.Walk(root, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			if os.IsNotExist(werr) {
				return nil
			}
			return werr
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(p), ".md") {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		rel = strings.ReplaceAll(rel, string(filepath.Separator), "/")

		items = append(items, Item{
			FileName:       info.Name(),
			OriginalFolder: strings.TrimSuffix(strings.TrimSuffix(rel, info.Name()), "/"),
			TrashPath:      rel,
			DeletedAt:      info.ModTime(),
			SizeBytes:      info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to list trash", err)
	}
	return items, nil
}

// Restore moves the item at trashPath (relative to .trash/) back into the
// documents tree under its original folder.
func (m *Manager) Restore(trashPath string, strategy RecoveryStrategy) (string, error) {
	norm, err := normalizeTrashPath(trashPath)
	if err != nil {
		return "", err
	}

	src := filepath.Join(m.trashRoot(), norm)
	if _, statErr := os.Stat(src); statErr != nil {
		return "", errors.New(errors.ErrCodeNotFound, "trash item not found: "+norm, statErr)
	}

	destDir := filepath.Dir(filepath.Join(m.Root, norm))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.New(errors.ErrCodeFilePermission, "failed to create destination folder", err)
	}

	base := filepath.Base(norm)
	stem := strings.TrimSuffix(base, ".md")
	dest := filepath.Join(destDir, base)

	if fileExists(dest) {
		switch strategy {
		case OriginalLocation:
			return "", errors.New(errors.ErrCodeAlreadyExists, "destination already occupied: "+dest, nil)
		case WithSuffix:
			for n := 1; fileExists(dest); n++ {
				dest = filepath.Join(destDir, docstore.CollisionName(stem, n)+".md")
			}
		}
	}

	if err := os.Rename(src, dest); err != nil {
		return "", errors.New(errors.ErrCodeFilePermission, "failed to restore trash item", err)
	}

	m.pruneEmptyAncestors(filepath.Dir(src))

	return dest, nil
}

// Purge permanently removes a single item.
func (m *Manager) Purge(trashPath string) error {
	norm, err := normalizeTrashPath(trashPath)
	if err != nil {
		return err
	}

	path := filepath.Join(m.trashRoot(), norm)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return errors.New(errors.ErrCodeNotFound, "trash item not found: "+norm, err)
		}
		return errors.New(errors.ErrCodeFilePermission, "failed to purge trash item", err)
	}
	m.pruneEmptyAncestors(filepath.Dir(path))
	return nil
}

// Clear removes every file under .trash/, then prunes the whole trash root.
func (m *Manager) Clear() error {
	items, err := m.List()
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := os.Remove(filepath.Join(m.trashRoot(), it.TrashPath)); err != nil && !os.IsNotExist(err) {
			return errors.New(errors.ErrCodeFilePermission, "failed to clear trash item: "+it.TrashPath, err)
		}
	}
	_ = os.RemoveAll(m.trashRoot())
	return nil
}

// AutoCleanup removes anything whose age exceeds RetentionPeriod.
func (m *Manager) AutoCleanup() (removed int, err error) {
	items, err := m.List()
	if err != nil {
		return 0, err
	}
	now := m.Now()
	for _, it := range items {
		if now.Sub(it.DeletedAt) >= RetentionPeriod {
			if rerr := os.Remove(filepath.Join(m.trashRoot(), it.TrashPath)); rerr == nil {
				removed++
				m.pruneEmptyAncestors(filepath.Dir(filepath.Join(m.trashRoot(), it.TrashPath)))
			}
		}
	}
	return removed, nil
}

// pruneEmptyAncestors removes empty directories from dir up to (not
// including) the trash root.
func (m *Manager) pruneEmptyAncestors(dir string) {
	root := filepath.Clean(m.trashRoot())
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

func normalizeTrashPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" || filepath.IsAbs(p) {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid trash path: "+p, nil)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return "", errors.New(errors.ErrCodeInvalidInput, "trash path may not contain '.' or '..': "+p, nil)
		}
	}
	return p, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
