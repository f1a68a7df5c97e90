// Package folders implements folder lifecycle operations over the
// documents tree: list, create, rename, delete, and move.
package folders

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/localkb/knowledgebase/internal/docstore"
	"github.com/localkb/knowledgebase/internal/errors"
)

// Folder describes one directory in the documents tree.
type Folder struct {
	Path             string // normalized, relative to the documents root
	DocumentCount    int
	SubfolderCount   int
}

// Manager operates on the folder tree rooted at Root.
type Manager struct {
	Root string
}

// New creates a Manager rooted at the documents folder.
func New(root string) *Manager {
	return &Manager{Root: root}
}

// List returns a flattened enumeration of every directory except .trash and
// its descendants. Parent entries are appended before their subfolders are
// walked.
func (m *Manager) List() ([]Folder, error) {
	var out []Folder
	var walk func(relPath string) error
	walk = func(relPath string) error {
		dir := filepath.Join(m.Root, relPath)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.New(errors.ErrCodeFilePermission, "failed to read folder: "+dir, err)
		}

		docCount, subCount := 0, 0
		var subdirs []string
		for _, e := range entries {
			if e.IsDir() {
				if strings.EqualFold(e.Name(), docstore.TrashDirName) {
					continue
				}
				subCount++
				subdirs = append(subdirs, e.Name())
				continue
			}
			if strings.HasSuffix(strings.ToLower(e.Name()), ".md") {
				docCount++
			}
		}

		out = append(out, Folder{Path: relPath, DocumentCount: docCount, SubfolderCount: subCount})

		sort.Strings(subdirs)
		for _, name := range subdirs {
			child := name
			if relPath != "" {
				child = relPath + "/" + name
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(""); err != nil {
		return nil, err
	}
	return out, nil
}

// Create makes a new (possibly nested) folder.
func (m *Manager) Create(path string) error {
	norm, err := docstore.NormalizeFolderPath(path)
	if err != nil {
		return err
	}
	if norm == "" {
		return errors.New(errors.ErrCodeInvalidInput, "folder path must not be root", nil)
	}
	if err := os.MkdirAll(filepath.Join(m.Root, norm), 0o755); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to create folder: "+norm, err)
	}
	return nil
}

// Rename moves a folder (and its subtree) to a new path.
func (m *Manager) Rename(oldPath, newPath string) error {
	oldNorm, err := docstore.NormalizeFolderPath(oldPath)
	if err != nil {
		return err
	}
	if oldNorm == "" {
		return errors.New(errors.ErrCodeInvalidInput, "cannot rename the root folder", nil)
	}
	newNorm, err := docstore.NormalizeFolderPath(newPath)
	if err != nil {
		return err
	}
	if newNorm == "" {
		return errors.New(errors.ErrCodeInvalidInput, "cannot rename into the root folder", nil)
	}

	src := filepath.Join(m.Root, oldNorm)
	dst := filepath.Join(m.Root, newNorm)

	if _, err := os.Stat(src); err != nil {
		return errors.New(errors.ErrCodeNotFound, "folder not found: "+oldNorm, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to prepare destination", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to rename folder", err)
	}
	return nil
}

// Delete removes a folder. A non-recursive delete on a non-empty folder
// (ignoring .trash) fails with NonEmptyFolder; recursive deletion removes
// the subtree.
func (m *Manager) Delete(path string, recursive bool) error {
	norm, err := docstore.NormalizeFolderPath(path)
	if err != nil {
		return err
	}
	if norm == "" {
		return errors.New(errors.ErrCodeInvalidInput, "cannot delete the root folder", nil)
	}

	dir := filepath.Join(m.Root, norm)
	if !recursive {
		empty, err := isEmptyIgnoringTrash(dir)
		if err != nil {
			return err
		}
		if !empty {
			return errors.New(errors.ErrCodeNonEmptyFolder, "folder is not empty: "+norm, nil)
		}
	}

	if err := os.RemoveAll(dir); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to delete folder", err)
	}
	return nil
}

func isEmptyIgnoringTrash(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, errors.New(errors.ErrCodeFilePermission, "failed to read folder: "+dir, err)
	}
	for _, e := range entries {
		if e.IsDir() && strings.EqualFold(e.Name(), docstore.TrashDirName) {
			continue
		}
		return false, nil
	}
	return true, nil
}
