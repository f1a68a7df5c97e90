// Package docstore is the on-disk source of truth for the knowledge base:
// markdown files with frontmatter, organized under a user-chosen folder
// tree. It owns path discipline, frontmatter parsing, collision-safe
// filenames, and prefix-unique id lookup.
package docstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/localkb/knowledgebase/internal/errors"
)

// Document is a document read from or about to be written to disk.
type Document struct {
	ID         string
	Title      string
	Body       string
	FolderPath string // relative, normalized
	Tags       []string
	TagsLocked bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Path       string // absolute on-disk path
}

// Store is the filesystem-backed document source of truth rooted at Root.
type Store struct {
	Root string

	idCounter atomic.Uint64
}

// New creates a Store rooted at root (the documents folder).
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) trashRoot() string {
	return filepath.Join(s.Root, TrashDirName)
}

// generateID produces a time-nanos-hex + atomic-counter id, unique within a
// process and, to a very high probability, across processes.
func (s *Store) generateID() string {
	n := s.idCounter.Add(1)
	return fmt.Sprintf("%x%04x", time.Now().UnixNano(), n&0xFFFF)
}

// CreateInput describes a document to be created.
type CreateInput struct {
	Title      string
	Body       string
	FolderPath string
	Tags       []string
	ID         string // optional explicit id; generated if empty
}

// Create writes a new document file, generating a collision-safe filename
// ("Title.md", "Title (2).md", "Title (3).md", ...) using exclusive-create
// to race safely against concurrent callers.
func (s *Store) Create(input CreateInput) (*Document, error) {
	folderPath, err := NormalizeFolderPath(input.FolderPath)
	if err != nil {
		return nil, err
	}

	id := input.ID
	if id == "" {
		id = s.generateID()
	}

	stem := SanitizeFilename(input.Title)
	folderDir := filepath.Join(s.Root, folderPath)
	if err := os.MkdirAll(folderDir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to create folder: "+folderDir, err)
	}

	now := time.Now().UTC()
	tags := NormalizeTags(input.Tags)

	fm := Frontmatter{ID: id, CreatedAt: now, UpdatedAt: now, Tags: tags}
	content := WriteDocument(fm, input.Title, input.Body)

	path, err := createWithCollisionRetry(folderDir, stem, content)
	if err != nil {
		return nil, err
	}

	return &Document{
		ID: id, Title: input.Title, Body: input.Body, FolderPath: folderPath,
		Tags: tags, CreatedAt: now, UpdatedAt: now, Path: path,
	}, nil
}

// createWithCollisionRetry tries "<stem>.md", "<stem> (2).md", ... using
// O_EXCL so concurrent callers racing on the same title never overwrite
// each other. Collision detection is case-insensitive against the
// destination folder's existing entries.
func createWithCollisionRetry(dir, stem, content string) (string, error) {
	existing, err := lowerFilenamesIn(dir)
	if err != nil {
		return "", err
	}

	candidate := stem
	for n := 1; ; n++ {
		name := candidate + ".md"
		if !existing[strings.ToLower(name)] {
			path := filepath.Join(dir, name)
			f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
			if err == nil {
				defer f.Close()
				if _, werr := f.WriteString(content); werr != nil {
					return "", errors.New(errors.ErrCodeFilePermission, "failed to write document", werr)
				}
				return path, nil
			}
			if !os.IsExist(err) {
				return "", errors.New(errors.ErrCodeFilePermission, "failed to create document", err)
			}
			// Lost the race; re-scan and retry.
			existing, err = lowerFilenamesIn(dir)
			if err != nil {
				return "", err
			}
			continue
		}
		candidate = CollisionName(stem, n+1)
	}
}

func lowerFilenamesIn(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bool{}, nil
		}
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to list folder: "+dir, err)
	}
	m := make(map[string]bool, len(entries))
	for _, e := range entries {
		m[strings.ToLower(e.Name())] = true
	}
	return m, nil
}

// Read resolves id via the prefix-unique lookup policy and returns the
// parsed document. If frontmatter is missing or invalid, the file is
// rewritten in place with synthesized values before returning.
func (s *Store) Read(id string) (*Document, error) {
	path, resolvedFrontmatterID, needsRewrite, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, "failed to read document: "+path, err)
	}

	fm, body, hadFrontmatter := ParseDocument(string(raw))
	now := time.Now().UTC()

	rewrite := needsRewrite || !hadFrontmatter
	if fm.ID == "" {
		fm.ID = resolvedFrontmatterID
		if fm.ID == "" {
			fm.ID = s.generateID()
		}
		rewrite = true
	}
	if fm.CreatedAt.IsZero() {
		fm.CreatedAt = now
		rewrite = true
	}
	if fm.UpdatedAt.IsZero() {
		fm.UpdatedAt = fm.CreatedAt
		rewrite = true
	}

	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	title := stem
	if hadFrontmatter {
		body = StripTitleHeading(body, stem)
	} else {
		stripped := StripTitleHeading(body, stem)
		if stripped != body {
			body = stripped
		}
	}

	if rewrite {
		content := WriteDocument(fm, title, body)
		if werr := os.WriteFile(path, []byte(content), 0o644); werr != nil {
			return nil, errors.New(errors.ErrCodeFilePermission, "failed to rewrite document: "+path, werr)
		}
	}

	folderPath, _ := NormalizeFolderPath(s.relativeFolderOf(path))

	return &Document{
		ID: fm.ID, Title: title, Body: body, FolderPath: folderPath,
		Tags: fm.Tags, TagsLocked: fm.TagsLocked,
		CreatedAt: fm.CreatedAt, UpdatedAt: fm.UpdatedAt, Path: path,
	}, nil
}

func (s *Store) relativeFolderOf(path string) string {
	rel, err := filepath.Rel(s.Root, filepath.Dir(path))
	if err != nil || rel == "." {
		return ""
	}
	return rel
}

// resolve applies the prefix-unique id lookup policy: exact frontmatter-id
// match wins; else a unique prefix match; else fall back to stem match on
// files lacking a frontmatter id.
func (s *Store) resolve(id string) (path string, frontmatterID string, needsRewrite bool, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", "", false, errors.New(errors.ErrCodeInvalidInput, "document id must not be empty", nil)
	}

	var exactPath string
	var prefixMatches []string
	var stemMatch string

	walkErr := filepath.Walk(s.Root, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			return nil
		}
		if info.IsDir() {
			if strings.EqualFold(info.Name(), TrashDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(p), ".md") {
			return nil
		}

		raw, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		fm, _, hadFrontmatter := ParseDocument(string(raw))

		if hadFrontmatter && fm.ID != "" {
			if fm.ID == id {
				exactPath = p
				return nil
			}
			if strings.HasPrefix(fm.ID, id) {
				prefixMatches = append(prefixMatches, p)
			}
		} else {
			stem := strings.TrimSuffix(filepath.Base(p), ".md")
			if stem == id {
				stemMatch = p
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", "", false, errors.New(errors.ErrCodeFileNotFound, "failed to search documents", walkErr)
	}

	if exactPath != "" {
		return exactPath, id, false, nil
	}
	if len(prefixMatches) == 1 {
		return prefixMatches[0], "", false, nil
	}
	if len(prefixMatches) > 1 {
		return "", "", false, errors.New(errors.ErrCodeAmbiguous,
			fmt.Sprintf("id prefix %q matches %d documents; use a longer prefix", id, len(prefixMatches)), nil)
	}
	if stemMatch != "" {
		return stemMatch, "", true, nil
	}

	return "", "", false, errors.New(errors.ErrCodeNotFound, "no document found for id: "+id, nil)
}

// UpdateTags applies a tag mutation and rewrites the document's frontmatter.
func (s *Store) UpdateTags(id string, tags []string, mode TagUpdateMode) (*Document, error) {
	doc, err := s.Read(id)
	if err != nil {
		return nil, err
	}

	newTags := ApplyTagUpdate(doc.Tags, tags, mode)
	now := time.Now().UTC()
	fm := Frontmatter{ID: doc.ID, CreatedAt: doc.CreatedAt, UpdatedAt: now, Tags: newTags, TagsLocked: doc.TagsLocked}
	content := WriteDocument(fm, doc.Title, doc.Body)

	if err := os.WriteFile(doc.Path, []byte(content), 0o644); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to write document: "+doc.Path, err)
	}

	doc.Tags = newTags
	doc.UpdatedAt = now
	return doc, nil
}

// Delete moves the document's file into .trash/<folder_path>/<name>,
// appending " (N)" (N starting at 2) on a destination collision.
func (s *Store) Delete(id string) error {
	doc, err := s.Read(id)
	if err != nil {
		return err
	}

	trashDir := filepath.Join(s.trashRoot(), doc.FolderPath)
	if err := os.MkdirAll(trashDir, 0o755); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to create trash folder", err)
	}

	name := filepath.Base(doc.Path)
	stem := strings.TrimSuffix(name, ".md")

	dest := filepath.Join(trashDir, name)
	for n := 2; fileExists(dest); n++ {
		dest = filepath.Join(trashDir, CollisionName(stem, n)+".md")
	}

	if err := os.Rename(doc.Path, dest); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to move document to trash", err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// List walks the document tree (skipping .trash), deduplicating colliding
// frontmatter ids by rewriting the second occurrence with a fresh id, and
// returns documents sorted by updated_at desc, then id asc.
func (s *Store) List() ([]*Document, error) {
	var paths []string
	walkErr := filepath.Walk(s.Root, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			return nil
		}
		if info.IsDir() {
			if strings.EqualFold(info.Name(), TrashDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(p), ".md") {
			paths = append(paths, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, "failed to list documents", walkErr)
	}

	seenIDs := make(map[string]bool, len(paths))
	var docs []*Document
	for _, p := range paths {
		doc, err := s.readByPath(p)
		if err != nil {
			continue
		}
		if seenIDs[doc.ID] {
			doc.ID = s.generateID()
			fm := Frontmatter{ID: doc.ID, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt, Tags: doc.Tags, TagsLocked: doc.TagsLocked}
			content := WriteDocument(fm, doc.Title, doc.Body)
			_ = os.WriteFile(doc.Path, []byte(content), 0o644)
		}
		seenIDs[doc.ID] = true
		docs = append(docs, doc)
	}

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
		}
		return docs[i].ID < docs[j].ID
	})

	return docs, nil
}

func (s *Store) readByPath(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fm, body, _ := ParseDocument(string(raw))
	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	body = StripTitleHeading(body, stem)
	folderPath, _ := NormalizeFolderPath(s.relativeFolderOf(path))

	id := fm.ID
	if id == "" {
		id = s.generateID()
	}
	createdAt := fm.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := fm.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return &Document{
		ID: id, Title: stem, Body: body, FolderPath: folderPath,
		Tags: fm.Tags, TagsLocked: fm.TagsLocked,
		CreatedAt: createdAt, UpdatedAt: updatedAt, Path: path,
	}, nil
}

// MarkdownPaths returns every markdown file path under the store root,
// skipping the trash subtree. When folderFilter is non-empty (normalized),
// only paths at or below that folder are returned. The walk itself is
// sequential; callers parallelize the per-path reads.
func (s *Store) MarkdownPaths(folderFilter string) ([]string, error) {
	walkRoot := s.Root
	if folderFilter != "" {
		walkRoot = filepath.Join(s.Root, folderFilter)
	}

	var paths []string
	walkErr := filepath.Walk(walkRoot, func(p string, info os.FileInfo, werr error) error {
		if werr != nil {
			return nil
		}
		if info.IsDir() {
			if strings.EqualFold(info.Name(), TrashDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(p), ".md") {
			paths = append(paths, p)
		}
		return nil
	})
	if walkErr != nil {
		return nil, errors.New(errors.ErrCodeFileNotFound, "failed to walk documents", walkErr)
	}
	return paths, nil
}

// ReadPath parses the markdown file at path without touching the file.
// needsHeal reports whether the frontmatter was missing or incomplete; the
// reindex coordinator serializes the corresponding Heal calls so parallel
// readers never interleave rewrites.
func (s *Store) ReadPath(path string) (doc *Document, needsHeal bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, errors.New(errors.ErrCodeFileNotFound, "failed to read document: "+path, err)
	}
	fm, body, hadFrontmatter := ParseDocument(string(raw))
	stem := strings.TrimSuffix(filepath.Base(path), ".md")
	body = StripTitleHeading(body, stem)
	folderPath, _ := NormalizeFolderPath(s.relativeFolderOf(path))

	needsHeal = !hadFrontmatter || fm.ID == "" || fm.CreatedAt.IsZero() || fm.UpdatedAt.IsZero()

	id := fm.ID
	if id == "" {
		id = s.generateID()
	}
	createdAt := fm.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := fm.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	return &Document{
		ID: id, Title: stem, Body: body, FolderPath: folderPath,
		Tags: fm.Tags, TagsLocked: fm.TagsLocked,
		CreatedAt: createdAt, UpdatedAt: updatedAt, Path: path,
	}, needsHeal, nil
}

// Heal rewrites doc's file from its in-memory state, persisting
// synthesized frontmatter values. Must be called from a single goroutine.
func (s *Store) Heal(doc *Document) error {
	fm := Frontmatter{ID: doc.ID, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt, Tags: doc.Tags, TagsLocked: doc.TagsLocked}
	content := WriteDocument(fm, doc.Title, doc.Body)
	if err := os.WriteFile(doc.Path, []byte(content), 0o644); err != nil {
		return errors.New(errors.ErrCodeFilePermission, "failed to rewrite document: "+doc.Path, err)
	}
	return nil
}

// GenerateID exposes fresh id generation for coordinators resolving
// frontmatter id collisions across files.
func (s *Store) GenerateID() string {
	return s.generateID()
}

// MoveDocument relocates the resolved document into destFolderPath, using
// the same " (N)" collision policy as Create (N starting at 2). A move into
// the document's current folder is a no-op returning the existing path.
func (s *Store) MoveDocument(id, destFolderPath string) (*Document, error) {
	doc, err := s.Read(id)
	if err != nil {
		return nil, err
	}

	destFolder, err := NormalizeFolderPath(destFolderPath)
	if err != nil {
		return nil, err
	}
	if destFolder == doc.FolderPath {
		return doc, nil
	}

	destDir := filepath.Join(s.Root, destFolder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to create destination folder", err)
	}

	name := filepath.Base(doc.Path)
	stem := strings.TrimSuffix(name, ".md")
	dest := filepath.Join(destDir, name)
	for n := 2; fileExists(dest); n++ {
		dest = filepath.Join(destDir, CollisionName(stem, n)+".md")
	}

	if err := os.Rename(doc.Path, dest); err != nil {
		return nil, errors.New(errors.ErrCodeFilePermission, "failed to move document", err)
	}

	doc.Path = dest
	doc.FolderPath = destFolder
	return doc, nil
}
