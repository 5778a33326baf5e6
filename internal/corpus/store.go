// Package corpus lists the entries of an on-disk password store.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/atinyakov/GophFill/internal/directory"
	"github.com/atinyakov/GophFill/internal/models"
)

// Store walks a password-store directory tree.
type Store struct {
	root string
}

// NewStore returns a Store rooted at root.
func NewStore(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve store root: %w", err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute store root.
func (s *Store) Root() string { return s.root }

// Entries lists every password file and directory below the root, sorted by relative path.
// Hidden files and directories (.git, .gpg-id, ...) are skipped.
func (s *Store) Entries(ctx context.Context) ([]models.PasswordEntry, error) {
	var entries []models.PasswordEntry

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == s.root {
				return err
			}
			return nil // skip unreadable subtrees
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == s.root {
			return nil
		}
		if isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && !strings.HasSuffix(d.Name(), directory.EntryExtension) {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		entries = append(entries, models.PasswordEntry{
			AbsPath: p,
			RootDir: s.root,
			RelPath: filepath.ToSlash(rel),
			IsDir:   d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk password store: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}

// Lookup returns the entry for relPath if it exists in the store.
func (s *Store) Lookup(relPath string) (models.PasswordEntry, bool) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return models.PasswordEntry{}, false
	}
	abs := filepath.Join(s.root, clean)
	info, err := os.Stat(abs)
	if err != nil {
		return models.PasswordEntry{}, false
	}
	return models.PasswordEntry{
		AbsPath: abs,
		RootDir: s.root,
		RelPath: filepath.ToSlash(clean),
		IsDir:   info.IsDir(),
	}, true
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
