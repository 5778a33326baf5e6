// Package models defines the core data structures for form origins, password entries,
// persisted matches and search queries.
package models

import (
	"path"
	"strings"
	"time"
)

// PasswordEntry references a file or directory inside the password store.
// The store owns the entry; this package only reads its paths.
type PasswordEntry struct {
	// AbsPath is the absolute location of the entry on disk.
	AbsPath string `json:"-"`
	// RootDir is the root directory of the password store.
	RootDir string `json:"-"`
	// RelPath is the slash-separated path relative to RootDir.
	RelPath string `json:"path"`
	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`
}

// TopLevel reports whether the entry is an immediate child of the store root.
func (e PasswordEntry) TopLevel() bool {
	return !strings.Contains(strings.Trim(e.RelPath, "/"), "/")
}

// Name returns the last path component of the entry.
func (e PasswordEntry) Name() string {
	return path.Base(e.RelPath)
}

// Match is a persisted, user-confirmed association between a form origin and an entry.
type Match struct {
	// OriginKey is FormOrigin.Key() of the origin the match belongs to.
	OriginKey string `json:"origin_key"`
	// EntryPath is the entry path relative to the store root.
	EntryPath string `json:"entry_path"`
	// CreatedAt is when the match was first persisted.
	CreatedAt time.Time `json:"created_at"`
}
