// Package vault abstracts the hierarchical note store the agent operates on.
// Tools and the undo log only ever talk to the Store interface; the concrete
// FS implementation keeps everything under a single root directory.
package vault

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// Entry is one listing row from List.
type Entry struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Folder bool   `json:"folder"`
}

// Store is the file-store collaborator. Paths are vault-relative,
// slash-separated. Rename doubles as move: the target may live in a
// different folder.
type Store interface {
	Read(ctx context.Context, path string) (string, error)
	Create(ctx context.Context, path, content string) error
	Modify(ctx context.Context, path, content string) error
	Rename(ctx context.Context, path, newPath string) error
	Trash(ctx context.Context, path string) error
	CreateFolder(ctx context.Context, path string) error
	List(ctx context.Context, folder string) ([]Entry, error)
	Exists(ctx context.Context, path string) (bool, error)

	// ActiveDocument reports the note currently open in the supervising UI,
	// or "" when none is set.
	ActiveDocument() string
	SetActiveDocument(path string)

	// Backlinks returns the paths of notes that reference the given note.
	Backlinks(ctx context.Context, path string) ([]string, error)
}
