package chronicle

import "io/fs"

// Filesystem is the abstract capability set the engine depends on. It is
// deliberately minimal so the engine never touches an OS-specific API and
// tests can run against an in-memory implementation.
type Filesystem interface {
	// ReadFile returns the full content of a file. A missing file yields an
	// error satisfying errors.Is(err, fs.ErrNotExist).
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating or truncating it.
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// Remove deletes a file.
	Remove(path string) error

	// Rename atomically moves a file onto a new path, replacing any
	// existing file at that path.
	Rename(oldPath, newPath string) error

	// ReadDir lists a directory.
	ReadDir(path string) ([]fs.DirEntry, error)

	// Stat returns file info for a path.
	Stat(path string) (fs.FileInfo, error)

	// MkdirAll creates a directory and any missing parents.
	MkdirAll(path string, perm fs.FileMode) error
}
