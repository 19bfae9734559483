// Package fsys provides the OS-backed implementation of the engine's
// filesystem interface.
package fsys

import (
	"io/fs"
	"os"

	"chronicle/internal/chronicle"
)

// OSFilesystem implements chronicle.Filesystem on the local filesystem.
type OSFilesystem struct{}

// NewOSFilesystem creates a filesystem backed by the OS.
func NewOSFilesystem() *OSFilesystem {
	return &OSFilesystem{}
}

func (*OSFilesystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (*OSFilesystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (*OSFilesystem) Remove(path string) error {
	return os.Remove(path)
}

func (*OSFilesystem) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (*OSFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

func (*OSFilesystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

func (*OSFilesystem) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Compile-time check that OSFilesystem implements chronicle.Filesystem
var _ chronicle.Filesystem = (*OSFilesystem)(nil)
