package testutil

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemFilesystem is an in-memory implementation of chronicle.Filesystem.
// Missing files yield errors satisfying errors.Is(err, fs.ErrNotExist).
// The hook fields inject failures for specific operations; a nil hook
// leaves the operation working normally.
type MemFilesystem struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool

	// Failure injection hooks. Called with the operation's path before the
	// operation runs; a non-nil return aborts the operation with that error.
	WriteErr  func(path string) error
	ReadErr   func(path string) error
	RenameErr func(oldPath, newPath string) error
}

// NewMemFilesystem creates an empty in-memory filesystem.
func NewMemFilesystem() *MemFilesystem {
	return &MemFilesystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
	}
}

func (m *MemFilesystem) ReadFile(path string) ([]byte, error) {
	if m.ReadErr != nil {
		if err := m.ReadErr(path); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemFilesystem) WriteFile(path string, data []byte, perm fs.FileMode) error {
	if m.WriteErr != nil {
		if err := m.WriteErr(path); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(path)] = append([]byte(nil), data...)
	return nil
}

func (m *MemFilesystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	if _, ok := m.files[clean]; ok {
		delete(m.files, clean)
		return nil
	}
	if m.dirs[clean] {
		delete(m.dirs, clean)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
}

func (m *MemFilesystem) Rename(oldPath, newPath string) error {
	if m.RenameErr != nil {
		if err := m.RenameErr(oldPath, newPath); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	oldClean := filepath.Clean(oldPath)
	data, ok := m.files[oldClean]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldPath, Err: fs.ErrNotExist}
	}
	delete(m.files, oldClean)
	m.files[filepath.Clean(newPath)] = data
	return nil
}

func (m *MemFilesystem) ReadDir(path string) ([]fs.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	if !m.dirs[clean] {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry
	addChild := func(full string, isDir bool, size int64) {
		rel, err := filepath.Rel(clean, full)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return
		}
		name := strings.SplitN(rel, string(filepath.Separator), 2)[0]
		child := name == rel
		if seen[name] {
			return
		}
		seen[name] = true
		if child {
			entries = append(entries, &memDirEntry{name: name, isDir: isDir, size: size})
		} else {
			entries = append(entries, &memDirEntry{name: name, isDir: true})
		}
	}
	for full, data := range m.files {
		addChild(full, false, int64(len(data)))
	}
	for full := range m.dirs {
		addChild(full, true, 0)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *MemFilesystem) Stat(path string) (fs.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	if data, ok := m.files[clean]; ok {
		return &memFileInfo{name: filepath.Base(clean), size: int64(len(data))}, nil
	}
	if m.dirs[clean] {
		return &memFileInfo{name: filepath.Base(clean), isDir: true}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

func (m *MemFilesystem) MkdirAll(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	for clean != "." && clean != string(filepath.Separator) {
		m.dirs[clean] = true
		clean = filepath.Dir(clean)
	}
	return nil
}

// Exists reports whether a file exists. Intended for test assertions.
func (m *MemFilesystem) Exists(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[filepath.Clean(path)]
	return ok
}

// FileCount returns the number of files. Intended for test assertions.
func (m *MemFilesystem) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

type memDirEntry struct {
	name  string
	isDir bool
	size  int64
}

func (e *memDirEntry) Name() string      { return e.name }
func (e *memDirEntry) IsDir() bool       { return e.isDir }
func (e *memDirEntry) Type() fs.FileMode {
	if e.isDir {
		return fs.ModeDir
	}
	return 0
}
func (e *memDirEntry) Info() (fs.FileInfo, error) {
	return &memFileInfo{name: e.name, size: e.size, isDir: e.isDir}, nil
}

type memFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (i *memFileInfo) Name() string { return i.name }
func (i *memFileInfo) Size() int64  { return i.size }
func (i *memFileInfo) Mode() fs.FileMode {
	if i.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (i *memFileInfo) ModTime() time.Time { return time.Time{} }
func (i *memFileInfo) IsDir() bool        { return i.isDir }
func (i *memFileInfo) Sys() any           { return nil }
