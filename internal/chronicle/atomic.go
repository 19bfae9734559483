package chronicle

import (
	"bytes"
	"fmt"
	"path/filepath"
)

// atomicWriter implements the scratch-write / verify / rename pattern. The
// rename is the only step that can change what readers observe: a crash
// before it leaves the previous committed file intact, and any failure in
// the write or verify phase removes the scratch and never touches the
// final path.
type atomicWriter struct {
	fs      Filesystem
	tempDir string
	idgen   IDGenerator
}

func newAtomicWriter(fs Filesystem, tempDir string, idgen IDGenerator) *atomicWriter {
	return &atomicWriter{fs: fs, tempDir: tempDir, idgen: idgen}
}

// Write persists data to finalPath atomically. verify is called with the
// bytes read back from the scratch file and must confirm they deserialize
// into a well-formed entity.
func (w *atomicWriter) Write(finalPath string, data []byte, verify func([]byte) error) error {
	scratch := filepath.Join(w.tempDir, ".scratch-"+w.idgen.New())

	if err := w.fs.WriteFile(scratch, data, 0o644); err != nil {
		return &StorageError{Op: "write", Path: scratch, Err: err}
	}

	readBack, err := w.fs.ReadFile(scratch)
	if err != nil {
		w.discard(scratch)
		return &StorageError{Op: "verify", Path: scratch, Err: err}
	}
	if !bytes.Equal(readBack, data) {
		w.discard(scratch)
		return &StorageError{Op: "verify", Path: scratch, Err: fmt.Errorf("scratch content differs from written content")}
	}
	if verify != nil {
		if err := verify(readBack); err != nil {
			w.discard(scratch)
			return &StorageError{Op: "verify", Path: scratch, Err: err}
		}
	}

	if err := w.fs.Rename(scratch, finalPath); err != nil {
		w.discard(scratch)
		return &StorageError{Op: "rename", Path: finalPath, Err: err}
	}
	return nil
}

func (w *atomicWriter) discard(scratch string) {
	// Best effort; a leaked scratch file is harmless and swept on restart.
	_ = w.fs.Remove(scratch)
}
