package chronicle

import (
	"errors"
	"strings"
	"testing"

	"chronicle/internal/testutil"
)

func newTestWriter() (*atomicWriter, *testutil.MemFilesystem) {
	fs := testutil.NewMemFilesystem()
	return newAtomicWriter(fs, "/store/temp", testutil.NewStubIDGenerator()), fs
}

func TestAtomicWrite(t *testing.T) {
	t.Run("commits and removes scratch", func(t *testing.T) {
		w, fs := newTestWriter()
		if err := w.Write("/store/conversations/c1.json", []byte("data"), nil); err != nil {
			t.Fatalf("write: %v", err)
		}
		if !fs.Exists("/store/conversations/c1.json") {
			t.Error("final file missing")
		}
		if fs.FileCount() != 1 {
			t.Errorf("expected only the final file, got %d files", fs.FileCount())
		}
	})

	t.Run("verify sees the read-back bytes", func(t *testing.T) {
		w, _ := newTestWriter()
		var seen []byte
		err := w.Write("/store/x.json", []byte("payload"), func(data []byte) error {
			seen = append([]byte(nil), data...)
			return nil
		})
		if err != nil {
			t.Fatalf("write: %v", err)
		}
		if string(seen) != "payload" {
			t.Errorf("verify saw %q", seen)
		}
	})

	t.Run("write failure never touches the final path", func(t *testing.T) {
		w, fs := newTestWriter()
		fs.WriteErr = func(path string) error {
			if strings.Contains(path, ".scratch-") {
				return errors.New("disk full")
			}
			return nil
		}
		err := w.Write("/store/x.json", []byte("data"), nil)
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "write" {
			t.Fatalf("expected write StorageError, got %v", err)
		}
		if fs.Exists("/store/x.json") {
			t.Error("final path written despite failure")
		}
	})

	t.Run("verify failure keeps previous committed content", func(t *testing.T) {
		w, fs := newTestWriter()
		if err := w.Write("/store/x.json", []byte("old"), nil); err != nil {
			t.Fatalf("seed write: %v", err)
		}

		err := w.Write("/store/x.json", []byte("new"), func([]byte) error {
			return errors.New("malformed")
		})
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "verify" {
			t.Fatalf("expected verify StorageError, got %v", err)
		}

		data, rerr := fs.ReadFile("/store/x.json")
		if rerr != nil || string(data) != "old" {
			t.Errorf("previous content lost: %q err=%v", data, rerr)
		}
		if fs.FileCount() != 1 {
			t.Errorf("scratch not cleaned up, %d files remain", fs.FileCount())
		}
	})

	t.Run("read-back failure aborts", func(t *testing.T) {
		w, fs := newTestWriter()
		fs.ReadErr = func(path string) error {
			if strings.Contains(path, ".scratch-") {
				return errors.New("read error")
			}
			return nil
		}
		err := w.Write("/store/x.json", []byte("data"), nil)
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "verify" {
			t.Fatalf("expected verify StorageError, got %v", err)
		}
		if fs.Exists("/store/x.json") {
			t.Error("final path written despite failure")
		}
	})

	t.Run("rename failure aborts and cleans up", func(t *testing.T) {
		w, fs := newTestWriter()
		fs.RenameErr = func(oldPath, newPath string) error {
			return errors.New("cross-device link")
		}
		err := w.Write("/store/x.json", []byte("data"), nil)
		var se *StorageError
		if !errors.As(err, &se) || se.Op != "rename" {
			t.Fatalf("expected rename StorageError, got %v", err)
		}
		if fs.FileCount() != 0 {
			t.Errorf("expected empty filesystem, got %d files", fs.FileCount())
		}
	})
}
