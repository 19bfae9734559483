package chronicle

import (
	"fmt"
	"path/filepath"
	"strings"

	"chronicle/internal/model"
)

// Layout maps the store root to its fixed directory tree:
//
//	<root>/
//	  store.json       (creation time, last-accessed time, schema version)
//	  conversations/   (one envelope file per conversation, keyed by id)
//	  messages/
//	  snapshots/
//	  backups/
//	  indexes/
//	  temp/            (scratch files for atomic writes)
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at the given directory.
func NewLayout(root string) Layout {
	return Layout{root: root}
}

func (l Layout) Root() string             { return l.root }
func (l Layout) ConversationsDir() string { return filepath.Join(l.root, "conversations") }
func (l Layout) MessagesDir() string      { return filepath.Join(l.root, "messages") }
func (l Layout) SnapshotsDir() string     { return filepath.Join(l.root, "snapshots") }
func (l Layout) BackupsDir() string       { return filepath.Join(l.root, "backups") }
func (l Layout) IndexesDir() string       { return filepath.Join(l.root, "indexes") }
func (l Layout) TempDir() string          { return filepath.Join(l.root, "temp") }
func (l Layout) MetadataPath() string     { return filepath.Join(l.root, "store.json") }

// Dirs returns every directory the layout requires, for creation at open.
func (l Layout) Dirs() []string {
	return []string{
		l.ConversationsDir(),
		l.MessagesDir(),
		l.SnapshotsDir(),
		l.BackupsDir(),
		l.IndexesDir(),
		l.TempDir(),
	}
}

// DirFor returns the directory holding entities of the given kind.
func (l Layout) DirFor(kind model.Kind) (string, error) {
	switch kind {
	case model.KindConversation:
		return l.ConversationsDir(), nil
	case model.KindMessage:
		return l.MessagesDir(), nil
	case model.KindSnapshotCollection:
		return l.SnapshotsDir(), nil
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
}

// PathFor returns the file path for an entity, rejecting ids that could
// escape the entity directory.
func (l Layout) PathFor(kind model.Kind, id string) (string, error) {
	dir, err := l.DirFor(kind)
	if err != nil {
		return "", err
	}
	if err := checkID(id); err != nil {
		return "", err
	}
	return filepath.Join(dir, id+".json"), nil
}

// BackupDir returns the bundle directory for a backup id.
func (l Layout) BackupDir(backupID string) (string, error) {
	if err := checkID(backupID); err != nil {
		return "", err
	}
	return filepath.Join(l.BackupsDir(), backupID), nil
}

// IDFromFilename recovers an entity id from its file name, or "" if the
// name is not an envelope file.
func IDFromFilename(name string) string {
	if !strings.HasSuffix(name, ".json") {
		return ""
	}
	return strings.TrimSuffix(name, ".json")
}

// checkID rejects empty ids and ids containing path separators or
// parent-directory segments.
func checkID(id string) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}
