package chronicle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"chronicle/internal/model"
)

// BackupType classifies a backup bundle.
type BackupType string

const (
	BackupFull         BackupType = "full"
	BackupIncremental  BackupType = "incremental"
	BackupConversation BackupType = "conversation"
)

// BackupInfo is the metadata record written alongside every bundle.
type BackupInfo struct {
	ID          string     `json:"id"`
	Type        BackupType `json:"type"`
	CreatedAt   time.Time  `json:"createdAt"`
	Description string     `json:"description,omitempty"`
	// ConversationID is set for per-conversation backups.
	ConversationID string `json:"conversationId,omitempty"`
	// Since bounds an incremental backup: only envelopes serialized at or
	// after this instant are included. Nil for other backup types.
	Since         *time.Time `json:"since,omitempty"`
	Conversations int        `json:"conversations"`
	Messages      int        `json:"messages"`
	Snapshots     int        `json:"snapshots"`
}

const backupMetadataFile = "metadata.json"

// CreateFullBackup copies every entity file into a new bundle under the
// backups directory and mirrors the bundle to the vault when one is
// configured.
func (e *Engine) CreateFullBackup(description string) (*BackupInfo, error) {
	return e.createBackup(BackupInfo{Type: BackupFull, Description: description}, func(*model.Envelope) bool {
		return true
	}, "")
}

// CreateIncrementalBackup copies only entities serialized at or after the
// given instant.
func (e *Engine) CreateIncrementalBackup(since time.Time, description string) (*BackupInfo, error) {
	return e.createBackup(BackupInfo{Type: BackupIncremental, Description: description, Since: &since}, func(env *model.Envelope) bool {
		return !time.UnixMilli(env.SerializedAt).Before(since)
	}, "")
}

// CreateConversationBackup copies one conversation with its messages and
// their snapshot collections.
func (e *Engine) CreateConversationBackup(conversationID, description string) (*BackupInfo, error) {
	c, err := e.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("no such conversation %q", conversationID)
	}
	return e.createBackup(BackupInfo{
		Type:           BackupConversation,
		Description:    description,
		ConversationID: conversationID,
	}, func(*model.Envelope) bool { return true }, conversationID)
}

func (e *Engine) createBackup(info BackupInfo, include func(*model.Envelope) bool, onlyConversation string) (*BackupInfo, error) {
	now := e.clock.Now()
	info.ID = now.UTC().Format("20060102T150405Z") + "-" + shortSuffix(e.idgen.New())
	info.CreatedAt = now

	bundleDir, err := e.layout.BackupDir(info.ID)
	if err != nil {
		return nil, err
	}
	if err := e.fs.MkdirAll(bundleDir, 0o755); err != nil {
		return nil, &StorageError{Op: "mkdir", Path: bundleDir, Err: err}
	}

	// Per-conversation backups bound the entity set by ownership; the
	// filter then decides per file.
	var ownedMessages map[string]bool
	if onlyConversation != "" {
		mids, err := e.messagesOwnedBy(onlyConversation)
		if err != nil {
			return nil, err
		}
		ownedMessages = make(map[string]bool, len(mids))
		for _, mid := range mids {
			ownedMessages[mid] = true
		}
	}

	copyKind := func(kind model.Kind, subdir string, wanted func(id string, env *model.Envelope) bool) (int, error) {
		ids, err := e.listIDs(kind)
		if err != nil {
			return 0, err
		}
		destDir := filepath.Join(bundleDir, subdir)
		if err := e.fs.MkdirAll(destDir, 0o755); err != nil {
			return 0, &StorageError{Op: "mkdir", Path: destDir, Err: err}
		}
		count := 0
		for _, id := range ids {
			path, err := e.layout.PathFor(kind, id)
			if err != nil {
				continue
			}
			raw, err := e.fs.ReadFile(path)
			if err != nil {
				e.log.Warn("skipping unreadable file in backup", "kind", kind, "id", id, "error", err)
				continue
			}
			env, err := parseEnvelopeLoose(raw)
			if err != nil {
				e.log.Warn("skipping unparsable file in backup", "kind", kind, "id", id, "error", err)
				continue
			}
			if !wanted(id, env) {
				continue
			}
			dest := filepath.Join(destDir, id+".json")
			if err := e.fs.WriteFile(dest, raw, 0o644); err != nil {
				return count, &StorageError{Op: "write", Path: dest, Err: err}
			}
			count++
		}
		return count, nil
	}

	convCount, err := copyKind(model.KindConversation, "conversations", func(id string, env *model.Envelope) bool {
		if onlyConversation != "" && id != onlyConversation {
			return false
		}
		return include(env)
	})
	if err != nil {
		return nil, err
	}
	msgCount, err := copyKind(model.KindMessage, "messages", func(id string, env *model.Envelope) bool {
		if ownedMessages != nil && !ownedMessages[id] {
			return false
		}
		return include(env)
	})
	if err != nil {
		return nil, err
	}
	snapCount, err := copyKind(model.KindSnapshotCollection, "snapshots", func(id string, env *model.Envelope) bool {
		if ownedMessages != nil {
			sc, err := e.GetSnapshotCollection(id)
			if err != nil || sc == nil || !ownedMessages[sc.MessageID] {
				return false
			}
		}
		return include(env)
	})
	if err != nil {
		return nil, err
	}

	info.Conversations = convCount
	info.Messages = msgCount
	info.Snapshots = snapCount

	metaData, err := json.MarshalIndent(&info, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling backup metadata: %w", err)
	}
	metaPath := filepath.Join(bundleDir, backupMetadataFile)
	if err := e.fs.WriteFile(metaPath, metaData, 0o644); err != nil {
		return nil, &StorageError{Op: "write", Path: metaPath, Err: err}
	}

	if e.vault != nil {
		if err := e.mirrorBundle(info.ID, bundleDir); err != nil {
			e.log.Warn("vault mirror failed", "backup", info.ID, "error", err)
		}
	}

	e.log.Info("backup created", "id", info.ID, "type", info.Type,
		"conversations", convCount, "messages", msgCount, "snapshots", snapCount)
	return &info, nil
}

// ListBackups returns the metadata of every bundle, newest first.
func (e *Engine) ListBackups() ([]*BackupInfo, error) {
	entries, err := e.fs.ReadDir(e.layout.BackupsDir())
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: e.layout.BackupsDir(), Err: err}
	}
	var infos []*BackupInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metaPath := filepath.Join(e.layout.BackupsDir(), entry.Name(), backupMetadataFile)
		raw, err := e.fs.ReadFile(metaPath)
		if err != nil {
			continue
		}
		var info BackupInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			e.log.Warn("unreadable backup metadata", "backup", entry.Name(), "error", err)
			continue
		}
		infos = append(infos, &info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
	return infos, nil
}

// mirrorBundle uploads every file of a bundle to the vault under
// backups/<id>/<relative path>.
func (e *Engine) mirrorBundle(backupID, bundleDir string) error {
	return e.walkBundle(bundleDir, "", func(rel, full string) error {
		raw, err := e.fs.ReadFile(full)
		if err != nil {
			return &StorageError{Op: "read", Path: full, Err: err}
		}
		key := "backups/" + backupID + "/" + rel
		return e.vault.Put(key, bytes.NewReader(raw), int64(len(raw)))
	})
}

// walkBundle visits every regular file under dir, calling fn with the
// slash-separated relative path and the full path.
func (e *Engine) walkBundle(dir, prefix string, fn func(rel, full string) error) error {
	entries, err := e.fs.ReadDir(dir)
	if err != nil {
		return &StorageError{Op: "list", Path: dir, Err: err}
	}
	for _, entry := range entries {
		rel := entry.Name()
		if prefix != "" {
			rel = prefix + "/" + entry.Name()
		}
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := e.walkBundle(full, rel, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(rel, full); err != nil {
			return err
		}
	}
	return nil
}

// parseEnvelopeLoose decodes only the envelope framing, tolerating payloads
// that would fail entity validation. Backups copy what is on disk.
func parseEnvelopeLoose(raw []byte) (*model.Envelope, error) {
	var env model.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func shortSuffix(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
