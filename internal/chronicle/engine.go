// Package chronicle implements the storage engine for conversational
// records: conversations, messages and file-snapshot collections persisted
// as versioned envelopes in a local directory tree, with atomic writes,
// corruption detection and repair, schema migration, backup and restore,
// and search.
package chronicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
)

// Options tunes engine behavior. The zero value is a conservative engine
// that detects corruption but never rewrites data on its own.
type Options struct {
	// AutoRepair rewrites entities whose corruption is repairable at low or
	// medium severity before saving. High-severity corruption always fails
	// the save.
	AutoRepair bool

	// BackupBeforeRepair snapshots the current on-disk file before an
	// auto-repair overwrites it.
	BackupBeforeRepair bool

	// RepairPolicy gates which repairs auto-repair may perform. The zero
	// policy permits nothing; most callers want integrity.DefaultPolicy.
	RepairPolicy integrity.Policy

	// MigrateOnRead upgrades envelopes from older schema versions when they
	// are read. Disabled, reading an old envelope is an error.
	MigrateOnRead bool
}

// Engine is the storage engine. All public methods are safe for concurrent
// use: per-entity writes serialize on a keyed lock while operations on
// unrelated entities proceed in parallel.
type Engine struct {
	fs     Filesystem
	layout Layout
	log    Logger
	clock  Clock
	idgen  IDGenerator
	index  WordIndex // nil when no index is configured
	vault  Vault     // nil when no vault is configured
	opts   Options

	locks  *KeyedLock
	writer *atomicWriter

	mu        sync.RWMutex
	convCache map[string]*model.Conversation
	msgCache  map[string]*model.Message
	collCache map[string]*model.SnapshotCollection
}

// NewEngine opens (creating if necessary) a store rooted at layout. The
// index and vault are optional and may be nil.
func NewEngine(fs Filesystem, layout Layout, log Logger, clock Clock, idgen IDGenerator, index WordIndex, vault Vault, opts Options) (*Engine, error) {
	e := &Engine{
		fs:        fs,
		layout:    layout,
		log:       log,
		clock:     clock,
		idgen:     idgen,
		index:     index,
		vault:     vault,
		opts:      opts,
		locks:     NewKeyedLock(),
		writer:    newAtomicWriter(fs, layout.TempDir(), idgen),
		convCache: make(map[string]*model.Conversation),
		msgCache:  make(map[string]*model.Message),
		collCache: make(map[string]*model.SnapshotCollection),
	}
	for _, dir := range layout.Dirs() {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, &StorageError{Op: "mkdir", Path: dir, Err: err}
		}
	}
	if err := e.touchStoreMetadata(); err != nil {
		return nil, err
	}
	e.startupCheck()
	return e, nil
}

// startupCheck logs a quick store health summary on open. Problems are
// reported, never fatal: a store that opens is a store the repair tooling
// can still reach.
func (e *Engine) startupCheck() {
	for _, kind := range []model.Kind{model.KindConversation, model.KindMessage, model.KindSnapshotCollection} {
		ids, err := e.listIDs(kind)
		if err != nil {
			e.log.Warn("store self-check failed", "kind", kind, "error", err)
			continue
		}
		e.log.Debug("store opened", "kind", kind, "count", len(ids))
	}
}

// Layout exposes the store layout for callers that place auxiliary files
// (index databases, logs) inside the store root.
func (e *Engine) Layout() Layout { return e.layout }

// touchStoreMetadata creates store.json on first open and refreshes the
// last-accessed timestamp on every open.
func (e *Engine) touchStoreMetadata() error {
	now := e.clock.Now()
	meta := model.StoreMetadata{
		CreatedAt:      now,
		LastAccessedAt: now,
		SchemaVersion:  codec.CurrentSchemaVersion,
	}
	if raw, err := e.fs.ReadFile(e.layout.MetadataPath()); err == nil {
		var existing model.StoreMetadata
		if err := json.Unmarshal(raw, &existing); err == nil && !existing.CreatedAt.IsZero() {
			meta.CreatedAt = existing.CreatedAt
			if existing.SchemaVersion > codec.CurrentSchemaVersion {
				e.log.Warn("store was written by a newer schema version",
					"store", existing.SchemaVersion, "supported", codec.CurrentSchemaVersion)
			}
		}
	}
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling store metadata: %w", err)
	}
	if err := e.fs.WriteFile(e.layout.MetadataPath(), data, 0o644); err != nil {
		return &StorageError{Op: "write", Path: e.layout.MetadataPath(), Err: err}
	}
	return nil
}

// readOptions returns the codec options this engine reads with.
func (e *Engine) readOptions() codec.Options {
	return codec.Options{AutoMigrate: e.opts.MigrateOnRead}
}

func lockKey(kind model.Kind, id string) string {
	return string(kind) + "/" + id
}

// repairable reports whether the engine is allowed to auto-repair an entity
// with the given detection report. High severity is never auto-repaired.
func (e *Engine) repairable(rep integrity.Report) bool {
	return e.opts.AutoRepair && rep.CanRepair && rep.Severity.AtMost(integrity.SeverityMedium)
}

// preRepairBackup copies the committed file aside before a repair
// overwrites it, when the file exists and the option is set.
func (e *Engine) preRepairBackup(kind model.Kind, id string) {
	if !e.opts.BackupBeforeRepair {
		return
	}
	path, err := e.layout.PathFor(kind, id)
	if err != nil {
		return
	}
	raw, err := e.fs.ReadFile(path)
	if err != nil {
		return
	}
	backup := path + ".pre-repair-" + e.clock.Now().UTC().Format("20060102T150405Z")
	if err := e.fs.WriteFile(backup, raw, 0o644); err != nil {
		e.log.Warn("pre-repair backup failed", "kind", kind, "id", id, "error", err)
		return
	}
	e.log.Info("pre-repair backup written", "kind", kind, "id", id, "path", backup)
}

// writeEntity serializes and atomically commits one entity file.
func (e *Engine) writeEntity(kind model.Kind, id string, entity any) error {
	path, err := e.layout.PathFor(kind, id)
	if err != nil {
		return &StorageError{Op: "write", Path: string(kind) + "/" + id, Err: err}
	}
	data, err := codec.Serialize(kind, entity, e.clock.Now())
	if err != nil {
		return &StorageError{Op: "serialize", Path: path, Err: err}
	}
	return e.writer.Write(path, data, codec.VerifyFunc(kind))
}

// removeEntity deletes one entity file; a missing file is not an error.
func (e *Engine) removeEntity(kind model.Kind, id string) error {
	path, err := e.layout.PathFor(kind, id)
	if err != nil {
		return &StorageError{Op: "delete", Path: string(kind) + "/" + id, Err: err}
	}
	if err := e.fs.Remove(path); err != nil && !isNotExist(err) {
		return &StorageError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

// listIDs returns the ids of all committed entities of a kind, in file
// name order.
func (e *Engine) listIDs(kind model.Kind) ([]string, error) {
	dir, err := e.layout.DirFor(kind)
	if err != nil {
		return nil, err
	}
	entries, err := e.fs.ReadDir(dir)
	if err != nil {
		return nil, &StorageError{Op: "list", Path: dir, Err: err}
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id := IDFromFilename(entry.Name()); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// clearCaches drops every cached entity, after a restore or external
// modification of the store.
func (e *Engine) clearCaches() {
	e.mu.Lock()
	e.convCache = make(map[string]*model.Conversation)
	e.msgCache = make(map[string]*model.Message)
	e.collCache = make(map[string]*model.SnapshotCollection)
	e.mu.Unlock()
}

// Close releases engine resources. The engine itself holds no open
// handles; the index does.
func (e *Engine) Close() error {
	if e.index != nil {
		return e.index.Close()
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
