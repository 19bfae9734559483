package chronicle

import (
	"fmt"

	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
)

// IntegrityReport summarizes a full-store verification sweep.
type IntegrityReport struct {
	ItemsChecked   int
	CorruptedItems []CorruptedItem
	RepairedItems  []string
	Errors         []string
}

// CorruptedItem describes one entity that failed verification.
type CorruptedItem struct {
	Kind     model.Kind
	ID       string
	Severity integrity.Severity
	Fields   []string
}

// VerifyDataIntegrity checks every entity in the store. When AutoRepair is
// enabled, repairable low/medium corruption is fixed in place; everything
// else is reported. The sweep continues past individual failures.
func (e *Engine) VerifyDataIntegrity() (*IntegrityReport, error) {
	report := &IntegrityReport{}

	convIDs, err := e.listIDs(model.KindConversation)
	if err != nil {
		return nil, err
	}
	for _, id := range convIDs {
		c, err := e.GetConversation(id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("conversation %s: %v", id, err))
			continue
		}
		report.ItemsChecked++
		if c == nil {
			report.CorruptedItems = append(report.CorruptedItems, CorruptedItem{
				Kind: model.KindConversation, ID: id, Severity: integrity.SeverityHigh, Fields: []string{"envelope"},
			})
			continue
		}
		msgs := e.loadOwnedMessages(c)
		rep := integrity.DetectConversation(c, msgs)
		e.sweepEntity(report, model.KindConversation, id, rep, func() error {
			return e.locks.Do(lockKey(model.KindConversation, id), func() error {
				return e.saveConversationLocked(c)
			})
		})
	}

	msgIDs, err := e.listIDs(model.KindMessage)
	if err != nil {
		return nil, err
	}
	for _, id := range msgIDs {
		m, err := e.GetMessage(id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("message %s: %v", id, err))
			continue
		}
		report.ItemsChecked++
		if m == nil {
			report.CorruptedItems = append(report.CorruptedItems, CorruptedItem{
				Kind: model.KindMessage, ID: id, Severity: integrity.SeverityHigh, Fields: []string{"envelope"},
			})
			continue
		}
		rep := integrity.DetectMessage(m)
		e.sweepEntity(report, model.KindMessage, id, rep, func() error {
			return e.SaveMessage(m)
		})
	}

	collIDs, err := e.listIDs(model.KindSnapshotCollection)
	if err != nil {
		return nil, err
	}
	for _, id := range collIDs {
		sc, err := e.GetSnapshotCollection(id)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("snapshot collection %s: %v", id, err))
			continue
		}
		report.ItemsChecked++
		if sc == nil {
			report.CorruptedItems = append(report.CorruptedItems, CorruptedItem{
				Kind: model.KindSnapshotCollection, ID: id, Severity: integrity.SeverityHigh, Fields: []string{"envelope"},
			})
			continue
		}
		rep := integrity.DetectSnapshotCollection(sc)
		e.sweepEntity(report, model.KindSnapshotCollection, id, rep, func() error {
			return e.SaveSnapshotCollection(sc)
		})
	}

	e.log.Info("integrity sweep complete",
		"checked", report.ItemsChecked, "corrupted", len(report.CorruptedItems), "repaired", len(report.RepairedItems))
	return report, nil
}

// sweepEntity records a detection result and, when permitted, routes the
// entity back through its save pipeline so the normal repair path runs.
func (e *Engine) sweepEntity(report *IntegrityReport, kind model.Kind, id string, rep integrity.Report, resave func() error) {
	if !rep.Corrupted {
		return
	}
	item := CorruptedItem{Kind: kind, ID: id, Severity: rep.Severity, Fields: rep.CorruptedFields}
	if !e.repairable(rep) {
		report.CorruptedItems = append(report.CorruptedItems, item)
		return
	}
	if err := resave(); err != nil {
		report.CorruptedItems = append(report.CorruptedItems, item)
		report.Errors = append(report.Errors, fmt.Sprintf("%s %s: repair failed: %v", kind, id, err))
		return
	}
	report.RepairedItems = append(report.RepairedItems, string(kind)+"/"+id)
}

// MigrateOptions tunes a store-wide schema migration.
type MigrateOptions struct {
	// BackupFirst creates a full backup before any file is rewritten.
	BackupFirst bool
	// StopOnError aborts the sweep at the first failed file instead of
	// continuing and reporting it.
	StopOnError bool
}

// MigrateReport summarizes a store-wide schema migration.
type MigrateReport struct {
	Scanned  int
	Migrated int
	Failed   int
	Errors   []string
}

// MigrateStore rewrites every envelope at an older schema version at the
// current one. Files already current are left untouched; unreadable files
// are reported and skipped.
func (e *Engine) MigrateStore(opts MigrateOptions) (*MigrateReport, error) {
	if opts.BackupFirst {
		if _, err := e.CreateFullBackup("pre-migration backup"); err != nil {
			return nil, fmt.Errorf("pre-migration backup: %w", err)
		}
	}

	report := &MigrateReport{}
	for _, kind := range []model.Kind{model.KindConversation, model.KindMessage, model.KindSnapshotCollection} {
		ids, err := e.listIDs(kind)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			report.Scanned++
			migrated, err := e.migrateOne(kind, id)
			if err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", kind, id, err))
				if opts.StopOnError {
					return report, err
				}
				continue
			}
			if migrated {
				report.Migrated++
			}
		}
	}
	e.log.Info("store migration complete",
		"scanned", report.Scanned, "migrated", report.Migrated, "failed", report.Failed)
	return report, nil
}

// migrateOne upgrades a single file if it is behind the current schema
// version. Returns whether a rewrite happened.
func (e *Engine) migrateOne(kind model.Kind, id string) (bool, error) {
	var migrated bool
	err := e.locks.Do(lockKey(kind, id), func() error {
		path, err := e.layout.PathFor(kind, id)
		if err != nil {
			return err
		}
		raw, err := e.fs.ReadFile(path)
		if err != nil {
			return &StorageError{Op: "read", Path: path, Err: err}
		}
		env, err := codec.ParseEnvelope(raw)
		if err != nil {
			return err
		}
		if env.SchemaVersion >= codec.CurrentSchemaVersion {
			if env.SchemaVersion > codec.CurrentSchemaVersion {
				return fmt.Errorf("%s %s: %w", kind, id, codec.ErrVersionAhead)
			}
			return nil
		}

		data, err := e.rewriteAtCurrent(kind, raw)
		if err != nil {
			return err
		}
		if err := e.writer.Write(path, data, codec.VerifyFunc(kind)); err != nil {
			return err
		}
		e.evict(kind, id)
		migrated = true
		return nil
	})
	return migrated, err
}

// rewriteAtCurrent deserializes with migration enabled and re-serializes at
// the current schema version.
func (e *Engine) rewriteAtCurrent(kind model.Kind, raw []byte) ([]byte, error) {
	opts := codec.Options{AutoMigrate: true}
	now := e.clock.Now()
	switch kind {
	case model.KindConversation:
		c, err := codec.DeserializeConversation(raw, opts)
		if err != nil {
			return nil, err
		}
		return codec.Serialize(kind, c, now)
	case model.KindMessage:
		m, err := codec.DeserializeMessage(raw, opts)
		if err != nil {
			return nil, err
		}
		return codec.Serialize(kind, m, now)
	case model.KindSnapshotCollection:
		sc, err := codec.DeserializeSnapshotCollection(raw, opts)
		if err != nil {
			return nil, err
		}
		return codec.Serialize(kind, sc, now)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
}

func (e *Engine) evict(kind model.Kind, id string) {
	e.mu.Lock()
	switch kind {
	case model.KindConversation:
		delete(e.convCache, id)
	case model.KindMessage:
		delete(e.msgCache, id)
	case model.KindSnapshotCollection:
		delete(e.collCache, id)
	}
	e.mu.Unlock()
}
