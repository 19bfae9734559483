package chronicle

import (
	"errors"
	"fmt"

	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// SaveSnapshotCollection validates and persists a snapshot collection. The
// owning message must already exist.
func (e *Engine) SaveSnapshotCollection(sc *model.SnapshotCollection) error {
	if sc == nil {
		return fmt.Errorf("nil snapshot collection")
	}
	return e.locks.Do(lockKey(model.KindSnapshotCollection, sc.ID), func() error {
		return e.saveCollectionLocked(sc)
	})
}

func (e *Engine) saveCollectionLocked(sc *model.SnapshotCollection) error {
	owner, err := e.GetMessage(sc.MessageID)
	if err != nil {
		return err
	}
	if owner == nil {
		return &DataIntegrityError{
			Kind: model.KindSnapshotCollection, ID: sc.ID,
			Reason: "owning message does not exist",
			Fields: []validate.FieldError{{Path: "messageId", Message: "no such message", Value: sc.MessageID}},
		}
	}

	rep := integrity.DetectSnapshotCollection(sc)
	if rep.Corrupted {
		if !e.repairable(rep) {
			return &DataIntegrityError{Kind: model.KindSnapshotCollection, ID: sc.ID, Reason: "corrupted snapshot collection rejected", Fields: rep.Errors}
		}
		e.preRepairBackup(model.KindSnapshotCollection, sc.ID)
		rsc, out := integrity.RepairSnapshotCollection(sc, e.opts.RepairPolicy, e.clock.Now())
		if !out.Success {
			return &DataIntegrityError{Kind: model.KindSnapshotCollection, ID: sc.ID, Reason: "repair failed", Fields: out.Errors}
		}
		if rerep := integrity.DetectSnapshotCollection(rsc); rerep.Corrupted {
			return &DataIntegrityError{Kind: model.KindSnapshotCollection, ID: sc.ID, Reason: "entity still corrupted after repair", Fields: rerep.Errors}
		}
		e.log.Info("auto-repaired snapshot collection", "id", sc.ID, "repairedFields", out.RepairedFields, "removedItems", out.RemovedItems)
		sc = rsc
	}

	if err := e.writeEntity(model.KindSnapshotCollection, sc.ID, sc); err != nil {
		return err
	}
	e.mu.Lock()
	e.collCache[sc.ID] = sc.Clone()
	e.mu.Unlock()
	if e.index != nil {
		if err := e.index.SetCollectionFor(sc.MessageID, sc.ID); err != nil {
			e.log.Warn("index update failed", "kind", model.KindSnapshotCollection, "id", sc.ID, "error", err)
		}
	}
	return nil
}

// GetSnapshotCollection returns a collection by id, or (nil, nil) when no
// usable record exists.
func (e *Engine) GetSnapshotCollection(id string) (*model.SnapshotCollection, error) {
	e.mu.RLock()
	cached := e.collCache[id]
	e.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	path, err := e.layout.PathFor(model.KindSnapshotCollection, id)
	if err != nil {
		return nil, &StorageError{Op: "read", Path: id, Err: err}
	}
	raw, err := e.fs.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return nil, nil
		}
		return nil, &StorageError{Op: "read", Path: path, Err: err}
	}
	sc, err := codec.DeserializeSnapshotCollection(raw, e.readOptions())
	if err != nil {
		if errors.Is(err, codec.ErrVersionAhead) {
			return nil, err
		}
		e.log.Warn("unreadable snapshot collection file", "id", id, "error", err)
		return nil, nil
	}
	e.mu.Lock()
	e.collCache[id] = sc.Clone()
	e.mu.Unlock()
	return sc, nil
}

// GetSnapshotsForMessage returns the snapshot collection owned by a
// message, or (nil, nil) when the message has none. The index mapping is
// tried first; a directory sweep is the fallback.
func (e *Engine) GetSnapshotsForMessage(messageID string) (*model.SnapshotCollection, error) {
	if e.index != nil {
		cid, err := e.index.CollectionFor(messageID)
		if err != nil {
			e.log.Warn("index lookup failed", "messageId", messageID, "error", err)
		} else if cid != "" {
			sc, err := e.GetSnapshotCollection(cid)
			if err != nil || sc != nil {
				return sc, err
			}
		}
	}
	ids, err := e.collectionsOwnedBy(messageID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return e.GetSnapshotCollection(ids[0])
}

// VerifySnapshots checks the content checksum of every snapshot owned by a
// message. Each mismatch is reported as a SnapshotError; multiple mismatches
// are joined. A message without snapshots verifies clean.
func (e *Engine) VerifySnapshots(messageID string) error {
	sc, err := e.GetSnapshotsForMessage(messageID)
	if err != nil {
		return err
	}
	if sc == nil {
		return nil
	}
	var errs []error
	for i := range sc.Snapshots {
		snap := &sc.Snapshots[i]
		if len(model.VerifySnapshotIntegrity(snap)) > 0 {
			errs = append(errs, &SnapshotError{FilePath: snap.Path, Checksum: snap.Checksum})
		}
	}
	return errors.Join(errs...)
}

// collectionsOwnedBy scans the snapshots directory for collections whose
// owning message matches.
func (e *Engine) collectionsOwnedBy(messageID string) ([]string, error) {
	ids, err := e.listIDs(model.KindSnapshotCollection)
	if err != nil {
		return nil, err
	}
	var owned []string
	for _, cid := range ids {
		sc, err := e.GetSnapshotCollection(cid)
		if err != nil || sc == nil {
			continue
		}
		if sc.MessageID == messageID {
			owned = append(owned, cid)
		}
	}
	return owned, nil
}

func (e *Engine) deleteCollectionLocked(id string) error {
	if err := e.removeEntity(model.KindSnapshotCollection, id); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.collCache, id)
	e.mu.Unlock()
	return nil
}
