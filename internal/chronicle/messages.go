package chronicle

import (
	"errors"
	"fmt"

	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// SaveMessage validates and persists a message. The owning conversation
// must already exist, and the message may not predate it.
func (e *Engine) SaveMessage(m *model.Message) error {
	if m == nil {
		return fmt.Errorf("nil message")
	}
	return e.locks.Do(lockKey(model.KindMessage, m.ID), func() error {
		return e.saveMessageLocked(m)
	})
}

func (e *Engine) saveMessageLocked(m *model.Message) error {
	conv, err := e.GetConversation(m.ConversationID)
	if err != nil {
		return err
	}
	if conv == nil {
		return &DataIntegrityError{
			Kind: model.KindMessage, ID: m.ID,
			Reason: "owning conversation does not exist",
			Fields: []validate.FieldError{{Path: "conversationId", Message: "no such conversation", Value: m.ConversationID}},
		}
	}

	rep := integrity.DetectMessage(m)
	if rep.Corrupted {
		if !e.repairable(rep) {
			return &DataIntegrityError{Kind: model.KindMessage, ID: m.ID, Reason: "corrupted message rejected", Fields: rep.Errors}
		}
		e.preRepairBackup(model.KindMessage, m.ID)
		rm, out := integrity.RepairMessage(m, e.opts.RepairPolicy, e.clock.Now())
		if !out.Success {
			return &DataIntegrityError{Kind: model.KindMessage, ID: m.ID, Reason: "repair failed", Fields: out.Errors}
		}
		if rerep := integrity.DetectMessage(rm); rerep.Corrupted {
			return &DataIntegrityError{Kind: model.KindMessage, ID: m.ID, Reason: "entity still corrupted after repair", Fields: rerep.Errors}
		}
		e.log.Info("auto-repaired message", "id", m.ID, "repairedFields", out.RepairedFields, "removedItems", out.RemovedItems)
		m = rm
	}

	// A message older than its conversation is clock skew. Clamping is
	// lossless, so auto-repair may do it; otherwise the save is rejected.
	if !m.CreatedAt.IsZero() && !conv.CreatedAt.IsZero() && m.CreatedAt.Before(conv.CreatedAt) {
		if !e.opts.AutoRepair {
			return &DataIntegrityError{
				Kind: model.KindMessage, ID: m.ID,
				Reason: "message predates its conversation",
				Fields: []validate.FieldError{{Path: "createdAt", Message: "message older than its conversation"}},
			}
		}
		m = m.Clone()
		m.CreatedAt = conv.CreatedAt
		e.log.Info("clamped message timestamp to conversation", "id", m.ID)
	}

	return e.commitMessage(m)
}

// commitMessage writes a message that has already passed detection, then
// updates the cache and the index. Callers hold the message lock.
func (e *Engine) commitMessage(m *model.Message) error {
	if err := e.writeEntity(model.KindMessage, m.ID, m); err != nil {
		return err
	}
	e.mu.Lock()
	e.msgCache[m.ID] = m.Clone()
	e.mu.Unlock()
	if e.index != nil {
		if err := e.index.Add(model.KindMessage, m.ID, m.ConversationID, Tokenize(m.Content)); err != nil {
			e.log.Warn("index update failed", "kind", model.KindMessage, "id", m.ID, "error", err)
		}
	}
	return nil
}

// GetMessage returns a message by id, or (nil, nil) when no usable record
// exists.
func (e *Engine) GetMessage(id string) (*model.Message, error) {
	e.mu.RLock()
	cached := e.msgCache[id]
	e.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	path, err := e.layout.PathFor(model.KindMessage, id)
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
	m, err := codec.DeserializeMessage(raw, e.readOptions())
	if err != nil {
		if errors.Is(err, codec.ErrVersionAhead) {
			return nil, err
		}
		e.log.Warn("unreadable message file", "id", id, "error", err)
		return nil, nil
	}
	e.mu.Lock()
	e.msgCache[id] = m.Clone()
	e.mu.Unlock()
	return m, nil
}

// GetMessages returns a conversation's messages in the conversation's
// recorded order. A missing conversation yields an empty list.
func (e *Engine) GetMessages(conversationID string) ([]*model.Message, error) {
	conv, err := e.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []*model.Message{}, nil
	}
	msgs := make([]*model.Message, 0, len(conv.MessageIDs))
	for _, mid := range conv.MessageIDs {
		m, err := e.GetMessage(mid)
		if err != nil {
			return nil, err
		}
		if m != nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

// DeleteMessage removes a message and any snapshot collection it owns. The
// owning conversation's id list is corrected on its next save.
func (e *Engine) DeleteMessage(id string) error {
	return e.locks.Do(lockKey(model.KindMessage, id), func() error {
		return e.deleteMessageLocked(id)
	})
}

func (e *Engine) deleteMessageLocked(id string) error {
	var errs []error

	collIDs, err := e.collectionsOwnedBy(id)
	if err != nil {
		errs = append(errs, err)
	}
	for _, cid := range collIDs {
		if err := e.locks.Do(lockKey(model.KindSnapshotCollection, cid), func() error {
			return e.deleteCollectionLocked(cid)
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if err := e.removeEntity(model.KindMessage, id); err != nil {
		errs = append(errs, err)
	}
	e.mu.Lock()
	delete(e.msgCache, id)
	e.mu.Unlock()
	if e.index != nil {
		if err := e.index.Remove(model.KindMessage, id); err != nil {
			e.log.Warn("index remove failed", "kind", model.KindMessage, "id", id, "error", err)
		}
		if err := e.index.RemoveCollectionFor(id); err != nil {
			e.log.Warn("index remove failed", "kind", model.KindSnapshotCollection, "messageId", id, "error", err)
		}
	}
	return errors.Join(errs...)
}
