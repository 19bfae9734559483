package chronicle

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
)

// SaveConversation validates and persists a conversation. Corruption that
// the engine may repair (per Options) is fixed before the write; anything
// else fails with a DataIntegrityError and the committed file is untouched.
func (e *Engine) SaveConversation(c *model.Conversation) error {
	if c == nil {
		return fmt.Errorf("nil conversation")
	}
	return e.locks.Do(lockKey(model.KindConversation, c.ID), func() error {
		return e.saveConversationLocked(c)
	})
}

func (e *Engine) saveConversationLocked(c *model.Conversation) error {
	// Detection sees the messages that are already committed. Ids that point
	// at not-yet-saved messages are fine; saving the conversation first is
	// the normal write order.
	msgs := e.loadOwnedMessages(c)

	rep := integrity.DetectConversation(c, msgs)
	if rep.Corrupted {
		if !e.repairable(rep) {
			return &DataIntegrityError{Kind: model.KindConversation, ID: c.ID, Reason: "corrupted conversation rejected", Fields: rep.Errors}
		}
		e.preRepairBackup(model.KindConversation, c.ID)
		rc, rms, out := integrity.RepairConversation(c, msgs, e.opts.RepairPolicy, e.clock.Now())
		if !out.Success {
			return &DataIntegrityError{Kind: model.KindConversation, ID: c.ID, Reason: "repair failed", Fields: out.Errors}
		}
		// A repair that leaves the entity corrupted must never be committed.
		if rerep := integrity.DetectConversation(rc, rms); rerep.Corrupted {
			return &DataIntegrityError{Kind: model.KindConversation, ID: c.ID, Reason: "entity still corrupted after repair", Fields: rerep.Errors}
		}
		for _, rm := range rms {
			if err := e.locks.Do(lockKey(model.KindMessage, rm.ID), func() error {
				return e.commitMessage(rm)
			}); err != nil {
				return err
			}
		}
		e.log.Info("auto-repaired conversation",
			"id", c.ID, "repairedFields", out.RepairedFields, "removedItems", out.RemovedItems)
		c = rc
	}

	if err := e.writeEntity(model.KindConversation, c.ID, c); err != nil {
		return err
	}
	e.mu.Lock()
	e.convCache[c.ID] = c.Clone()
	e.mu.Unlock()
	e.indexConversation(c)
	return nil
}

// GetConversation returns a conversation by id, or (nil, nil) when no
// usable record exists. An unreadable envelope is logged and treated as
// not found; I/O failures and envelopes from a newer build are errors.
func (e *Engine) GetConversation(id string) (*model.Conversation, error) {
	e.mu.RLock()
	cached := e.convCache[id]
	e.mu.RUnlock()
	if cached != nil {
		return cached.Clone(), nil
	}

	path, err := e.layout.PathFor(model.KindConversation, id)
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
	c, err := codec.DeserializeConversation(raw, e.readOptions())
	if err != nil {
		if errors.Is(err, codec.ErrVersionAhead) {
			return nil, err
		}
		e.log.Warn("unreadable conversation file", "id", id, "error", err)
		return nil, nil
	}
	e.mu.Lock()
	e.convCache[id] = c.Clone()
	e.mu.Unlock()
	return c, nil
}

// ListConversations returns every readable conversation, oldest first.
func (e *Engine) ListConversations() ([]*model.Conversation, error) {
	ids, err := e.listIDs(model.KindConversation)
	if err != nil {
		return nil, err
	}
	out := make([]*model.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := e.GetConversation(id)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteConversation removes a conversation and cascades to every message
// owned by it and every snapshot collection owned by those messages. The
// messages directory is scanned by owner id, so messages missing from the
// conversation's id list are still cleaned up. Partial failures are
// collected; the deletion continues past them.
func (e *Engine) DeleteConversation(id string) error {
	return e.locks.Do(lockKey(model.KindConversation, id), func() error {
		var errs []error

		msgIDs, err := e.messagesOwnedBy(id)
		if err != nil {
			return err
		}
		for _, mid := range msgIDs {
			if err := e.locks.Do(lockKey(model.KindMessage, mid), func() error {
				return e.deleteMessageLocked(mid)
			}); err != nil {
				errs = append(errs, err)
			}
		}

		if err := e.removeEntity(model.KindConversation, id); err != nil {
			errs = append(errs, err)
		}
		e.mu.Lock()
		delete(e.convCache, id)
		e.mu.Unlock()
		if e.index != nil {
			if err := e.index.Remove(model.KindConversation, id); err != nil {
				e.log.Warn("index remove failed", "kind", model.KindConversation, "id", id, "error", err)
			}
		}
		e.log.Info("deleted conversation", "id", id, "messages", len(msgIDs))
		return errors.Join(errs...)
	})
}

// loadOwnedMessages reads the committed messages named by the
// conversation's id list, preserving that order. Missing ids are skipped.
func (e *Engine) loadOwnedMessages(c *model.Conversation) []*model.Message {
	if c == nil {
		return nil
	}
	msgs := make([]*model.Message, 0, len(c.MessageIDs))
	for _, mid := range c.MessageIDs {
		m, err := e.GetMessage(mid)
		if err != nil || m == nil {
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs
}

// messagesOwnedBy scans the messages directory for every message whose
// owning conversation matches, regardless of the conversation's id list.
func (e *Engine) messagesOwnedBy(conversationID string) ([]string, error) {
	ids, err := e.listIDs(model.KindMessage)
	if err != nil {
		return nil, err
	}
	var owned []string
	for _, mid := range ids {
		m, err := e.GetMessage(mid)
		if err != nil || m == nil {
			continue
		}
		if m.ConversationID == conversationID {
			owned = append(owned, mid)
		}
	}
	return owned, nil
}

func (e *Engine) indexConversation(c *model.Conversation) {
	if e.index == nil {
		return
	}
	text := c.Title + " " + strings.Join(c.Metadata.Tags, " ")
	if err := e.index.Add(model.KindConversation, c.ID, c.ID, Tokenize(text)); err != nil {
		e.log.Warn("index update failed", "kind", model.KindConversation, "id", c.ID, "error", err)
	}
}
