package chronicle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"chronicle/internal/model"
)

// ExportDocument is the portable representation of a store, or a subset of
// it, as a single JSON document.
type ExportDocument struct {
	ExportedAt    time.Time                            `json:"exportedAt"`
	SchemaVersion int                                  `json:"schemaVersion"`
	Conversations []*model.Conversation                `json:"conversations"`
	Messages      map[string][]*model.Message          `json:"messages"`  // keyed by conversation id
	Snapshots     map[string]*model.SnapshotCollection `json:"snapshots"` // keyed by message id
}

// Export writes the selected conversations (all of them when ids is empty)
// with their messages and snapshot collections to w as JSON. When enc is
// non-nil the stream is encrypted.
func (e *Engine) Export(w io.Writer, ids []string, enc Encryptor) error {
	doc, err := e.buildExport(ids)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	if enc == nil {
		_, err = w.Write(data)
		return err
	}
	return enc.Encrypt(bytes.NewReader(data), w)
}

func (e *Engine) buildExport(ids []string) (*ExportDocument, error) {
	var convs []*model.Conversation
	if len(ids) == 0 {
		all, err := e.ListConversations()
		if err != nil {
			return nil, err
		}
		convs = all
	} else {
		for _, id := range ids {
			c, err := e.GetConversation(id)
			if err != nil {
				return nil, err
			}
			if c == nil {
				return nil, fmt.Errorf("no such conversation %q", id)
			}
			convs = append(convs, c)
		}
	}

	doc := &ExportDocument{
		ExportedAt:    e.clock.Now(),
		SchemaVersion: currentExportVersion,
		Conversations: convs,
		Messages:      make(map[string][]*model.Message),
		Snapshots:     make(map[string]*model.SnapshotCollection),
	}
	for _, c := range convs {
		msgs, err := e.GetMessages(c.ID)
		if err != nil {
			return nil, err
		}
		doc.Messages[c.ID] = msgs
		for _, m := range msgs {
			sc, err := e.GetSnapshotsForMessage(m.ID)
			if err != nil {
				return nil, err
			}
			if sc != nil {
				doc.Snapshots[m.ID] = sc
			}
		}
	}
	return doc, nil
}

const currentExportVersion = 1

// Import reads an export document from r and saves its contents through
// the normal save pipelines, so every imported entity is validated and
// indexed like a fresh write. When dec is non-nil the stream is decrypted
// first. Individual failures are collected; the import continues past
// them.
func (e *Engine) Import(r io.Reader, dec DecryptionContext) (int, error) {
	if dec != nil {
		var buf bytes.Buffer
		if err := dec.Decrypt(r, &buf); err != nil {
			return 0, fmt.Errorf("decrypting import: %w", err)
		}
		r = &buf
	}

	var doc ExportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("decoding import: %w", err)
	}
	if doc.SchemaVersion > currentExportVersion {
		return 0, fmt.Errorf("export document version %d is newer than this build supports", doc.SchemaVersion)
	}

	imported := 0
	var errs []error
	for _, c := range doc.Conversations {
		if err := e.SaveConversation(c); err != nil {
			errs = append(errs, fmt.Errorf("conversation %s: %w", c.ID, err))
			continue
		}
		imported++
		for _, m := range doc.Messages[c.ID] {
			if err := e.SaveMessage(m); err != nil {
				errs = append(errs, fmt.Errorf("message %s: %w", m.ID, err))
				continue
			}
			imported++
			if sc := doc.Snapshots[m.ID]; sc != nil {
				if err := e.SaveSnapshotCollection(sc); err != nil {
					errs = append(errs, fmt.Errorf("snapshot collection %s: %w", sc.ID, err))
					continue
				}
				imported++
			}
		}
	}
	return imported, errors.Join(errs...)
}
