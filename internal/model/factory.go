package model

import (
	"fmt"
	"time"

	"chronicle/internal/validate"
)

// NewConversation builds a validated conversation. The returned value is
// owned by the caller until handed to the storage engine.
func NewConversation(id, title string, createdAt time.Time) (*Conversation, error) {
	c := &Conversation{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
		Status:    StatusActive,
		Metadata: ConversationMetadata{
			MessageCount:   0,
			LastActivityAt: createdAt,
		},
	}
	if res := ValidateConversation(c); !res.Valid {
		return nil, fmt.Errorf("invalid conversation: %s", res.Errors[0].Error())
	}
	return c, nil
}

// NewMessage builds a validated message owned by the given conversation.
func NewMessage(id, conversationID string, sender Sender, content string, createdAt time.Time) (*Message, error) {
	m := &Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      createdAt,
		CodeChanges:    []CodeChange{},
		Snapshots:      []FileSnapshot{},
	}
	if res := ValidateMessage(m); !res.Valid {
		return nil, fmt.Errorf("invalid message: %s", res.Errors[0].Error())
	}
	return m, nil
}

// NewFileSnapshot captures file content, computing the checksum and size
// metadata so the result always satisfies the checksum invariant.
func NewFileSnapshot(path, content string, capturedAt time.Time, existed bool) FileSnapshot {
	s := FileSnapshot{
		Path:       path,
		Content:    content,
		CapturedAt: capturedAt,
		Metadata: SnapshotMetadata{
			Size:     int64(len(content)),
			Encoding: "utf-8",
			Existed:  existed,
		},
	}
	if len(content) > 0 {
		s.Checksum = validate.Checksum([]byte(content))
	}
	return s
}

// NewSnapshotCollection builds a validated snapshot collection for a message.
func NewSnapshotCollection(id, messageID string, createdAt time.Time, snapshots []FileSnapshot) (*SnapshotCollection, error) {
	sc := &SnapshotCollection{
		ID:        id,
		MessageID: messageID,
		CreatedAt: createdAt,
		Snapshots: append([]FileSnapshot(nil), snapshots...),
	}
	if res := ValidateSnapshotCollection(sc); !res.Valid {
		return nil, fmt.Errorf("invalid snapshot collection: %s", res.Errors[0].Error())
	}
	return sc, nil
}

// Clone returns a deep copy. Mutation is copy-on-write everywhere in the
// store: callers clone, modify, re-validate, then persist.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.MessageIDs = append([]string(nil), c.MessageIDs...)
	cp.Metadata.Tags = append([]string(nil), c.Metadata.Tags...)
	return &cp
}

// Clone returns a deep copy of the message and its embedded slices.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.CodeChanges = make([]CodeChange, len(m.CodeChanges))
	for i, cc := range m.CodeChanges {
		cp.CodeChanges[i] = cc
		if cc.Lines != nil {
			lines := *cc.Lines
			cp.CodeChanges[i].Lines = &lines
		}
	}
	cp.Snapshots = append([]FileSnapshot(nil), m.Snapshots...)
	if m.Metadata != nil {
		meta := *m.Metadata
		cp.Metadata = &meta
	}
	return &cp
}

// Clone returns a deep copy of the collection.
func (sc *SnapshotCollection) Clone() *SnapshotCollection {
	if sc == nil {
		return nil
	}
	cp := *sc
	cp.Snapshots = append([]FileSnapshot(nil), sc.Snapshots...)
	return &cp
}
