package testutil

import (
	"time"

	"chronicle/internal/model"
)

// ValidConversation returns a minimal valid conversation for tests.
func ValidConversation(id string, createdAt time.Time) *model.Conversation {
	return &model.Conversation{
		ID:        id,
		Title:     "Conversation " + id,
		CreatedAt: createdAt,
		Status:    model.StatusActive,
		Metadata: model.ConversationMetadata{
			LastActivityAt: createdAt,
		},
	}
}

// ValidMessage returns a minimal valid message for tests.
func ValidMessage(id, conversationID string, createdAt time.Time) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         model.SenderUser,
		Content:        "message " + id,
		CreatedAt:      createdAt,
		CodeChanges:    []model.CodeChange{},
		Snapshots:      []model.FileSnapshot{},
	}
}

// ValidCollection returns a valid snapshot collection for tests.
func ValidCollection(id, messageID string, createdAt time.Time, snapshots ...model.FileSnapshot) *model.SnapshotCollection {
	return &model.SnapshotCollection{
		ID:        id,
		MessageID: messageID,
		CreatedAt: createdAt,
		Snapshots: snapshots,
	}
}
