package model

import (
	"encoding/json"
	"time"
)

// Kind identifies which entity type an on-disk envelope carries.
type Kind string

const (
	KindConversation       Kind = "conversation"
	KindMessage            Kind = "message"
	KindSnapshotCollection Kind = "snapshot_collection"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusActive   ConversationStatus = "active"
	StatusArchived ConversationStatus = "archived"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// ChangeKind classifies a code change captured in a message.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeModify ChangeKind = "modify"
	ChangeDelete ChangeKind = "delete"
)

// Conversation is the top-level record of a chat session. Messages are owned
// by the conversation and referenced by ID in order.
type Conversation struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	CreatedAt  time.Time            `json:"createdAt"`
	MessageIDs []string             `json:"messageIds"`
	Status     ConversationStatus   `json:"status"`
	Metadata   ConversationMetadata `json:"metadata"`
}

// ConversationMetadata holds derived bookkeeping for a conversation.
type ConversationMetadata struct {
	MessageCount   int       `json:"messageCount"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Tags           []string  `json:"tags,omitempty"`
}

// Message is one turn of a conversation, with any code changes and file
// snapshots captured alongside it.
type Message struct {
	ID             string           `json:"id"`
	ConversationID string           `json:"conversationId"`
	Sender         Sender           `json:"sender"`
	Content        string           `json:"content"`
	CreatedAt      time.Time        `json:"createdAt"`
	CodeChanges    []CodeChange     `json:"codeChanges"`
	Snapshots      []FileSnapshot   `json:"snapshots"`
	Metadata       *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata holds optional per-message statistics.
type MessageMetadata struct {
	TokenEstimate    int   `json:"tokenEstimate,omitempty"`
	ProcessingMillis int64 `json:"processingMillis,omitempty"`
	HadError         bool  `json:"hadError,omitempty"`
}

// CodeChange describes a single file edit attributed to a message.
// BeforeContent is required for modify/delete, AfterContent for create/modify.
type CodeChange struct {
	Path          string             `json:"path"`
	Kind          ChangeKind         `json:"kind"`
	BeforeContent string             `json:"beforeContent,omitempty"`
	AfterContent  string             `json:"afterContent,omitempty"`
	Lines         *LineRange         `json:"lines,omitempty"`
	Metadata      CodeChangeMetadata `json:"metadata"`
}

// LineRange is a 1-based inclusive line span. Start must be <= End.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CodeChangeMetadata holds derived details about a code change.
type CodeChangeMetadata struct {
	ByteDelta   int     `json:"byteDelta"`
	Language    string  `json:"language,omitempty"`
	AIGenerated bool    `json:"aiGenerated"`
	Confidence  float64 `json:"confidence"`
}

// FileSnapshot is the full content of one file at capture time.
// Checksum must equal the strong hash of Content; empty content is exempt.
type FileSnapshot struct {
	Path       string           `json:"path"`
	Content    string           `json:"content"`
	CapturedAt time.Time        `json:"capturedAt"`
	Checksum   string           `json:"checksum"`
	Metadata   SnapshotMetadata `json:"metadata"`
}

// SnapshotMetadata holds derived details about a file snapshot.
type SnapshotMetadata struct {
	Size     int64  `json:"size"`
	Encoding string `json:"encoding,omitempty"`
	Language string `json:"language,omitempty"`
	Existed  bool   `json:"existed"`
}

// SnapshotCollection groups the file snapshots captured for one message.
// Paths are unique within a collection and no snapshot may be newer than
// the collection itself.
type SnapshotCollection struct {
	ID        string         `json:"id"`
	MessageID string         `json:"messageId"`
	CreatedAt time.Time      `json:"createdAt"`
	Snapshots []FileSnapshot `json:"snapshots"`
}

// Envelope is the versioned wrapper written to disk for every entity.
// It is the only unit ever read from or written to a storage file.
type Envelope struct {
	SchemaVersion int               `json:"schemaVersion"`
	Data          json.RawMessage   `json:"data"`
	SerializedAt  int64             `json:"serializedAt"` // epoch milliseconds
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// StoreMetadata is the top-level metadata file for a store root.
type StoreMetadata struct {
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	SchemaVersion  int       `json:"schemaVersion"`
}
