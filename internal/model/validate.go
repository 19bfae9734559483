package model

import (
	"strings"

	"chronicle/internal/validate"
)

// ValidateConversation checks required fields, enum membership and nested
// structure. It is pure: no side effects, no I/O.
func ValidateConversation(c *Conversation) validate.Result {
	var errs []validate.FieldError
	if c == nil {
		return validate.ResultOf([]validate.FieldError{{Path: "", Message: "conversation is nil"}})
	}
	if c.ID == "" {
		errs = append(errs, validate.FieldError{Path: "id", Message: "missing id"})
	}
	if c.Title == "" {
		errs = append(errs, validate.FieldError{Path: "title", Message: "missing title"})
	}
	if c.CreatedAt.IsZero() {
		errs = append(errs, validate.FieldError{Path: "createdAt", Message: "missing creation timestamp"})
	}
	switch c.Status {
	case StatusActive, StatusArchived:
	default:
		errs = append(errs, validate.FieldError{Path: "status", Message: "invalid status", Value: string(c.Status)})
	}
	if c.Metadata.MessageCount < 0 {
		errs = append(errs, validate.FieldError{Path: "metadata.messageCount", Message: "negative message count", Value: c.Metadata.MessageCount})
	}
	for i, id := range c.MessageIDs {
		if id == "" {
			errs = append(errs, validate.Indexed("messageIds", i, []validate.FieldError{{Path: "", Message: "empty message id"}})...)
		}
	}
	return validate.ResultOf(errs)
}

// ValidateMessage checks a message and every embedded code change and file
// snapshot, tagging nested errors with indexed paths.
func ValidateMessage(m *Message) validate.Result {
	var errs []validate.FieldError
	if m == nil {
		return validate.ResultOf([]validate.FieldError{{Path: "", Message: "message is nil"}})
	}
	if m.ID == "" {
		errs = append(errs, validate.FieldError{Path: "id", Message: "missing id"})
	}
	if m.ConversationID == "" {
		errs = append(errs, validate.FieldError{Path: "conversationId", Message: "missing owning conversation id"})
	}
	switch m.Sender {
	case SenderUser, SenderAssistant:
	default:
		errs = append(errs, validate.FieldError{Path: "sender", Message: "invalid sender", Value: string(m.Sender)})
	}
	if m.CreatedAt.IsZero() {
		errs = append(errs, validate.FieldError{Path: "createdAt", Message: "missing creation timestamp"})
	}
	if m.Metadata != nil {
		if m.Metadata.TokenEstimate < 0 {
			errs = append(errs, validate.FieldError{Path: "metadata.tokenEstimate", Message: "negative token estimate", Value: m.Metadata.TokenEstimate})
		}
		if m.Metadata.ProcessingMillis < 0 {
			errs = append(errs, validate.FieldError{Path: "metadata.processingMillis", Message: "negative processing time", Value: m.Metadata.ProcessingMillis})
		}
	}
	for i := range m.CodeChanges {
		errs = append(errs, validate.Indexed("codeChanges", i, ValidateCodeChange(&m.CodeChanges[i]))...)
	}
	for i := range m.Snapshots {
		errs = append(errs, validate.Indexed("snapshots", i, ValidateSnapshot(&m.Snapshots[i]))...)
	}
	return validate.ResultOf(errs)
}

// ValidateCodeChange checks one code change in isolation.
func ValidateCodeChange(cc *CodeChange) []validate.FieldError {
	var errs []validate.FieldError
	if cc.Path == "" {
		errs = append(errs, validate.FieldError{Path: "path", Message: "missing file path"})
	}
	switch cc.Kind {
	case ChangeCreate:
		if cc.AfterContent == "" {
			errs = append(errs, validate.FieldError{Path: "afterContent", Message: "create requires after-content"})
		}
	case ChangeModify:
		if cc.BeforeContent == "" {
			errs = append(errs, validate.FieldError{Path: "beforeContent", Message: "modify requires before-content"})
		}
		if cc.AfterContent == "" {
			errs = append(errs, validate.FieldError{Path: "afterContent", Message: "modify requires after-content"})
		}
	case ChangeDelete:
		if cc.BeforeContent == "" {
			errs = append(errs, validate.FieldError{Path: "beforeContent", Message: "delete requires before-content"})
		}
	default:
		errs = append(errs, validate.FieldError{Path: "kind", Message: "invalid change kind", Value: string(cc.Kind)})
	}
	if cc.Lines != nil {
		if cc.Lines.Start < 1 || cc.Lines.End < 1 || cc.Lines.Start > cc.Lines.End {
			errs = append(errs, validate.FieldError{Path: "lines", Message: "invalid line range", Value: *cc.Lines})
		}
	}
	if cc.Metadata.Confidence < 0 || cc.Metadata.Confidence > 1 {
		errs = append(errs, validate.FieldError{Path: "metadata.confidence", Message: "confidence outside [0,1]", Value: cc.Metadata.Confidence})
	}
	return errs
}

// ValidateSnapshot checks a file snapshot's structure and checksum. The
// checksum check is vacuously true for zero-length content. A mismatch
// yields exactly one error tagged "checksum".
func ValidateSnapshot(s *FileSnapshot) []validate.FieldError {
	var errs []validate.FieldError
	if s.Path == "" {
		errs = append(errs, validate.FieldError{Path: "path", Message: "missing file path"})
	} else if hasTraversal(s.Path) {
		errs = append(errs, validate.FieldError{Path: "path", Message: "path contains parent-directory traversal", Value: s.Path})
	}
	if s.CapturedAt.IsZero() {
		errs = append(errs, validate.FieldError{Path: "capturedAt", Message: "missing capture timestamp"})
	}
	if s.Metadata.Size < 0 {
		errs = append(errs, validate.FieldError{Path: "metadata.size", Message: "negative size", Value: s.Metadata.Size})
	}
	errs = append(errs, VerifySnapshotIntegrity(s)...)
	return errs
}

// VerifySnapshotIntegrity checks only the content checksum of a snapshot.
func VerifySnapshotIntegrity(s *FileSnapshot) []validate.FieldError {
	if len(s.Content) == 0 {
		return nil
	}
	if want := validate.Checksum([]byte(s.Content)); s.Checksum != want {
		return []validate.FieldError{{Path: "checksum", Message: "checksum does not match content", Value: s.Checksum}}
	}
	return nil
}

// ValidateSnapshotCollection checks a collection and its snapshots,
// including path uniqueness and the snapshot-not-newer-than-collection rule.
func ValidateSnapshotCollection(sc *SnapshotCollection) validate.Result {
	var errs []validate.FieldError
	if sc == nil {
		return validate.ResultOf([]validate.FieldError{{Path: "", Message: "snapshot collection is nil"}})
	}
	if sc.ID == "" {
		errs = append(errs, validate.FieldError{Path: "id", Message: "missing id"})
	}
	if sc.MessageID == "" {
		errs = append(errs, validate.FieldError{Path: "messageId", Message: "missing owning message id"})
	}
	if sc.CreatedAt.IsZero() {
		errs = append(errs, validate.FieldError{Path: "createdAt", Message: "missing creation timestamp"})
	}
	seen := make(map[string]bool, len(sc.Snapshots))
	for i := range sc.Snapshots {
		snap := &sc.Snapshots[i]
		errs = append(errs, validate.Indexed("snapshots", i, ValidateSnapshot(snap))...)
		if snap.Path != "" {
			if seen[snap.Path] {
				errs = append(errs, validate.Indexed("snapshots", i, []validate.FieldError{{Path: "path", Message: "duplicate path in collection", Value: snap.Path}})...)
			}
			seen[snap.Path] = true
		}
		if !sc.CreatedAt.IsZero() && !snap.CapturedAt.IsZero() && snap.CapturedAt.After(sc.CreatedAt) {
			errs = append(errs, validate.Indexed("snapshots", i, []validate.FieldError{{Path: "capturedAt", Message: "snapshot newer than its collection"}})...)
		}
	}
	return validate.ResultOf(errs)
}

func hasTraversal(path string) bool {
	for _, seg := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
		if seg == ".." {
			return true
		}
	}
	return false
}
