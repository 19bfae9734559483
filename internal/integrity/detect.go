package integrity

import (
	"fmt"
	"strings"

	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// Report is the outcome of corruption detection on a single entity.
type Report struct {
	Corrupted       bool
	CorruptedFields []string
	CanRepair       bool
	Severity        Severity
	Errors          []validate.FieldError
}

// issue is one classified defect.
type issue struct {
	err        validate.FieldError
	severity   Severity
	repairable bool
}

func buildReport(issues []issue) Report {
	r := Report{CanRepair: true, Severity: SeverityNone}
	for _, is := range issues {
		r.Corrupted = true
		r.CorruptedFields = append(r.CorruptedFields, is.err.Path)
		r.Errors = append(r.Errors, is.err)
		if is.severity > r.Severity {
			r.Severity = is.severity
		}
		if !is.repairable {
			r.CanRepair = false
		}
	}
	if !r.Corrupted {
		r.CanRepair = false
	}
	return r
}

// classifyStructural assigns a severity to a structural validation error.
// Identity fields cannot be safely invented without risking duplicate or
// orphaned records, so they are high severity and unrepairable.
func classifyStructural(fe validate.FieldError) issue {
	if isIdentityPath(fe.Path) {
		return issue{err: fe, severity: SeverityHigh, repairable: false}
	}
	if strings.HasSuffix(fe.Path, "checksum") {
		return issue{err: fe, severity: SeverityLow, repairable: true}
	}
	return issue{err: fe, severity: SeverityMedium, repairable: true}
}

// isIdentityPath reports whether a field path names an entity id or an
// owning-entity id, at any nesting depth.
func isIdentityPath(path string) bool {
	last := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		last = path[i+1:]
	}
	switch last {
	case "id", "conversationId", "messageId":
		return true
	}
	return false
}

// DetectMessage runs structural validation (which includes embedded code
// changes and snapshot checksums) plus duplicate-path and temporal checks
// on a single message.
func DetectMessage(m *model.Message) Report {
	var issues []issue
	for _, fe := range model.ValidateMessage(m).Errors {
		issues = append(issues, classifyStructural(fe))
	}
	if m == nil {
		return buildReport(issues)
	}
	issues = append(issues, messageSnapshotIssues(m, "")...)
	return buildReport(issues)
}

// messageSnapshotIssues checks duplicate snapshot paths within the message
// and the rule that a snapshot is never older than its owning message.
func messageSnapshotIssues(m *model.Message, prefix string) []issue {
	var issues []issue
	seen := make(map[string]bool, len(m.Snapshots))
	for i := range m.Snapshots {
		snap := &m.Snapshots[i]
		path := fmt.Sprintf("%ssnapshots[%d]", prefix, i)
		if snap.Path != "" {
			if seen[snap.Path] {
				issues = append(issues, issue{
					err:        validate.FieldError{Path: path + ".path", Message: "duplicate snapshot path in message", Value: snap.Path},
					severity:   SeverityMedium,
					repairable: true,
				})
			}
			seen[snap.Path] = true
		}
		if !snap.CapturedAt.IsZero() && !m.CreatedAt.IsZero() && snap.CapturedAt.Before(m.CreatedAt) {
			issues = append(issues, issue{
				err:        validate.FieldError{Path: path + ".capturedAt", Message: "snapshot captured before its message"},
				severity:   SeverityLow,
				repairable: true,
			})
		}
	}
	return issues
}

// DetectConversation inspects a conversation together with its loaded
// messages: structural validation of every entity, checksum validation of
// embedded snapshots, referential validation (owning ids, duplicate ids and
// paths) and temporal validation (non-decreasing message timestamps, the
// conversation no newer than its first message).
func DetectConversation(c *model.Conversation, msgs []*model.Message) Report {
	var issues []issue
	for _, fe := range model.ValidateConversation(c).Errors {
		issues = append(issues, classifyStructural(fe))
	}
	if c == nil {
		return buildReport(issues)
	}

	seenIDs := make(map[string]bool, len(msgs))
	for i, m := range msgs {
		prefix := fmt.Sprintf("messages[%d]", i)
		for _, fe := range model.ValidateMessage(m).Errors {
			issues = append(issues, classifyStructural(validate.Prefixed(prefix, []validate.FieldError{fe})[0]))
		}
		if m == nil {
			continue
		}

		// Referential: every message must point back at this conversation.
		if m.ConversationID != "" && c.ID != "" && m.ConversationID != c.ID {
			issues = append(issues, issue{
				err:        validate.FieldError{Path: prefix + ".conversationId", Message: "message owned by a different conversation", Value: m.ConversationID},
				severity:   SeverityMedium,
				repairable: true,
			})
		}
		if m.ID != "" {
			if seenIDs[m.ID] {
				issues = append(issues, issue{
					err:        validate.FieldError{Path: prefix + ".id", Message: "duplicate message id", Value: m.ID},
					severity:   SeverityMedium,
					repairable: true,
				})
			}
			seenIDs[m.ID] = true
		}

		issues = append(issues, messageSnapshotIssues(m, prefix+".")...)

		// Temporal: timestamps never decrease along the message sequence,
		// and the conversation is never newer than its first message.
		if i > 0 && msgs[i-1] != nil && !m.CreatedAt.IsZero() && !msgs[i-1].CreatedAt.IsZero() &&
			m.CreatedAt.Before(msgs[i-1].CreatedAt) {
			issues = append(issues, issue{
				err:        validate.FieldError{Path: prefix + ".createdAt", Message: "message older than its predecessor"},
				severity:   SeverityMedium,
				repairable: true,
			})
		}
		if i == 0 && !m.CreatedAt.IsZero() && !c.CreatedAt.IsZero() && c.CreatedAt.After(m.CreatedAt) {
			issues = append(issues, issue{
				err:        validate.FieldError{Path: "createdAt", Message: "conversation newer than its first message"},
				severity:   SeverityMedium,
				repairable: true,
			})
		}
	}
	return buildReport(issues)
}

// DetectSnapshotCollection runs structural and checksum validation over a
// collection; duplicate paths and ordering violations come back from the
// model validator and are classified here.
func DetectSnapshotCollection(sc *model.SnapshotCollection) Report {
	var issues []issue
	for _, fe := range model.ValidateSnapshotCollection(sc).Errors {
		issues = append(issues, classifyStructural(fe))
	}
	return buildReport(issues)
}
