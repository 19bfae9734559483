package integrity

import (
	"fmt"
	"sort"
	"time"

	"chronicle/internal/model"
	"chronicle/internal/validate"
)

// Policy controls which classes of repair are permitted.
type Policy struct {
	// SetDefaults fills missing title/timestamp/status with sane defaults.
	SetDefaults bool
	// RecalculateChecksums overwrites snapshot checksums that do not match
	// their content.
	RecalculateChecksums bool
	// FixReferences rewrites wrong owning ids and drops duplicate ids and
	// duplicate snapshot paths.
	FixReferences bool
	// RemoveCorruptedItems drops array elements that cannot be repaired
	// instead of failing the whole entity.
	RemoveCorruptedItems bool
}

// DefaultPolicy permits every lossless repair but keeps corrupted elements
// in place so nothing is silently discarded.
var DefaultPolicy = Policy{
	SetDefaults:          true,
	RecalculateChecksums: true,
	FixReferences:        true,
}

// Outcome reports what a repair did.
type Outcome struct {
	Success        bool
	RepairedFields []string
	RemovedItems   []string
	Errors         []validate.FieldError
}

func (o *Outcome) repaired(path string) {
	o.RepairedFields = append(o.RepairedFields, path)
}

func (o *Outcome) removed(path string) {
	o.RemovedItems = append(o.RemovedItems, path)
}

func (o *Outcome) failed(path, msg string) {
	o.Errors = append(o.Errors, validate.FieldError{Path: path, Message: msg})
}

// RepairConversation produces a corrected copy of the conversation and its
// messages. Temporal fixes (reordering, timestamp clamping) are lossless and
// always applied; everything else is gated by the policy. The inputs are
// never mutated. Repair never invents an id for a top-level entity.
func RepairConversation(c *model.Conversation, msgs []*model.Message, p Policy, now time.Time) (*model.Conversation, []*model.Message, Outcome) {
	var out Outcome
	if c == nil || c.ID == "" {
		out.failed("id", "cannot repair a conversation without an id")
		return nil, nil, out
	}

	rc := c.Clone()
	rms := make([]*model.Message, 0, len(msgs))
	for _, m := range msgs {
		rms = append(rms, m.Clone())
	}

	if p.SetDefaults {
		if rc.Title == "" {
			rc.Title = fmt.Sprintf("Conversation %s", shortID(rc.ID))
			out.repaired("title")
		}
		if rc.CreatedAt.IsZero() {
			rc.CreatedAt = now
			out.repaired("createdAt")
		}
		switch rc.Status {
		case model.StatusActive, model.StatusArchived:
		default:
			rc.Status = model.StatusActive
			out.repaired("status")
		}
	}

	// Per-message repairs, then element removal for what remains broken.
	kept := rms[:0]
	for i, m := range rms {
		prefix := fmt.Sprintf("messages[%d]", i)
		if m == nil {
			if p.RemoveCorruptedItems {
				out.removed(prefix)
			} else {
				out.failed(prefix, "missing message cannot be repaired")
			}
			continue
		}
		if p.FixReferences && m.ID != "" && m.ConversationID != rc.ID {
			m.ConversationID = rc.ID
			out.repaired(prefix + ".conversationId")
		}
		repairMessageInPlace(m, p, now, prefix, &out)

		if rep := DetectMessage(m); rep.Corrupted {
			if p.RemoveCorruptedItems {
				out.removed(prefix)
				continue
			}
			out.Errors = append(out.Errors, rep.Errors...)
		}
		kept = append(kept, m)
	}
	rms = kept

	// Duplicate message ids: keep the first occurrence.
	if p.FixReferences {
		seen := make(map[string]bool, len(rms))
		dedup := rms[:0]
		for i, m := range rms {
			if m.ID != "" && seen[m.ID] {
				out.removed(fmt.Sprintf("messages[%d]", i))
				continue
			}
			seen[m.ID] = true
			dedup = append(dedup, m)
		}
		rms = dedup
	}

	// Temporal: a stable sort restores non-decreasing timestamps without
	// losing the relative order of equal-time messages.
	if !sort.SliceIsSorted(rms, func(i, j int) bool {
		return rms[i].CreatedAt.Before(rms[j].CreatedAt)
	}) {
		sort.SliceStable(rms, func(i, j int) bool {
			return rms[i].CreatedAt.Before(rms[j].CreatedAt)
		})
		out.repaired("messageIds")
	}
	if len(rms) > 0 && rc.CreatedAt.After(rms[0].CreatedAt) {
		rc.CreatedAt = rms[0].CreatedAt
		out.repaired("createdAt")
	}

	// The id list and derived metadata follow from the repaired messages.
	ids := make([]string, len(rms))
	for i, m := range rms {
		ids[i] = m.ID
	}
	rc.MessageIDs = ids
	rc.Metadata.MessageCount = len(rms)
	if len(rms) > 0 {
		last := rms[len(rms)-1].CreatedAt
		if last.After(rc.Metadata.LastActivityAt) {
			rc.Metadata.LastActivityAt = last
		}
	}

	out.Success = len(out.Errors) == 0 && !DetectConversation(rc, rms).Corrupted
	return rc, rms, out
}

// RepairMessage produces a corrected copy of a single message.
func RepairMessage(m *model.Message, p Policy, now time.Time) (*model.Message, Outcome) {
	var out Outcome
	if m == nil || m.ID == "" {
		out.failed("id", "cannot repair a message without an id")
		return nil, out
	}
	if m.ConversationID == "" {
		// The owning id cannot be invented here; only the conversation-level
		// repair knows the correct owner.
		out.failed("conversationId", "cannot repair a message without its owning conversation id")
		return nil, out
	}
	rm := m.Clone()
	repairMessageInPlace(rm, p, now, "", &out)
	out.Success = len(out.Errors) == 0 && !DetectMessage(rm).Corrupted
	return rm, out
}

// repairMessageInPlace applies field defaults, checksum recomputation,
// duplicate-path removal and element removal to an already-cloned message.
func repairMessageInPlace(m *model.Message, p Policy, now time.Time, prefix string, out *Outcome) {
	if prefix != "" {
		prefix += "."
	}
	if p.SetDefaults && m.CreatedAt.IsZero() {
		m.CreatedAt = now
		out.repaired(prefix + "createdAt")
	}

	if p.RecalculateChecksums {
		for i := range m.Snapshots {
			recalcChecksum(&m.Snapshots[i], fmt.Sprintf("%ssnapshots[%d]", prefix, i), out)
		}
	}

	// Snapshots captured "before" the message are clock skew, not data loss:
	// clamp them to the message timestamp.
	for i := range m.Snapshots {
		if !m.CreatedAt.IsZero() && !m.Snapshots[i].CapturedAt.IsZero() && m.Snapshots[i].CapturedAt.Before(m.CreatedAt) {
			m.Snapshots[i].CapturedAt = m.CreatedAt
			out.repaired(fmt.Sprintf("%ssnapshots[%d].capturedAt", prefix, i))
		}
	}

	if p.FixReferences {
		m.Snapshots = dedupSnapshots(m.Snapshots, prefix+"snapshots", out)
	}

	if p.RemoveCorruptedItems {
		kept := m.CodeChanges[:0]
		for i := range m.CodeChanges {
			if len(model.ValidateCodeChange(&m.CodeChanges[i])) > 0 {
				out.removed(fmt.Sprintf("%scodeChanges[%d]", prefix, i))
				continue
			}
			kept = append(kept, m.CodeChanges[i])
		}
		m.CodeChanges = kept

		keptSnaps := m.Snapshots[:0]
		for i := range m.Snapshots {
			if len(model.ValidateSnapshot(&m.Snapshots[i])) > 0 {
				out.removed(fmt.Sprintf("%ssnapshots[%d]", prefix, i))
				continue
			}
			keptSnaps = append(keptSnaps, m.Snapshots[i])
		}
		m.Snapshots = keptSnaps
	}
}

// RepairSnapshotCollection produces a corrected copy of a collection.
func RepairSnapshotCollection(sc *model.SnapshotCollection, p Policy, now time.Time) (*model.SnapshotCollection, Outcome) {
	var out Outcome
	if sc == nil || sc.ID == "" {
		out.failed("id", "cannot repair a snapshot collection without an id")
		return nil, out
	}
	if sc.MessageID == "" {
		out.failed("messageId", "cannot repair a snapshot collection without its owning message id")
		return nil, out
	}
	rsc := sc.Clone()

	if p.SetDefaults && rsc.CreatedAt.IsZero() {
		rsc.CreatedAt = now
		out.repaired("createdAt")
	}
	if p.RecalculateChecksums {
		for i := range rsc.Snapshots {
			recalcChecksum(&rsc.Snapshots[i], fmt.Sprintf("snapshots[%d]", i), &out)
		}
	}

	// A snapshot newer than its collection is clamped down; the capture
	// cannot have happened after the collection was assembled.
	for i := range rsc.Snapshots {
		if !rsc.CreatedAt.IsZero() && rsc.Snapshots[i].CapturedAt.After(rsc.CreatedAt) {
			rsc.Snapshots[i].CapturedAt = rsc.CreatedAt
			out.repaired(fmt.Sprintf("snapshots[%d].capturedAt", i))
		}
	}

	if p.FixReferences {
		rsc.Snapshots = dedupSnapshots(rsc.Snapshots, "snapshots", &out)
	}
	if p.RemoveCorruptedItems {
		kept := rsc.Snapshots[:0]
		for i := range rsc.Snapshots {
			if len(model.ValidateSnapshot(&rsc.Snapshots[i])) > 0 {
				out.removed(fmt.Sprintf("snapshots[%d]", i))
				continue
			}
			kept = append(kept, rsc.Snapshots[i])
		}
		rsc.Snapshots = kept
	}

	out.Success = len(out.Errors) == 0 && !DetectSnapshotCollection(rsc).Corrupted
	return rsc, out
}

// recalcChecksum overwrites a snapshot checksum that does not match its
// content. Empty content carries no checksum.
func recalcChecksum(s *model.FileSnapshot, path string, out *Outcome) {
	if len(s.Content) == 0 {
		if s.Checksum != "" {
			s.Checksum = ""
			out.repaired(path + ".checksum")
		}
		return
	}
	if want := validate.Checksum([]byte(s.Content)); s.Checksum != want {
		s.Checksum = want
		out.repaired(path + ".checksum")
	}
}

// dedupSnapshots keeps the first snapshot for each path.
func dedupSnapshots(snaps []model.FileSnapshot, path string, out *Outcome) []model.FileSnapshot {
	seen := make(map[string]bool, len(snaps))
	kept := snaps[:0]
	for i := range snaps {
		p := snaps[i].Path
		if p != "" && seen[p] {
			out.removed(fmt.Sprintf("%s[%d]", path, i))
			continue
		}
		seen[p] = true
		kept = append(kept, snaps[i])
	}
	return kept
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
