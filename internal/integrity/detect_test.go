package integrity

import (
	"testing"
	"time"

	"chronicle/internal/model"
)

var t0 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func cleanConversation() *model.Conversation {
	return &model.Conversation{
		ID:        "conv-1",
		Title:     "t",
		CreatedAt: t0,
		Status:    model.StatusActive,
	}
}

func cleanMessage(id string, createdAt time.Time) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: "conv-1",
		Sender:         model.SenderUser,
		Content:        "hi",
		CreatedAt:      createdAt,
	}
}

func hasField(rep Report, path string) bool {
	for _, f := range rep.CorruptedFields {
		if f == path {
			return true
		}
	}
	return false
}

func TestDetectMessage(t *testing.T) {
	t.Run("clean", func(t *testing.T) {
		rep := DetectMessage(cleanMessage("msg-1", t0))
		if rep.Corrupted {
			t.Errorf("expected clean, got fields %v", rep.CorruptedFields)
		}
		if rep.CanRepair {
			t.Error("clean report must not claim repairability")
		}
		if rep.Severity != SeverityNone {
			t.Errorf("expected none severity, got %s", rep.Severity)
		}
	})

	t.Run("checksum mismatch is low and repairable", func(t *testing.T) {
		m := cleanMessage("msg-1", t0)
		s := model.NewFileSnapshot("a.go", "content", t0, true)
		s.Checksum = "deadbeef"
		m.Snapshots = []model.FileSnapshot{s}

		rep := DetectMessage(m)
		if !rep.Corrupted || !rep.CanRepair {
			t.Fatalf("expected repairable corruption, got %+v", rep)
		}
		if rep.Severity != SeverityLow {
			t.Errorf("expected low severity, got %s", rep.Severity)
		}
		if !hasField(rep, "snapshots[0].checksum") {
			t.Errorf("expected snapshots[0].checksum, got %v", rep.CorruptedFields)
		}
	})

	t.Run("missing id is high and unrepairable", func(t *testing.T) {
		m := cleanMessage("", t0)
		rep := DetectMessage(m)
		if rep.Severity != SeverityHigh {
			t.Errorf("expected high severity, got %s", rep.Severity)
		}
		if rep.CanRepair {
			t.Error("identity corruption must not be repairable")
		}
	})

	t.Run("snapshot before message is low", func(t *testing.T) {
		m := cleanMessage("msg-1", t0)
		m.Snapshots = []model.FileSnapshot{model.NewFileSnapshot("a.go", "x", t0.Add(-time.Minute), true)}
		rep := DetectMessage(m)
		if rep.Severity != SeverityLow {
			t.Errorf("expected low severity, got %s", rep.Severity)
		}
		if !hasField(rep, "snapshots[0].capturedAt") {
			t.Errorf("expected snapshots[0].capturedAt, got %v", rep.CorruptedFields)
		}
	})

	t.Run("duplicate snapshot paths are medium", func(t *testing.T) {
		m := cleanMessage("msg-1", t0)
		m.Snapshots = []model.FileSnapshot{
			model.NewFileSnapshot("a.go", "one", t0, true),
			model.NewFileSnapshot("a.go", "two", t0, true),
		}
		rep := DetectMessage(m)
		if rep.Severity != SeverityMedium {
			t.Errorf("expected medium severity, got %s", rep.Severity)
		}
		if !hasField(rep, "snapshots[1].path") {
			t.Errorf("expected snapshots[1].path, got %v", rep.CorruptedFields)
		}
	})
}

func TestDetectConversation(t *testing.T) {
	t.Run("clean with ordered messages", func(t *testing.T) {
		c := cleanConversation()
		msgs := []*model.Message{cleanMessage("m1", t0), cleanMessage("m2", t0.Add(time.Minute))}
		if rep := DetectConversation(c, msgs); rep.Corrupted {
			t.Errorf("expected clean, got %v", rep.CorruptedFields)
		}
	})

	t.Run("wrong owner reference", func(t *testing.T) {
		c := cleanConversation()
		m := cleanMessage("m1", t0)
		m.ConversationID = "other"
		rep := DetectConversation(c, []*model.Message{m})
		if !hasField(rep, "messages[0].conversationId") {
			t.Errorf("expected messages[0].conversationId, got %v", rep.CorruptedFields)
		}
		if rep.Severity != SeverityMedium || !rep.CanRepair {
			t.Errorf("expected medium repairable, got %+v", rep)
		}
	})

	t.Run("duplicate message ids", func(t *testing.T) {
		c := cleanConversation()
		msgs := []*model.Message{cleanMessage("m1", t0), cleanMessage("m1", t0.Add(time.Minute))}
		rep := DetectConversation(c, msgs)
		if !hasField(rep, "messages[1].id") {
			t.Errorf("expected messages[1].id, got %v", rep.CorruptedFields)
		}
	})

	t.Run("out of order messages", func(t *testing.T) {
		c := cleanConversation()
		msgs := []*model.Message{cleanMessage("m1", t0.Add(time.Hour)), cleanMessage("m2", t0.Add(time.Minute))}
		rep := DetectConversation(c, msgs)
		if !hasField(rep, "messages[1].createdAt") {
			t.Errorf("expected messages[1].createdAt, got %v", rep.CorruptedFields)
		}
	})

	t.Run("conversation newer than first message", func(t *testing.T) {
		c := cleanConversation()
		c.CreatedAt = t0.Add(time.Hour)
		msgs := []*model.Message{cleanMessage("m1", t0)}
		rep := DetectConversation(c, msgs)
		if !hasField(rep, "createdAt") {
			t.Errorf("expected createdAt, got %v", rep.CorruptedFields)
		}
	})

	t.Run("highest severity wins", func(t *testing.T) {
		c := cleanConversation()
		c.Title = ""
		m := cleanMessage("", t0)
		rep := DetectConversation(c, []*model.Message{m})
		if rep.Severity != SeverityHigh {
			t.Errorf("expected high severity, got %s", rep.Severity)
		}
		if rep.CanRepair {
			t.Error("report with an unrepairable issue must not claim repairability")
		}
	})
}

func TestDetectSnapshotCollection(t *testing.T) {
	t.Run("checksum mismatch", func(t *testing.T) {
		s := model.NewFileSnapshot("a.go", "x", t0, true)
		s.Checksum = "bad"
		sc := &model.SnapshotCollection{ID: "sc-1", MessageID: "m1", CreatedAt: t0, Snapshots: []model.FileSnapshot{s}}
		rep := DetectSnapshotCollection(sc)
		if rep.Severity != SeverityLow || !rep.CanRepair {
			t.Errorf("expected low repairable, got %+v", rep)
		}
	})

	t.Run("missing owner is unrepairable", func(t *testing.T) {
		sc := &model.SnapshotCollection{ID: "sc-1", CreatedAt: t0}
		rep := DetectSnapshotCollection(sc)
		if rep.CanRepair {
			t.Error("missing messageId must not be repairable")
		}
		if rep.Severity != SeverityHigh {
			t.Errorf("expected high severity, got %s", rep.Severity)
		}
	})
}

func TestSeverity(t *testing.T) {
	if !SeverityLow.AtMost(SeverityMedium) || SeverityHigh.AtMost(SeverityMedium) {
		t.Error("AtMost ordering wrong")
	}
	if SeverityMedium.String() != "medium" {
		t.Errorf("unexpected label %s", SeverityMedium.String())
	}
}
