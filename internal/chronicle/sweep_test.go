package chronicle_test

import (
	"encoding/json"
	"testing"
	"time"

	"chronicle/internal/chronicle"
	"chronicle/internal/codec"
	"chronicle/internal/integrity"
	"chronicle/internal/model"
	"chronicle/internal/testutil"
)

// writeRaw commits bytes directly, bypassing the engine's save pipeline.
func (s *testStore) writeRaw(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := s.fs.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// serializeCorrupt wraps an entity in a current-version envelope without any
// validation, the way a buggy writer or manual edit would.
func serializeCorrupt(t *testing.T, kind model.Kind, entity any, now time.Time) []byte {
	t.Helper()
	data, err := codec.Serialize(kind, entity, now)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return data
}

func TestVerifyDataIntegrity(t *testing.T) {
	t.Run("clean store", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		s.seed(t)
		report, err := s.eng.VerifyDataIntegrity()
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if report.ItemsChecked != 3 {
			t.Errorf("expected 3 items checked, got %d", report.ItemsChecked)
		}
		if len(report.CorruptedItems) != 0 {
			t.Errorf("clean store reported corruption: %+v", report.CorruptedItems)
		}
	})

	t.Run("reports corruption without repairing", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		s.seed(t)
		now := s.clock.Now()

		snap := model.NewFileSnapshot("b.go", "content", now, true)
		snap.Checksum = "tampered"
		sc := testutil.ValidCollection("sc-bad", "m1", now, snap)
		s.writeRaw(t, "/store/snapshots/sc-bad.json", serializeCorrupt(t, model.KindSnapshotCollection, sc, now))

		report, err := s.eng.VerifyDataIntegrity()
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if len(report.CorruptedItems) != 1 {
			t.Fatalf("expected 1 corrupted item, got %+v", report.CorruptedItems)
		}
		item := report.CorruptedItems[0]
		if item.ID != "sc-bad" || item.Severity != integrity.SeverityLow {
			t.Errorf("unexpected item: %+v", item)
		}
		if len(report.RepairedItems) != 0 {
			t.Error("repair ran without AutoRepair")
		}
	})

	t.Run("auto-repair fixes what it may", func(t *testing.T) {
		s := newStore(t, repairOpts())
		s.seed(t)
		now := s.clock.Now()

		snap := model.NewFileSnapshot("b.go", "content", now, true)
		snap.Checksum = "tampered"
		sc := testutil.ValidCollection("sc-bad", "m1", now, snap)
		s.writeRaw(t, "/store/snapshots/sc-bad.json", serializeCorrupt(t, model.KindSnapshotCollection, sc, now))

		report, err := s.eng.VerifyDataIntegrity()
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if len(report.RepairedItems) != 1 || report.RepairedItems[0] != "snapshot_collection/sc-bad" {
			t.Errorf("unexpected repairs: %v", report.RepairedItems)
		}
		fixed, _ := s.eng.GetSnapshotCollection("sc-bad")
		if fixed == nil || fixed.Snapshots[0].Checksum != testutil.SHA256Hex([]byte("content")) {
			t.Error("repaired collection not committed")
		}
	})

	t.Run("unreadable envelope is reported as high severity", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		s.seed(t)
		s.writeRaw(t, "/store/messages/shredded.json", []byte("not json"))

		report, err := s.eng.VerifyDataIntegrity()
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		found := false
		for _, item := range report.CorruptedItems {
			if item.ID == "shredded" && item.Severity == integrity.SeverityHigh {
				found = true
			}
		}
		if !found {
			t.Errorf("shredded envelope not reported: %+v", report.CorruptedItems)
		}
	})
}

// v0Conversation is a hand-written envelope in the oldest historical shape.
func v0Conversation(t *testing.T, id string, createdAt time.Time) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":        id,
		"title":     "old conversation",
		"createdAt": createdAt,
		"messages":  []string{},
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(&model.Envelope{SchemaVersion: 0, Data: payload, SerializedAt: createdAt.UnixMilli()})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestMigrateStore(t *testing.T) {
	t.Run("rewrites old envelopes at the current version", func(t *testing.T) {
		s := newStore(t, chronicle.Options{MigrateOnRead: true})
		s.seed(t)
		now := s.clock.Now()
		s.writeRaw(t, "/store/conversations/old.json", v0Conversation(t, "old", now))

		report, err := s.eng.MigrateStore(chronicle.MigrateOptions{})
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if report.Scanned != 4 || report.Migrated != 1 || report.Failed != 0 {
			t.Errorf("unexpected report: %+v", report)
		}

		raw, err := s.fs.ReadFile("/store/conversations/old.json")
		if err != nil {
			t.Fatal(err)
		}
		env, err := codec.ParseEnvelope(raw)
		if err != nil {
			t.Fatal(err)
		}
		if env.SchemaVersion != codec.CurrentSchemaVersion {
			t.Errorf("file still at version %d", env.SchemaVersion)
		}

		// After the rewrite the file reads fine even with migration off.
		fresh := newStoreOverFS(t, s)
		c, err := fresh.eng.GetConversation("old")
		if err != nil || c == nil {
			t.Errorf("migrated file unreadable without MigrateOnRead: %v, %v", c, err)
		}
		if c != nil && c.Status != model.StatusActive {
			t.Errorf("migration defaults missing: %+v", c)
		}
	})

	t.Run("version-ahead file is reported", func(t *testing.T) {
		s := newStore(t, chronicle.Options{MigrateOnRead: true})
		s.writeRaw(t, "/store/conversations/future.json", []byte(`{"schemaVersion":99,"data":{},"serializedAt":1}`))

		report, err := s.eng.MigrateStore(chronicle.MigrateOptions{})
		if err != nil {
			t.Fatalf("migrate: %v", err)
		}
		if report.Failed != 1 || len(report.Errors) != 1 {
			t.Errorf("unexpected report: %+v", report)
		}
	})

	t.Run("stop on error aborts the sweep", func(t *testing.T) {
		s := newStore(t, chronicle.Options{MigrateOnRead: true})
		s.writeRaw(t, "/store/conversations/future.json", []byte(`{"schemaVersion":99,"data":{},"serializedAt":1}`))

		if _, err := s.eng.MigrateStore(chronicle.MigrateOptions{StopOnError: true}); err == nil {
			t.Error("expected the sweep to abort")
		}
	})

	t.Run("backup first creates a bundle", func(t *testing.T) {
		s := newStore(t, chronicle.Options{MigrateOnRead: true})
		s.seed(t)
		if _, err := s.eng.MigrateStore(chronicle.MigrateOptions{BackupFirst: true}); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		infos, err := s.eng.ListBackups()
		if err != nil || len(infos) != 1 {
			t.Errorf("expected one backup bundle, got %v, %v", infos, err)
		}
	})
}

// newStoreOverFS opens a second engine over an existing store's filesystem,
// with default options and no index or vault.
func newStoreOverFS(t *testing.T, s *testStore) *testStore {
	t.Helper()
	eng, err := chronicle.NewEngine(s.fs, chronicle.NewLayout("/store"), chronicle.NewNopLogger(),
		s.clock, testutil.NewStubIDGenerator(), nil, nil, chronicle.Options{})
	if err != nil {
		t.Fatalf("reopening engine: %v", err)
	}
	return &testStore{fs: s.fs, clock: s.clock, eng: eng}
}
