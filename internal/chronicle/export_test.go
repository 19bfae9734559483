package chronicle_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"chronicle/internal/chronicle"
	"chronicle/internal/encryption"
	"chronicle/internal/testutil"
)

func TestExportImportRoundTrip(t *testing.T) {
	src := newStore(t, chronicle.Options{})
	src.seed(t)

	var buf bytes.Buffer
	if err := src.eng.Export(&buf, nil, nil); err != nil {
		t.Fatalf("export: %v", err)
	}

	dst := newStore(t, chronicle.Options{})
	n, err := dst.eng.Import(&buf, nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 imported entities, got %d", n)
	}
	if c, _ := dst.eng.GetConversation("c1"); c == nil {
		t.Error("conversation not imported")
	}
	if m, _ := dst.eng.GetMessage("m1"); m == nil {
		t.Error("message not imported")
	}
	if sc, _ := dst.eng.GetSnapshotCollection("sc1"); sc == nil {
		t.Error("collection not imported")
	}

	t.Run("imported entities are indexed", func(t *testing.T) {
		results, err := dst.eng.Search("message", chronicle.SearchOptions{})
		if err != nil || len(results) == 0 {
			t.Errorf("imported message not searchable: %v, %v", results, err)
		}
	})
}

func TestExportSubset(t *testing.T) {
	s := newStore(t, chronicle.Options{})
	s.seed(t)
	if err := s.eng.SaveConversation(testutil.ValidConversation("c2", s.clock.Now())); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := s.eng.Export(&buf, []string{"c1"}, nil); err != nil {
		t.Fatalf("export: %v", err)
	}
	var doc chronicle.ExportDocument
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Conversations) != 1 || doc.Conversations[0].ID != "c1" {
		t.Errorf("unexpected conversations: %v", doc.Conversations)
	}

	t.Run("unknown id is an error", func(t *testing.T) {
		if err := s.eng.Export(&bytes.Buffer{}, []string{"ghost"}, nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestEncryptedExportImport(t *testing.T) {
	src := newStore(t, chronicle.Options{})
	src.seed(t)
	enc := encryption.NewTestEncryptor()

	var buf bytes.Buffer
	if err := src.eng.Export(&buf, nil, enc); err != nil {
		t.Fatalf("export: %v", err)
	}
	// The test encryptor only prepends a header; confirm it actually did.
	if !strings.HasPrefix(buf.String(), "CHRENC") {
		t.Error("encrypted stream has no header")
	}

	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	dst := newStore(t, chronicle.Options{})
	n, err := dst.eng.Import(bytes.NewReader(buf.Bytes()), dec)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 imported entities, got %d", n)
	}

	t.Run("plaintext import of encrypted stream fails", func(t *testing.T) {
		other := newStore(t, chronicle.Options{})
		if _, err := other.eng.Import(bytes.NewReader(buf.Bytes()), nil); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestImportContinuesPastFailures(t *testing.T) {
	s := newStore(t, chronicle.Options{})
	now := s.clock.Now()

	good := testutil.ValidConversation("good", now)
	bad := testutil.ValidConversation("bad", now)
	bad.Title = "" // rejected by the save pipeline

	raw, err := json.Marshal(map[string]any{
		"exportedAt":    now,
		"schemaVersion": 1,
		"conversations": []any{bad, good},
		"messages":      map[string]any{},
		"snapshots":     map[string]any{},
	})
	if err != nil {
		t.Fatal(err)
	}

	n, err := s.eng.Import(bytes.NewReader(raw), nil)
	if err == nil {
		t.Error("expected joined error for the rejected conversation")
	}
	if n != 1 {
		t.Errorf("expected 1 imported entity, got %d", n)
	}
	if c, _ := s.eng.GetConversation("good"); c == nil {
		t.Error("valid conversation not imported")
	}
	if c, _ := s.eng.GetConversation("bad"); c != nil {
		t.Error("invalid conversation was committed")
	}
}

func TestImportRejectsNewerVersion(t *testing.T) {
	s := newStore(t, chronicle.Options{})
	raw := []byte(`{"exportedAt":"2025-03-10T09:00:00Z","schemaVersion":99,"conversations":[],"messages":{},"snapshots":{}}`)
	if _, err := s.eng.Import(bytes.NewReader(raw), nil); err == nil {
		t.Error("expected version error")
	}
}
