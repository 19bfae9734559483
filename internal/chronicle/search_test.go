package chronicle_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"chronicle/internal/chronicle"
	"chronicle/internal/model"
	"chronicle/internal/search"
	"chronicle/internal/testutil"
)

// newStoreOverFSIndexed opens an indexed engine over an existing store's
// filesystem. The fresh index starts empty.
func newStoreOverFSIndexed(t *testing.T, s *testStore) *testStore {
	t.Helper()
	idx := search.NewMemoryIndex()
	eng, err := chronicle.NewEngine(s.fs, chronicle.NewLayout("/store"), chronicle.NewNopLogger(),
		s.clock, testutil.NewStubIDGenerator(), idx, nil, chronicle.Options{})
	if err != nil {
		t.Fatalf("reopening engine: %v", err)
	}
	return &testStore{fs: s.fs, clock: s.clock, index: idx, eng: eng}
}

// seedSearchable saves a conversation titled about parsing plus two messages.
func seedSearchable(t *testing.T, s *testStore) {
	t.Helper()
	now := s.clock.Now()
	c := testutil.ValidConversation("c1", now)
	c.Title = "Fixing the parser"
	c.MessageIDs = []string{"m1", "m2"}
	c.Metadata.MessageCount = 2
	if err := s.eng.SaveConversation(c); err != nil {
		t.Fatal(err)
	}
	m1 := testutil.ValidMessage("m1", "c1", now)
	m1.Content = "the parser crashes on unicode input"
	if err := s.eng.SaveMessage(m1); err != nil {
		t.Fatal(err)
	}
	m2 := testutil.ValidMessage("m2", "c1", now)
	m2.Content = "unrelated chatter about deployments"
	if err := s.eng.SaveMessage(m2); err != nil {
		t.Fatal(err)
	}
}

func TestSearch(t *testing.T) {
	t.Run("indexed word search", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		seedSearchable(t, s)
		results, err := s.eng.Search("parser", chronicle.SearchOptions{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("expected conversation and message hits, got %+v", results)
		}
		// The index orders conversation hits before message hits.
		if results[0].MessageID != "" || results[1].MessageID != "m1" {
			t.Errorf("unexpected results: %+v", results)
		}
	})

	t.Run("all words must match", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		seedSearchable(t, s)
		results, err := s.eng.Search("parser unicode", chronicle.SearchOptions{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 1 || results[0].MessageID != "m1" {
			t.Errorf("expected only the message matching both words, got %+v", results)
		}
	})

	t.Run("limit caps results", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		seedSearchable(t, s)
		results, err := s.eng.Search("parser", chronicle.SearchOptions{Limit: 1})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 1 {
			t.Errorf("limit ignored: %d results", len(results))
		}
	})

	t.Run("regex search", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		seedSearchable(t, s)
		results, err := s.eng.Search("cra.hes", chronicle.SearchOptions{Regex: true})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 1 || results[0].MessageID != "m1" {
			t.Errorf("unexpected results: %+v", results)
		}
	})

	t.Run("invalid regex is an error", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		seedSearchable(t, s)
		if _, err := s.eng.Search("(unclosed", chronicle.SearchOptions{Regex: true}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("scan fallback without an index", func(t *testing.T) {
		s := newBareStore(t, chronicle.Options{})
		seedSearchable(t, s)
		results, err := s.eng.Search("PARSER", chronicle.SearchOptions{})
		if err != nil {
			t.Fatalf("search: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("case-insensitive scan missed matches: %+v", results)
		}
	})

	t.Run("empty query is an error", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		if _, err := s.eng.Search("   ", chronicle.SearchOptions{}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("snippet windows around the match", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		now := s.clock.Now()
		if err := s.eng.SaveConversation(testutil.ValidConversation("c1", now)); err != nil {
			t.Fatal(err)
		}
		m := testutil.ValidMessage("m1", "c1", now)
		m.Content = strings.Repeat("padding ", 30) + "needle" + strings.Repeat(" trailing", 30)
		if err := s.eng.SaveMessage(m); err != nil {
			t.Fatal(err)
		}
		results, err := s.eng.Search("needle", chronicle.SearchOptions{})
		if err != nil || len(results) != 1 {
			t.Fatalf("search: %v, %v", results, err)
		}
		sn := results[0].Snippet
		if !strings.Contains(sn, "needle") {
			t.Errorf("snippet misses the match: %q", sn)
		}
		if !strings.HasPrefix(sn, "...") || !strings.HasSuffix(sn, "...") {
			t.Errorf("mid-text snippet not elided: %q", sn)
		}
		if len(sn) > 70 {
			t.Errorf("snippet too long: %d chars", len(sn))
		}
	})

	t.Run("snippet never splits a rune", func(t *testing.T) {
		s := newStore(t, chronicle.Options{})
		now := s.clock.Now()
		if err := s.eng.SaveConversation(testutil.ValidConversation("c1", now)); err != nil {
			t.Fatal(err)
		}
		m := testutil.ValidMessage("m1", "c1", now)
		// The window start lands inside a multibyte rune unless the edges
		// are clamped to rune boundaries.
		m.Content = strings.Repeat("héllö ", 30) + "needle" + strings.Repeat(" wörld", 30)
		if err := s.eng.SaveMessage(m); err != nil {
			t.Fatal(err)
		}
		results, err := s.eng.Search("needle", chronicle.SearchOptions{})
		if err != nil || len(results) != 1 {
			t.Fatalf("search: %v, %v", results, err)
		}
		sn := results[0].Snippet
		if !utf8.ValidString(sn) {
			t.Errorf("snippet cut a rune: %q", sn)
		}
		if !strings.Contains(sn, "needle") {
			t.Errorf("snippet misses the match: %q", sn)
		}
	})
}

func TestRebuildIndex(t *testing.T) {
	// Entities written while no index was configured become searchable only
	// after a rebuild on an indexed engine.
	bare := newBareStore(t, chronicle.Options{})
	seedSearchable(t, bare)
	now := bare.clock.Now()
	if err := bare.eng.SaveMessage(testutil.ValidMessage("m3", "c1", now)); err != nil {
		t.Fatal(err)
	}
	sc := testutil.ValidCollection("sc1", "m1", now, model.NewFileSnapshot("a.go", "package a", now, true))
	if err := bare.eng.SaveSnapshotCollection(sc); err != nil {
		t.Fatal(err)
	}

	indexed := newStoreOverFSIndexed(t, bare)
	results, err := indexed.eng.Search("parser", chronicle.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("empty index unexpectedly matched: %+v", results)
	}

	if err := indexed.eng.RebuildIndex(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	results, err = indexed.eng.Search("parser", chronicle.SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("rebuilt index missed matches: %+v", results)
	}

	// The message-to-collection mapping is rebuilt too.
	cid, err := indexed.index.CollectionFor("m1")
	if err != nil || cid != "sc1" {
		t.Errorf("collection mapping not rebuilt: %q, %v", cid, err)
	}
}
