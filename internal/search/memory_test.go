package search

import (
	"testing"

	"chronicle/internal/model"
)

func TestMemoryIndex(t *testing.T) {
	idx := NewMemoryIndex()

	if err := idx.Add(model.KindMessage, "m1", "c1", []string{"alpha", "beta"}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(model.KindMessage, "m2", "c2", []string{"alpha"}); err != nil {
		t.Fatal(err)
	}

	t.Run("lookup intersects words", func(t *testing.T) {
		hits, err := idx.Lookup([]string{"alpha", "beta"})
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if len(hits) != 1 || hits[0].ID != "m1" || hits[0].ConversationID != "c1" {
			t.Errorf("expected only m1, got %+v", hits)
		}
	})

	t.Run("lookup is sorted", func(t *testing.T) {
		hits, err := idx.Lookup([]string{"alpha"})
		if err != nil {
			t.Fatalf("lookup: %v", err)
		}
		if len(hits) != 2 || hits[0].ID != "m1" || hits[1].ID != "m2" {
			t.Errorf("unexpected order: %+v", hits)
		}
	})

	t.Run("re-add replaces", func(t *testing.T) {
		if err := idx.Add(model.KindMessage, "m1", "c1", []string{"gamma"}); err != nil {
			t.Fatal(err)
		}
		if hits, _ := idx.Lookup([]string{"beta"}); len(hits) != 0 {
			t.Errorf("stale words survived re-add: %+v", hits)
		}
	})

	t.Run("remove", func(t *testing.T) {
		if err := idx.Remove(model.KindMessage, "m2"); err != nil {
			t.Fatal(err)
		}
		if hits, _ := idx.Lookup([]string{"alpha"}); len(hits) != 0 {
			t.Errorf("entries survived remove: %+v", hits)
		}
	})

	t.Run("snapshot mapping", func(t *testing.T) {
		if err := idx.SetCollectionFor("m1", "sc1"); err != nil {
			t.Fatal(err)
		}
		if cid, _ := idx.CollectionFor("m1"); cid != "sc1" {
			t.Errorf("expected sc1, got %q", cid)
		}
		if err := idx.RemoveCollectionFor("m1"); err != nil {
			t.Fatal(err)
		}
		if cid, _ := idx.CollectionFor("m1"); cid != "" {
			t.Errorf("mapping survived remove: %q", cid)
		}
	})

	t.Run("clear", func(t *testing.T) {
		if err := idx.Add(model.KindConversation, "c1", "c1", []string{"title"}); err != nil {
			t.Fatal(err)
		}
		if err := idx.Clear(); err != nil {
			t.Fatal(err)
		}
		if hits, _ := idx.Lookup([]string{"title"}); len(hits) != 0 {
			t.Error("words survived clear")
		}
	})
}
