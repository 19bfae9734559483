package search

import (
	"path/filepath"
	"testing"

	"chronicle/internal/config"
)

func TestNewIndexFromConfig(t *testing.T) {
	t.Run("none yields nil index", func(t *testing.T) {
		for _, typ := range []string{"none", ""} {
			idx, err := NewIndexFromConfig(config.IndexConfig{Type: typ})
			if idx != nil || err != nil {
				t.Errorf("type %q: expected nil,nil; got %v, %v", typ, idx, err)
			}
		}
	})

	t.Run("memory", func(t *testing.T) {
		idx, err := NewIndexFromConfig(config.IndexConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("memory: %v", err)
		}
		if _, ok := idx.(*MemoryIndex); !ok {
			t.Errorf("expected MemoryIndex, got %T", idx)
		}
	})

	t.Run("sqlite requires path", func(t *testing.T) {
		if _, err := NewIndexFromConfig(config.IndexConfig{Type: "sqlite"}); err == nil {
			t.Error("expected error")
		}
		idx, err := NewIndexFromConfig(config.IndexConfig{
			Type: "sqlite",
			Path: filepath.Join(t.TempDir(), "search.db"),
		})
		if err != nil {
			t.Fatalf("sqlite: %v", err)
		}
		defer idx.Close()
		if _, ok := idx.(*SQLiteIndex); !ok {
			t.Errorf("expected SQLiteIndex, got %T", idx)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewIndexFromConfig(config.IndexConfig{Type: "lucene"}); err == nil {
			t.Error("expected error")
		}
	})
}
