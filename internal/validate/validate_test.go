package validate

import (
	"strings"
	"testing"
)

func TestChecksum(t *testing.T) {
	t.Run("deterministic", func(t *testing.T) {
		a := Checksum([]byte("hello"))
		b := Checksum([]byte("hello"))
		if a != b {
			t.Errorf("same input produced different checksums: %s vs %s", a, b)
		}
	})

	t.Run("content sensitive", func(t *testing.T) {
		if Checksum([]byte("hello")) == Checksum([]byte("hello!")) {
			t.Error("different inputs produced the same checksum")
		}
	})

	t.Run("lowercase hex", func(t *testing.T) {
		sum := Checksum([]byte("data"))
		if len(sum) != 64 {
			t.Errorf("expected 64 hex chars, got %d", len(sum))
		}
		if sum != strings.ToLower(sum) {
			t.Errorf("checksum not lowercase: %s", sum)
		}
	})
}

func TestFieldError(t *testing.T) {
	fe := FieldError{Path: "title", Message: "missing title"}
	if got := fe.Error(); !strings.Contains(got, "title") || !strings.Contains(got, "missing title") {
		t.Errorf("unexpected error string: %s", got)
	}
}

func TestPrefixed(t *testing.T) {
	errs := Prefixed("messages[2]", []FieldError{
		{Path: "id", Message: "missing id"},
		{Path: "", Message: "nil"},
	})
	if errs[0].Path != "messages[2].id" {
		t.Errorf("expected messages[2].id, got %s", errs[0].Path)
	}
	if errs[1].Path != "messages[2]" {
		t.Errorf("expected messages[2], got %s", errs[1].Path)
	}
}

func TestIndexed(t *testing.T) {
	errs := Indexed("snapshots", 3, []FieldError{{Path: "checksum", Message: "mismatch"}})
	if errs[0].Path != "snapshots[3].checksum" {
		t.Errorf("expected snapshots[3].checksum, got %s", errs[0].Path)
	}
}

func TestResultOf(t *testing.T) {
	if res := ResultOf(nil); !res.Valid {
		t.Error("empty error list should be valid")
	}
	if res := ResultOf([]FieldError{{Path: "id", Message: "missing"}}); res.Valid {
		t.Error("non-empty error list should be invalid")
	}
}
