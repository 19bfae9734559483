package encryption

import (
	"testing"

	"chronicle/internal/config"
)

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Run("age is the default", func(t *testing.T) {
		for _, typ := range []string{"age", ""} {
			enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: typ})
			if err != nil {
				t.Fatalf("type %q: %v", typ, err)
			}
			if _, ok := enc.(*AgeEncryptor); !ok {
				t.Errorf("type %q: expected AgeEncryptor, got %T", typ, enc)
			}
		}
	})

	t.Run("test", func(t *testing.T) {
		enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "test"})
		if err != nil {
			t.Fatalf("test: %v", err)
		}
		if _, ok := enc.(*TestEncryptor); !ok {
			t.Errorf("expected TestEncryptor, got %T", enc)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
			t.Error("expected error")
		}
	})
}
