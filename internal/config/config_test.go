package config

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("/data/chronicle")

	if cfg.StoreDir() != filepath.Join("/data/chronicle", "store") {
		t.Errorf("unexpected store dir %s", cfg.StoreDir())
	}
	if cfg.LogDir != filepath.Join("/data/chronicle", "log") {
		t.Errorf("unexpected log dir %s", cfg.LogDir)
	}
	if !cfg.Engine.AutoRepair || !cfg.Engine.MigrateOnRead {
		t.Errorf("engine defaults not conservative-repair: %+v", cfg.Engine)
	}
	if cfg.Engine.RemoveCorruptedItems {
		t.Error("lossy repair enabled by default")
	}
	if cfg.Index.Type != "sqlite" || cfg.Index.Path == "" {
		t.Errorf("unexpected index defaults: %+v", cfg.Index)
	}
	if cfg.Vault.Type != "none" {
		t.Errorf("unexpected vault default: %+v", cfg.Vault)
	}
	if cfg.Encryption.PublicKeyPath == "" || cfg.Encryption.PrivateKeyPath == "" {
		t.Errorf("key paths not defaulted: %+v", cfg.Encryption)
	}
}

func TestManagerRoundTrip(t *testing.T) {
	cfg := NewConfig("/data/chronicle")
	cfg.Vault = VaultConfig{
		Type:     "s3",
		Name:     "offsite",
		S3Bucket: "my-bucket",
		S3Prefix: "chronicle/",
		S3Region: "eu-west-1",
	}

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.BaseDir != cfg.BaseDir {
		t.Errorf("base dir lost: %s", got.BaseDir)
	}
	if got.Vault != cfg.Vault {
		t.Errorf("vault config lost: %+v", got.Vault)
	}
	if got.Engine != cfg.Engine {
		t.Errorf("engine config lost: %+v", got.Engine)
	}
}

func TestReadRejectsInvalidTOML(t *testing.T) {
	m := &Manager{}
	if _, err := m.Read(bytes.NewReader([]byte("base_dir = ["))); err == nil {
		t.Error("expected decode error")
	}
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "chronicle.toml")
	cfg := NewConfig("/data/chronicle")

	if err := Init(path, cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.BaseDir != cfg.BaseDir {
		t.Errorf("base dir lost: %s", got.BaseDir)
	}

	t.Run("refuses to overwrite", func(t *testing.T) {
		if err := Init(path, cfg); err == nil {
			t.Error("expected error for existing config")
		}
	})
}

func TestReadFromFileMissing(t *testing.T) {
	if _, err := ReadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error")
	}
}
