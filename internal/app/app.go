// Package app is the application layer between the CLI and the storage
// engine. It constructs all dependencies from config and manages their
// lifecycle on Close.
package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"chronicle/internal/chronicle"
	"chronicle/internal/config"
	"chronicle/internal/encryption"
	"chronicle/internal/fsys"
	"chronicle/internal/integrity"
	"chronicle/internal/search"
	"chronicle/internal/vault"
)

// ChronicleApp wires the engine, index, vault and encryptor together for
// one CLI invocation. The caller must call Close when done.
type ChronicleApp struct {
	cfg       *config.Config
	engine    *chronicle.Engine
	index     chronicle.WordIndex
	vault     chronicle.Vault
	encryptor chronicle.Encryptor
	logFile   *os.File
}

// NewChronicleApp creates a fully wired app from the given config.
// operation identifies the CLI command being run (e.g. "Verify", "Backup").
func NewChronicleApp(cfg *config.Config, operation string) (*ChronicleApp, error) {
	idx, err := search.NewIndexFromConfig(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("creating index: %w", err)
	}

	v, err := vault.NewVaultFromConfig(cfg.Vault)
	if err != nil {
		closeIndex(idx)
		return nil, fmt.Errorf("creating vault: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		closeIndex(idx)
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		closeIndex(idx)
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger = logger.With("op", operation)

	engine, err := chronicle.NewEngine(
		fsys.NewOSFilesystem(),
		chronicle.NewLayout(cfg.StoreDir()),
		&slogAdapter{l: logger},
		chronicle.RealClock{},
		chronicle.UUIDGenerator{},
		idx,
		v,
		chronicle.Options{
			AutoRepair:         cfg.Engine.AutoRepair,
			BackupBeforeRepair: cfg.Engine.BackupBeforeRepair,
			MigrateOnRead:      cfg.Engine.MigrateOnRead,
			RepairPolicy: integrity.Policy{
				SetDefaults:          cfg.Engine.SetDefaults,
				RecalculateChecksums: cfg.Engine.RecalculateChecksums,
				FixReferences:        cfg.Engine.FixReferences,
				RemoveCorruptedItems: cfg.Engine.RemoveCorruptedItems,
			},
		},
	)
	if err != nil {
		closeIndex(idx)
		logFile.Close()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &ChronicleApp{
		cfg:       cfg,
		engine:    engine,
		index:     idx,
		vault:     v,
		encryptor: enc,
		logFile:   logFile,
	}, nil
}

// Engine exposes the storage engine for CLI commands.
func (a *ChronicleApp) Engine() *chronicle.Engine { return a.engine }

// Encryptor exposes the configured encryptor for export commands.
func (a *ChronicleApp) Encryptor() chronicle.Encryptor { return a.encryptor }

// Export writes the selected conversations to w, encrypting when encrypt
// is set.
func (a *ChronicleApp) Export(w io.Writer, ids []string, encrypt bool) error {
	var enc chronicle.Encryptor
	if encrypt {
		if !a.encryptor.IsConfigured() {
			return fmt.Errorf("encryption requested but no key pair is configured (run setup first)")
		}
		enc = a.encryptor
	}
	return a.engine.Export(w, ids, enc)
}

// Import reads an export document from r, unlocking the private key with
// passphrase when one is given.
func (a *ChronicleApp) Import(r io.Reader, passphrase string) (int, error) {
	var dec chronicle.DecryptionContext
	if passphrase != "" {
		ctx, err := a.encryptor.Unlock(passphrase)
		if err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
		dec = ctx
	}
	return a.engine.Import(r, dec)
}

// Close releases the engine, index and log file.
func (a *ChronicleApp) Close() error {
	var firstErr error
	if err := a.engine.Close(); err != nil {
		firstErr = fmt.Errorf("closing engine: %w", err)
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing log file: %w", err)
		}
	}
	return firstErr
}

func closeIndex(idx chronicle.WordIndex) {
	if idx != nil {
		idx.Close()
	}
}
