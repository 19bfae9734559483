package vault

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"chronicle/internal/chronicle"
)

// MemoryVault is an in-memory implementation of the Vault interface, for
// tests.
type MemoryVault struct {
	name    string
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string][]byte),
	}
}

func (v *MemoryVault) Put(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	v.mu.Lock()
	v.objects[key] = data
	v.mu.Unlock()
	return nil
}

func (v *MemoryVault) Get(key string, w io.Writer) error {
	v.mu.RLock()
	data, ok := v.objects[key]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("object not found: %s", key)
	}
	_, err := w.Write(data)
	return err
}

func (v *MemoryVault) List(prefix string) ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var keys []string
	for key := range v.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (v *MemoryVault) ValidateSetup() error {
	return nil
}

// Len returns the number of stored objects. Intended for tests.
func (v *MemoryVault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.objects)
}

// Compile-time check that MemoryVault implements chronicle.Vault
var _ chronicle.Vault = (*MemoryVault)(nil)
