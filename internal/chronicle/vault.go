package chronicle

import "io"

// Vault is an off-store destination for backup bundles. All operations
// stream through io.Reader/io.Writer so large bundles never have to fit in
// memory. Implementations must make Put idempotent per key.
type Vault interface {
	// Put stores an object under the given key, replacing any previous
	// object with that key. size is the number of bytes that will be read
	// from r.
	Put(key string, r io.Reader, size int64) error

	// Get retrieves an object by key and writes it to w.
	Get(key string, w io.Writer) error

	// List returns all keys beginning with prefix.
	List(prefix string) ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly
	// configured.
	ValidateSetup() error
}
