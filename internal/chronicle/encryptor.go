package chronicle

import "io"

// Encryptor protects exported documents and mirrored backups. Encryption
// needs only the public key; decryption requires unlocking the private key
// with the user's passphrase first.
type Encryptor interface {
	// Setup generates a key pair, storing the public key in plaintext and
	// the private key encrypted with the passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context that can
	// decrypt data.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether a key pair exists.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked identity for decrypting data.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
