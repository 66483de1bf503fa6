package cx

import "io"

// Encryptor seals exported files. Encryption uses the public key only; the
// passphrase is needed to Unlock the private key when reading them back.
type Encryptor interface {
	// Setup performs one-time key generation. Called during `cx keys init`.
	Setup(passphrase string) error

	// Encrypt encrypts data read from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key using the passphrase.
	// Returns an error if the passphrase is incorrect.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured returns true if both key files exist at configured paths.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	// Decrypt decrypts data read from r and writes plaintext to w.
	Decrypt(r io.Reader, w io.Writer) error
}

// SealedExtension is appended to the name of an encrypted export.
const SealedExtension = ".age"
