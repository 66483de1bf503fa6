package encryption

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cx-go/internal/cx"
)

// UnsealFile decrypts a sealed export next to itself and returns the
// plaintext path ("Bracket.step.age" -> "Bracket.step"). An existing
// plaintext file is never overwritten.
func UnsealFile(dc cx.DecryptionContext, sealedPath string) (string, error) {
	if !strings.HasSuffix(sealedPath, cx.SealedExtension) {
		return "", fmt.Errorf("not a sealed export (missing %s): %s", cx.SealedExtension, sealedPath)
	}
	plainPath := strings.TrimSuffix(sealedPath, cx.SealedExtension)
	if _, err := os.Stat(plainPath); err == nil {
		return "", fmt.Errorf("refusing to overwrite %s", plainPath)
	}

	in, err := os.Open(sealedPath)
	if err != nil {
		return "", fmt.Errorf("opening sealed export: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(plainPath), ".unseal-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := dc.Decrypt(in, tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, plainPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("renaming decrypted export: %w", err)
	}
	return plainPath, nil
}
