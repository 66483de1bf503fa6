package cx

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// forbiddenChars are the characters Windows Explorer refuses in a file name.
// Other platforms are more permissive, so this set is the common denominator.
const forbiddenChars = `:\/*?<>|`

// hashLen is the number of hex characters of the SHA-256 digest appended to
// a name that needed replacement.
const hashLen = 8

// SanitizeFilename maps a display name to a filesystem-safe name.
//
// Every forbidden character is replaced by a space. A name that needed no
// replacement is returned unchanged. Otherwise "_<hash>" is appended, where
// hash is the first 8 hex characters of the SHA-256 of the original name, so
// "Model 1/2" and "Model 1 2" never end up at the same path.
func SanitizeFilename(name string) string {
	cleaned, replaced := replaceForbidden(name)
	if !replaced {
		return name
	}
	sum := sha256.Sum256([]byte(name))
	return cleaned + "_" + hex.EncodeToString(sum[:])[:hashLen]
}

func replaceForbidden(name string) (string, bool) {
	if !strings.ContainsAny(name, forbiddenChars) {
		return name, false
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(forbiddenChars, r) {
			return ' '
		}
		return r
	}, name), true
}

// ContainsForbidden reports whether name has any character SanitizeFilename
// would replace.
func ContainsForbidden(name string) bool {
	return strings.ContainsAny(name, forbiddenChars)
}
