package library

import (
	"fmt"
	"os"
	"strings"
)

// spool writes content to a fresh temp file named after the source file and
// returns its path. The caller removes it.
func spool(name, extension string, content []byte) (string, error) {
	f, err := os.CreateTemp("", "cx-"+tempSafe(name)+"-*."+extension)
	if err != nil {
		return "", fmt.Errorf("creating spool file: %w", err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing spool file: %w", err)
	}
	return f.Name(), nil
}

// tempSafe drops characters os.CreateTemp rejects in a pattern.
func tempSafe(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '*', ':', '?', '<', '>', '|':
			return '_'
		}
		return r
	}, name)
}
