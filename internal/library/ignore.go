package library

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is read from the library root when present.
const IgnoreFileName = ".cxignore"

// IgnoreMatcher checks library-relative paths against gitignore-style rules.
type IgnoreMatcher struct {
	rules *gitignore.GitIgnore
}

// NewIgnoreMatcher compiles raw pattern lines. Blank lines and lines
// starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []string
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, raw)
	}
	if len(patterns) == 0 {
		return &IgnoreMatcher{}
	}
	return &IgnoreMatcher{rules: gitignore.CompileIgnoreLines(patterns...)}
}

// Match reports whether the file at relativePath is ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	if m.rules == nil {
		return false
	}
	return m.rules.MatchesPath(filepath.ToSlash(relativePath))
}

// MatchDir reports whether the directory at relativePath is ignored.
// Directory-only rules ("build/") need the trailing slash to match.
func (m *IgnoreMatcher) MatchDir(relativePath string) bool {
	if m.rules == nil {
		return false
	}
	p := filepath.ToSlash(relativePath)
	return m.rules.MatchesPath(p) || m.rules.MatchesPath(p+"/")
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}
