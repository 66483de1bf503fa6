package cx

import (
	"errors"
	"fmt"
	"strings"
)

// Format is one target export file type. The value is the canonical
// lowercase tag, used both for display and as the output file extension.
type Format string

const (
	// FormatArchive is the host's native archive format.
	FormatArchive Format = "f3d"
	// FormatSTEP is the neutral STEP interchange format.
	FormatSTEP Format = "step"
)

// ErrUnsupportedFormat is returned for a format tag nothing knows how to write.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// AllFormats lists every known format in display order.
var AllFormats = []Format{FormatArchive, FormatSTEP}

// DefaultFormats is the selection used when none is configured.
var DefaultFormats = []Format{FormatArchive, FormatSTEP}

// String returns the canonical tag.
func (f Format) String() string { return string(f) }

// Extension returns the output file extension, without the leading dot.
func (f Format) Extension() string { return string(f) }

// ParseFormat resolves a tag (case-insensitive, optional leading dot).
func ParseFormat(tag string) (Format, error) {
	tag = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(tag)), ".")
	for _, f := range AllFormats {
		if string(f) == tag {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
}

// ParseFormats resolves a list of tags, keeping the caller's order and
// dropping duplicates.
func ParseFormats(tags []string) ([]Format, error) {
	formats := make([]Format, 0, len(tags))
	seen := make(map[Format]bool, len(tags))
	for _, tag := range tags {
		f, err := ParseFormat(tag)
		if err != nil {
			return nil, err
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		formats = append(formats, f)
	}
	return formats, nil
}
