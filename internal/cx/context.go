package cx

import "path/filepath"

// ExportContext is the immutable per-node traversal state. It is passed by
// value; Extend returns a copy and never modifies the receiver.
type ExportContext struct {
	// OutputDir is where files of the current node are written.
	OutputDir string
	// Formats are exported in this order for every eligible file.
	Formats []Format
	// Projects is the set of selected project names.
	Projects map[string]bool
	// SkipExisting counts an existing destination as skipped instead of
	// overwriting it.
	SkipExisting bool
	// RunID identifies the run in History. Empty outside of Service.Run.
	RunID string
}

// NewExportContext builds a context rooted at outputDir.
func NewExportContext(outputDir string, formats []Format, projects ...string) ExportContext {
	set := make(map[string]bool, len(projects))
	for _, p := range projects {
		set[p] = true
	}
	return ExportContext{
		OutputDir: outputDir,
		Formats:   append([]Format(nil), formats...),
		Projects:  set,
	}
}

// Extend returns a context whose OutputDir is joined with segment. The
// caller is expected to have sanitized segment already.
func (c ExportContext) Extend(segment string) ExportContext {
	c.OutputDir = filepath.Join(c.OutputDir, segment)
	return c
}

// SelectsProject reports whether name is one of the selected projects.
func (c ExportContext) SelectsProject(name string) bool {
	return c.Projects[name]
}

// Destination is the output path for a file exported as format.
func (c ExportContext) Destination(sanitizedName string, format Format) string {
	return filepath.Join(c.OutputDir, sanitizedName+"."+format.Extension())
}
