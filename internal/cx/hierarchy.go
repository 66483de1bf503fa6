package cx

import "context"

// Hierarchy is a read-only view of the host's project library.
// The host owns every node; the engine never mutates one and never keeps a
// reference past the traversal call that received it.
type Hierarchy interface {
	// Projects lists the projects available in the host session.
	Projects(ctx context.Context) ([]Project, error)
}

// Project is a named container of top-level folders.
type Project interface {
	Name() string
	Folders(ctx context.Context) ([]Folder, error)
}

// Folder contains files and sub-folders.
type Folder interface {
	Name() string
	Files(ctx context.Context) ([]File, error)
	Folders(ctx context.Context) ([]Folder, error)
}

// File is a single design file in the library.
type File interface {
	// Name is the display name, without extension.
	Name() string
	// Version is the host's version number for the file.
	Version() int
	// Extension is the source format extension, without the leading dot.
	Extension() string
	// ID is a stable identity for the file within its library.
	ID() string
}

// Document is a loaded design. It is opaque to the engine: only the
// DocumentService and ExportService that produced it know what is inside.
type Document interface {
	Name() string
}

// DocumentService loads and discards design documents.
type DocumentService interface {
	// Open loads the file.
	Open(ctx context.Context, file File) (Document, error)
	// Activate makes the document the host's active document.
	Activate(ctx context.Context, doc Document) error
	// Close discards the document. Changes are persisted only when save is
	// true; the engine always passes false.
	Close(doc Document, save bool) error
}

// ExportService writes a loaded document to destPath in the given format.
// Format specific options are the implementation's business.
type ExportService interface {
	Export(ctx context.Context, doc Document, format Format, destPath string) error
}

// Progress is the surface a run reports to. It carries the user's cancel
// request back to the engine.
type Progress interface {
	// Show displays the surface with a bounded progress range.
	Show(title string, min, max int)
	SetMessage(msg string)
	// Advance moves the progress value forward by n units.
	Advance(n int)
	// Cancelled reports whether the user asked to stop.
	Cancelled() bool
	// Done hides the surface.
	Done()
}

// NopProgress is a Progress that shows nothing and is never cancelled.
type NopProgress struct{}

func (NopProgress) Show(string, int, int) {}
func (NopProgress) SetMessage(string)     {}
func (NopProgress) Advance(int)           {}
func (NopProgress) Cancelled() bool       { return false }
func (NopProgress) Done()                 {}
