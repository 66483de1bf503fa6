package library

import (
	"context"
	"errors"
	"os"
	"testing"

	"cx-go/internal/cx"
)

func TestMemoryLibrary_Hierarchy(t *testing.T) {
	lib := NewMemoryLibrary()
	p := lib.AddProject("Demo")
	parts := p.AddFolder("Parts")
	parts.AddFileVersion("Bolt", "f3d", 3, []byte("bolt"))
	parts.AddFolder("Fasteners")
	lib.AddProject("Other")
	ctx := context.Background()

	projects, err := lib.Projects(ctx)
	if err != nil {
		t.Fatalf("Projects() error = %v", err)
	}
	if len(projects) != 2 || projects[0].Name() != "Demo" || projects[1].Name() != "Other" {
		t.Fatalf("Projects() = %v", projects)
	}

	folders, err := projects[0].Folders(ctx)
	if err != nil || len(folders) != 1 || folders[0].Name() != "Parts" {
		t.Fatalf("Folders() = %v, %v", folders, err)
	}

	files, err := folders[0].Files(ctx)
	if err != nil || len(files) != 1 {
		t.Fatalf("Files() = %v, %v", files, err)
	}
	f := files[0]
	if f.Name() != "Bolt" || f.Extension() != "f3d" || f.Version() != 3 || f.ID() != "Demo/Parts/Bolt.f3d" {
		t.Errorf("file = %s %s v%d %s", f.Name(), f.Extension(), f.Version(), f.ID())
	}

	subs, err := folders[0].Folders(ctx)
	if err != nil || len(subs) != 1 || subs[0].Name() != "Fasteners" {
		t.Errorf("sub-folders = %v, %v", subs, err)
	}
}

func TestMemoryLibrary_OpenSpoolsContent(t *testing.T) {
	lib := NewMemoryLibrary()
	f := lib.AddProject("Demo").AddFolder("Parts").AddFile("Bolt/M8", "f3d", []byte("bolt"))
	ctx := context.Background()

	doc, err := lib.Open(ctx, f)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	local := doc.(*MemoryDocument).LocalPath()
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatalf("reading spooled copy: %v", err)
	}
	if string(data) != "bolt" {
		t.Errorf("spooled content = %q", data)
	}

	if err := lib.Activate(ctx, doc); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if lib.Active() != f.ID() {
		t.Errorf("Active() = %q", lib.Active())
	}

	if err := lib.Close(doc, false); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(local); !os.IsNotExist(err) {
		t.Errorf("spooled copy not removed: %v", err)
	}
	if lib.Active() != "" {
		t.Errorf("Active() after Close = %q", lib.Active())
	}
	if lib.Opens(f.ID()) != 1 || lib.Closes(f.ID()) != 1 || lib.Saves(f.ID()) != 0 {
		t.Errorf("opens=%d closes=%d saves=%d", lib.Opens(f.ID()), lib.Closes(f.ID()), lib.Saves(f.ID()))
	}
}

func TestMemoryLibrary_FailureInjection(t *testing.T) {
	lib := NewMemoryLibrary()
	f := lib.AddProject("Demo").AddFolder("Parts").AddFile("Bolt", "f3d", nil)
	openErr := errors.New("locked")
	closeErr := errors.New("hung")
	ctx := context.Background()

	lib.FailOpen(f.ID(), openErr)
	if _, err := lib.Open(ctx, f); !errors.Is(err, openErr) {
		t.Errorf("Open() error = %v, want %v", err, openErr)
	}
	if lib.TotalOpens() != 0 {
		t.Errorf("TotalOpens() = %d after failed open", lib.TotalOpens())
	}

	lib.FailOpen(f.ID(), nil)
	lib.FailClose(f.ID(), closeErr)
	doc, err := lib.Open(ctx, f)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := lib.Close(doc, true); !errors.Is(err, closeErr) {
		t.Errorf("Close() error = %v, want %v", err, closeErr)
	}
	if lib.Saves(f.ID()) != 1 {
		t.Errorf("Saves() = %d, want 1", lib.Saves(f.ID()))
	}
}

type foreignDoc struct{}

func (foreignDoc) Name() string { return "foreign" }

func TestMemoryLibrary_RejectsForeignDocuments(t *testing.T) {
	lib := NewMemoryLibrary()
	var doc cx.Document = foreignDoc{}
	if err := lib.Activate(context.Background(), doc); err == nil {
		t.Error("Activate() accepted a foreign document")
	}
	if err := lib.Close(doc, false); err == nil {
		t.Error("Close() accepted a foreign document")
	}
}
