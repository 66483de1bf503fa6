package library

import (
	"context"
	"fmt"
	"os"
	"path"
	"sync"

	"cx-go/internal/cx"
)

// MemoryLibrary is an in-memory project library. It implements both
// cx.Hierarchy and cx.DocumentService and counts every open and close, which
// makes it the fixture of choice for engine tests.
// This implementation is safe for concurrent use.
type MemoryLibrary struct {
	mu        sync.Mutex
	projects  []*MemoryProject
	files     map[string]*MemoryFile // id -> file
	opens     map[string]int
	closes    map[string]int
	saves     map[string]int
	active    string
	failOpen  map[string]error
	failClose map[string]error
}

// NewMemoryLibrary creates an empty library.
func NewMemoryLibrary() *MemoryLibrary {
	return &MemoryLibrary{
		files:     make(map[string]*MemoryFile),
		opens:     make(map[string]int),
		closes:    make(map[string]int),
		saves:     make(map[string]int),
		failOpen:  make(map[string]error),
		failClose: make(map[string]error),
	}
}

// MemoryProject is a project of a MemoryLibrary.
type MemoryProject struct {
	lib     *MemoryLibrary
	name    string
	folders []*MemoryFolder
}

// MemoryFolder is a folder of a MemoryLibrary.
type MemoryFolder struct {
	lib     *MemoryLibrary
	path    string
	name    string
	files   []*MemoryFile
	folders []*MemoryFolder
}

// MemoryFile is a design file held in memory.
type MemoryFile struct {
	id        string
	name      string
	extension string
	version   int
	content   []byte
}

func (f *MemoryFile) Name() string      { return f.name }
func (f *MemoryFile) Version() int      { return f.version }
func (f *MemoryFile) Extension() string { return f.extension }
func (f *MemoryFile) ID() string        { return f.id }

// AddProject appends a project.
func (l *MemoryLibrary) AddProject(name string) *MemoryProject {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := &MemoryProject{lib: l, name: name}
	l.projects = append(l.projects, p)
	return p
}

// AddFolder appends a top-level folder to the project.
func (p *MemoryProject) AddFolder(name string) *MemoryFolder {
	p.lib.mu.Lock()
	defer p.lib.mu.Unlock()
	f := &MemoryFolder{lib: p.lib, path: path.Join(p.name, name), name: name}
	p.folders = append(p.folders, f)
	return f
}

// AddFolder appends a sub-folder.
func (f *MemoryFolder) AddFolder(name string) *MemoryFolder {
	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	sub := &MemoryFolder{lib: f.lib, path: path.Join(f.path, name), name: name}
	f.folders = append(f.folders, sub)
	return sub
}

// AddFile appends a version 1 file with the given extension and content.
func (f *MemoryFolder) AddFile(name, extension string, content []byte) *MemoryFile {
	return f.AddFileVersion(name, extension, 1, content)
}

// AddFileVersion appends a file with an explicit version number.
func (f *MemoryFolder) AddFileVersion(name, extension string, version int, content []byte) *MemoryFile {
	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	file := &MemoryFile{
		id:        path.Join(f.path, name+"."+extension),
		name:      name,
		extension: extension,
		version:   version,
		content:   content,
	}
	f.files = append(f.files, file)
	f.lib.files[file.id] = file
	return file
}

// FailOpen makes every Open of the file fail with err.
func (l *MemoryLibrary) FailOpen(fileID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failOpen[fileID] = err
}

// FailClose makes every Close of the file fail with err.
func (l *MemoryLibrary) FailClose(fileID string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failClose[fileID] = err
}

// Opens returns how many times the file was opened.
func (l *MemoryLibrary) Opens(fileID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.opens[fileID]
}

// Closes returns how many times the file was closed.
func (l *MemoryLibrary) Closes(fileID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closes[fileID]
}

// Saves returns how many closes asked to persist changes.
func (l *MemoryLibrary) Saves(fileID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saves[fileID]
}

// TotalOpens returns the number of opens across all files.
func (l *MemoryLibrary) TotalOpens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.opens {
		n += c
	}
	return n
}

// Active returns the id of the active document, or "".
func (l *MemoryLibrary) Active() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Projects lists projects in insertion order.
func (l *MemoryLibrary) Projects(_ context.Context) ([]cx.Project, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]cx.Project, len(l.projects))
	for i, p := range l.projects {
		out[i] = p
	}
	return out, nil
}

func (p *MemoryProject) Name() string { return p.name }

func (p *MemoryProject) Folders(_ context.Context) ([]cx.Folder, error) {
	p.lib.mu.Lock()
	defer p.lib.mu.Unlock()
	return foldersOf(p.folders), nil
}

func (f *MemoryFolder) Name() string { return f.name }

func (f *MemoryFolder) Files(_ context.Context) ([]cx.File, error) {
	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	out := make([]cx.File, len(f.files))
	for i, file := range f.files {
		out[i] = file
	}
	return out, nil
}

func (f *MemoryFolder) Folders(_ context.Context) ([]cx.Folder, error) {
	f.lib.mu.Lock()
	defer f.lib.mu.Unlock()
	return foldersOf(f.folders), nil
}

func foldersOf(folders []*MemoryFolder) []cx.Folder {
	out := make([]cx.Folder, len(folders))
	for i, f := range folders {
		out[i] = f
	}
	return out
}

// MemoryDocument is an opened MemoryFile. Its content is spooled to a temp
// file so external converters can read it.
type MemoryDocument struct {
	file      *MemoryFile
	localPath string
}

func (d *MemoryDocument) Name() string { return d.file.name }

// LocalPath is the spooled copy of the source content.
func (d *MemoryDocument) LocalPath() string { return d.localPath }

// Open spools the file content to a temp file.
func (l *MemoryLibrary) Open(_ context.Context, file cx.File) (cx.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	mf, ok := l.files[file.ID()]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", file.ID())
	}
	if err := l.failOpen[mf.id]; err != nil {
		return nil, err
	}

	localPath, err := spool(mf.name, mf.extension, mf.content)
	if err != nil {
		return nil, err
	}
	l.opens[mf.id]++
	return &MemoryDocument{file: mf, localPath: localPath}, nil
}

// Activate marks doc as the active document.
func (l *MemoryLibrary) Activate(_ context.Context, doc cx.Document) error {
	md, ok := doc.(*MemoryDocument)
	if !ok {
		return fmt.Errorf("not a memory document: %T", doc)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = md.file.id
	return nil
}

// Close removes the spooled copy. Nothing is ever written back.
func (l *MemoryLibrary) Close(doc cx.Document, save bool) error {
	md, ok := doc.(*MemoryDocument)
	if !ok {
		return fmt.Errorf("not a memory document: %T", doc)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	os.Remove(md.localPath)
	l.closes[md.file.id]++
	if save {
		l.saves[md.file.id]++
	}
	if l.active == md.file.id {
		l.active = ""
	}
	return l.failClose[md.file.id]
}

// Compile-time checks that MemoryLibrary implements the host interfaces
var (
	_ cx.Hierarchy       = (*MemoryLibrary)(nil)
	_ cx.DocumentService = (*MemoryLibrary)(nil)
)
