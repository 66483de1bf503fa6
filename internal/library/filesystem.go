package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"cx-go/internal/cx"
)

// versionSuffix matches a trailing " vN" on a file stem.
var versionSuffix = regexp.MustCompile(`^(.+) v([0-9]+)$`)

// FileSystemLibrary exposes a directory tree as a project library:
//
//	<root>/
//	  <project>/            (each top-level directory is a project)
//	    <folder>/           (nested directories are folders)
//	      Bracket v3.f3d    (regular files; " v3" is the version number)
//
// Regular files directly inside a project directory are not part of any
// folder and are not listed. Hidden entries and entries matching the ignore
// rules are not listed either.
type FileSystemLibrary struct {
	root   string
	ignore *IgnoreMatcher

	mu     sync.Mutex
	active string
}

// NewFileSystemLibrary creates a library rooted at root. Patterns are
// gitignore-style rules applied to paths relative to root, on top of the
// rules in <root>/.cxignore.
func NewFileSystemLibrary(root string, patterns []string) (*FileSystemLibrary, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving library root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("library root not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root is not a directory: %s", absRoot)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}

	return &FileSystemLibrary{
		root:   absRoot,
		ignore: NewIgnoreMatcher(append(append([]string{}, patterns...), filePatterns...)),
	}, nil
}

// Root returns the absolute library root.
func (l *FileSystemLibrary) Root() string { return l.root }

// Projects lists the top-level directories.
func (l *FileSystemLibrary) Projects(_ context.Context) ([]cx.Project, error) {
	dirs, _, err := l.readDir(l.root)
	if err != nil {
		return nil, err
	}
	projects := make([]cx.Project, len(dirs))
	for i, d := range dirs {
		projects[i] = &fsFolder{lib: l, name: d, dir: filepath.Join(l.root, d)}
	}
	return projects, nil
}

// fsFolder serves as both project and folder: they differ only in that a
// project's own files are not listed.
type fsFolder struct {
	lib  *FileSystemLibrary
	name string
	dir  string
}

func (f *fsFolder) Name() string { return f.name }

func (f *fsFolder) Folders(_ context.Context) ([]cx.Folder, error) {
	dirs, _, err := f.lib.readDir(f.dir)
	if err != nil {
		return nil, err
	}
	folders := make([]cx.Folder, len(dirs))
	for i, d := range dirs {
		folders[i] = &fsFolder{lib: f.lib, name: d, dir: filepath.Join(f.dir, d)}
	}
	return folders, nil
}

func (f *fsFolder) Files(_ context.Context) ([]cx.File, error) {
	_, names, err := f.lib.readDir(f.dir)
	if err != nil {
		return nil, err
	}
	names = latestVersions(names, func(n string) string { return n })
	files := make([]cx.File, 0, len(names))
	for _, n := range names {
		files = append(files, f.lib.newFile(filepath.Join(f.dir, n)))
	}
	return files, nil
}

// readDir splits a directory into listed sub-directory and regular file
// names, sorted by name. Symlinks, devices and the like are never listed.
func (l *FileSystemLibrary) readDir(dir string) (dirs, files []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading directory: %w", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		rel, err := filepath.Rel(l.root, filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("calculating relative path: %w", err)
		}
		switch {
		case e.IsDir():
			if l.ignore.MatchDir(rel) {
				continue
			}
			dirs = append(dirs, e.Name())
		case e.Type().IsRegular():
			if l.ignore.Match(rel) {
				continue
			}
			files = append(files, e.Name())
		}
	}
	return dirs, files, nil
}

func (l *FileSystemLibrary) newFile(absPath string) *fsFile {
	name, extension, version := parseFileName(filepath.Base(absPath))
	rel, err := filepath.Rel(l.root, absPath)
	if err != nil {
		rel = absPath
	}
	return &fsFile{
		path:      absPath,
		id:        filepath.ToSlash(rel),
		name:      name,
		extension: extension,
		version:   version,
	}
}

// parseFileName splits "Bracket v3.f3d" into ("Bracket", "f3d", 3). A stem
// without a version suffix is version 1.
func parseFileName(base string) (name, extension string, version int) {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name, version = stem, 1
	if m := versionSuffix.FindStringSubmatch(stem); m != nil {
		if v, err := strconv.Atoi(m[2]); err == nil {
			name, version = m[1], v
		}
	}
	return name, strings.TrimPrefix(ext, "."), version
}

// latestVersions keeps one entry per design: of the entries whose base name
// parses to the same name and extension, only the highest version remains.
// Order of the survivors is preserved.
func latestVersions(entries []string, base func(string) string) []string {
	type design struct{ name, ext string }
	best := make(map[design]int, len(entries))
	versions := make([]int, len(entries))
	for i, e := range entries {
		name, ext, version := parseFileName(base(e))
		versions[i] = version
		d := design{name, strings.ToLower(ext)}
		if j, ok := best[d]; !ok || version > versions[j] {
			best[d] = i
		}
	}

	out := make([]string, 0, len(best))
	for i, e := range entries {
		name, ext, _ := parseFileName(base(e))
		if best[design{name, strings.ToLower(ext)}] == i {
			out = append(out, e)
		}
	}
	return out
}

// fsFile is a design file on disk.
type fsFile struct {
	path      string
	id        string
	name      string
	extension string
	version   int
}

func (f *fsFile) Name() string      { return f.name }
func (f *fsFile) Version() int      { return f.version }
func (f *fsFile) Extension() string { return f.extension }
func (f *fsFile) ID() string        { return f.id }

// FileSystemDocument is an opened file. The source is read in place.
type FileSystemDocument struct {
	file *fsFile
}

func (d *FileSystemDocument) Name() string      { return d.file.name }
func (d *FileSystemDocument) LocalPath() string { return d.file.path }

// Open validates that the file is still a regular file.
func (l *FileSystemLibrary) Open(_ context.Context, file cx.File) (cx.Document, error) {
	f, ok := file.(*fsFile)
	if !ok {
		f = l.newFile(filepath.Join(l.root, filepath.FromSlash(file.ID())))
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source is not a regular file: %s", f.path)
	}
	return &FileSystemDocument{file: f}, nil
}

// Activate records doc as the active document.
func (l *FileSystemLibrary) Activate(_ context.Context, doc cx.Document) error {
	d, ok := doc.(*FileSystemDocument)
	if !ok {
		return fmt.Errorf("not a filesystem document: %T", doc)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = d.file.id
	return nil
}

// Close releases doc. The library is read-only, so save is refused.
func (l *FileSystemLibrary) Close(doc cx.Document, save bool) error {
	d, ok := doc.(*FileSystemDocument)
	if !ok {
		return fmt.Errorf("not a filesystem document: %T", doc)
	}
	l.mu.Lock()
	if l.active == d.file.id {
		l.active = ""
	}
	l.mu.Unlock()
	if save {
		return fmt.Errorf("filesystem library is read-only: cannot save %s", d.file.id)
	}
	return nil
}

// Compile-time checks that FileSystemLibrary implements the host interfaces
var (
	_ cx.Hierarchy       = (*FileSystemLibrary)(nil)
	_ cx.DocumentService = (*FileSystemLibrary)(nil)
)
