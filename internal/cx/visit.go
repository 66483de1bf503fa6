package cx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// VisitFile exports one file in every format of ec, in order.
//
// A file whose extension is not the source extension counts as one skip and
// is never opened. Otherwise the document is opened on the first real export
// and closed exactly once when the loop ends, whatever happened in between.
// A failing or panicking format is logged and counted as errored; the
// remaining formats still run. In dry-run mode nothing is opened or written.
//
// The returned error is reserved for failures outside the per-format loop,
// such as the document refusing to close. The Counter is not meaningful when
// an error is returned.
func (s *Service) VisitFile(ctx context.Context, ec ExportContext, file File, dryRun bool) (counter Counter, err error) {
	s.logger.Info("visiting file", "file", file.Name(), "version", file.Version(), "extension", file.Extension())

	if !strings.EqualFold(file.Extension(), s.sourceExt) {
		s.logger.Info("skipping file with unhandled extension", "file", file.Name(), "extension", file.Extension())
		s.record(ec, file, "", "", ExportSkipped, nil)
		return Counter{Skipped: 1}, nil
	}

	doc := NewLazyDocument(s.documents, file, s.logger)
	defer func() {
		if cerr := doc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	name := s.sanitize(file.Name())
	for _, format := range ec.Formats {
		s.progress.SetMessage(fmt.Sprintf("Exporting %s as %s...", file.Name(), format))
		dest := ec.Destination(name, format)

		if dryRun {
			s.logger.Info("would export", "file", file.Name(), "format", format, "path", dest)
			continue
		}

		result, path, err := s.exportFormatSafely(ctx, ec, format, dest, doc)
		if err != nil {
			s.logger.Error("export failed", "file", file.Name(), "format", format, "path", dest, "error", err)
			s.record(ec, file, format, dest, ExportErrored, err)
			counter = counter.Merge(Counter{Errored: 1})
			continue
		}

		if result.Skipped > 0 {
			s.record(ec, file, format, path, ExportSkipped, nil)
		} else {
			s.record(ec, file, format, path, ExportSaved, nil)
		}
		counter = counter.Merge(result)
	}

	return counter, nil
}

// exportFile writes one format. It returns the path actually written, which
// differs from dest when the export is sealed.
func (s *Service) exportFile(ctx context.Context, ec ExportContext, format Format, dest string, doc *LazyDocument) (Counter, string, error) {
	if ec.SkipExisting {
		if existing, ok := s.existingExport(dest); ok {
			s.logger.Info("already exported, skipping", "path", existing)
			return Counter{Skipped: 1}, existing, nil
		}
	}

	if err := doc.Open(ctx); err != nil {
		return Counter{}, dest, err
	}
	design, err := doc.Design()
	if err != nil {
		return Counter{}, dest, err
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return Counter{}, dest, fmt.Errorf("creating destination directory: %w", err)
	}

	if err := s.exporter.Export(ctx, design, format, dest); err != nil {
		return Counter{}, dest, fmt.Errorf("exporting as %s: %w", format, err)
	}

	path := dest
	if s.encryptor != nil {
		path, err = s.seal(dest)
		if err != nil {
			return Counter{}, dest, err
		}
	}

	s.logger.Info("saved", "path", path)
	return Counter{Saved: 1}, path, nil
}

// exportFormatSafely runs exportFile and turns a panic into an error, so one
// crashing format counts as errored and the next format still runs.
func (s *Service) exportFormatSafely(ctx context.Context, ec ExportContext, format Format, dest string, doc *LazyDocument) (counter Counter, path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			counter, path = Counter{}, dest
			err = fmt.Errorf("%w exporting as %s: %v\n%s", errPanic, format, r, debug.Stack())
		}
	}()
	return s.exportFile(ctx, ec, format, dest, doc)
}

// existingExport looks for a previous export of dest, sealed or not.
func (s *Service) existingExport(dest string) (string, bool) {
	candidates := []string{dest}
	if s.encryptor != nil {
		candidates = []string{dest + SealedExtension, dest}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, true
		}
	}
	return "", false
}

// seal encrypts path to path+SealedExtension and removes the plaintext.
func (s *Service) seal(path string) (string, error) {
	sealed := path + SealedExtension

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening export for sealing: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".seal-*")
	if err != nil {
		return "", fmt.Errorf("creating sealed temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := s.encryptor.Encrypt(in, tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sealing export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing sealed temp file: %w", err)
	}
	if err := os.Rename(tmpPath, sealed); err != nil {
		return "", fmt.Errorf("renaming sealed export: %w", err)
	}
	success = true

	in.Close()
	if err := os.Remove(path); err != nil {
		s.logger.Warn("removing plaintext export", "path", path, "error", err)
	}
	return sealed, nil
}

// VisitFolder exports every file directly in folder, then recurses into its
// sub-folders, writing below ec.OutputDir joined with the sanitized folder
// name.
//
// Cancellation is checked once, on entry: a cancelled run returns the zero
// Counter without touching the folder. A file that fails unexpectedly (an
// error or a panic out of VisitFile) counts as one errored and its siblings
// carry on.
func (s *Service) VisitFolder(ctx context.Context, ec ExportContext, folder Folder, dryRun bool) Counter {
	var counter Counter
	if s.cancelled(ctx) {
		return counter
	}

	s.progress.SetMessage(fmt.Sprintf("Visiting folder %s", folder.Name()))
	s.logger.Info("visiting folder", "folder", folder.Name())

	child := ec.Extend(s.sanitize(folder.Name()))

	files, err := folder.Files(ctx)
	if err != nil {
		s.logger.Error("listing files", "folder", folder.Name(), "error", err)
		counter = counter.Merge(Counter{Errored: 1})
	}
	for _, file := range files {
		result, err := s.visitFileSafely(ctx, child, file, dryRun)
		if err != nil {
			s.logger.Error("unexpected failure visiting file", "file", file.Name(), "error", err)
			s.record(child, file, "", "", ExportErrored, err)
			counter = counter.Merge(Counter{Errored: 1})
			continue
		}
		counter = counter.Merge(result)
	}

	s.progress.Advance(1)

	subs, err := folder.Folders(ctx)
	if err != nil {
		s.logger.Error("listing sub-folders", "folder", folder.Name(), "error", err)
		return counter.Merge(Counter{Errored: 1})
	}
	for _, sub := range subs {
		counter = counter.Merge(s.VisitFolder(ctx, child, sub, dryRun))
	}

	return counter
}

// errPanic marks an error recovered from a panic.
var errPanic = errors.New("panic")

func (s *Service) visitFileSafely(ctx context.Context, ec ExportContext, file File, dryRun bool) (counter Counter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w visiting %s: %v\n%s", errPanic, file.Name(), r, debug.Stack())
		}
	}()
	return s.VisitFile(ctx, ec, file, dryRun)
}

func (s *Service) record(ec ExportContext, file File, format Format, dest, status string, cause error) {
	if s.history == nil || ec.RunID == "" {
		return
	}
	rec := &ExportRecord{
		RunID:       ec.RunID,
		FileID:      file.ID(),
		FileName:    file.Name(),
		Version:     file.Version(),
		Format:      format,
		Destination: dest,
		Status:      status,
		CreatedAt:   s.clock.Now(),
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	if err := s.history.RecordExport(rec); err != nil {
		s.logger.Warn("recording export", "file", file.Name(), "error", err)
	}
}
