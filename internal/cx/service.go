package cx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
)

// ErrProjectNotFound is returned by FindProject when no project has the name.
var ErrProjectNotFound = errors.New("project not found")

// DefaultSourceExtension is the only source format the engine exports.
const DefaultSourceExtension = "f3d"

// Service is the export engine. It walks a Hierarchy depth-first, opens each
// eligible file once, exports it in every requested format, and folds the
// outcomes into a Counter.
//
// A Service is single-threaded: one run at a time, no parallel exports.
type Service struct {
	hierarchy Hierarchy
	documents DocumentService
	exporter  ExportService
	progress  Progress
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	history   History   // optional
	encryptor Encryptor // optional; nil disables sealing
	sourceExt string
}

// NewService creates a Service with the provided collaborators.
// History and sealing are off until WithHistory / WithEncryptor.
func NewService(hierarchy Hierarchy, documents DocumentService, exporter ExportService, progress Progress, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if progress == nil {
		progress = NopProgress{}
	}
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Service{
		hierarchy: hierarchy,
		documents: documents,
		exporter:  exporter,
		progress:  progress,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		sourceExt: DefaultSourceExtension,
	}
}

// WithHistory records runs and export attempts in h.
func (s *Service) WithHistory(h History) *Service {
	s.history = h
	return s
}

// WithEncryptor seals every exported file with e.
func (s *Service) WithEncryptor(e Encryptor) *Service {
	s.encryptor = e
	return s
}

// WithSourceExtension changes the eligible source extension.
func (s *Service) WithSourceExtension(ext string) *Service {
	if ext != "" {
		s.sourceExt = ext
	}
	return s
}

// Run exports the first project in host order whose name is selected in ec.
// Only one project is processed even when several are selected.
//
// Run returns an error only for failures that prevent the run from starting:
// the output directory cannot be created or the hierarchy cannot be listed.
// Everything below project level is counted, not returned.
func (s *Service) Run(ctx context.Context, ec ExportContext, dryRun bool) (Counter, error) {
	if err := os.MkdirAll(ec.OutputDir, 0755); err != nil {
		return Counter{}, fmt.Errorf("creating output directory: %w", err)
	}

	projects, err := s.hierarchy.Projects(ctx)
	if err != nil {
		return Counter{}, fmt.Errorf("listing projects: %w", err)
	}

	project := s.selectProject(projects, ec)
	if project == nil {
		s.logger.Warn("no selected project found", "selected", selectedNames(ec))
		return Counter{}, nil
	}

	folders, err := project.Folders(ctx)
	if err != nil {
		return Counter{}, fmt.Errorf("listing folders of %s: %w", project.Name(), err)
	}

	run := &RunRecord{
		ID:        s.idgen.New(),
		Project:   project.Name(),
		OutputDir: ec.OutputDir,
		Formats:   ec.Formats,
		DryRun:    dryRun,
		StartedAt: s.clock.Now(),
		Status:    RunStatusRunning,
	}
	ec.RunID = run.ID
	if s.history != nil {
		if err := s.history.CreateRun(run); err != nil {
			s.logger.Warn("recording run start", "run", run.ID, "error", err)
		}
	}

	if s.history != nil {
		defer func() {
			if r := recover(); r != nil {
				if err := s.history.FinishRun(run.ID, RunStatusError, Counter{}, s.clock.Now()); err != nil {
					s.logger.Warn("recording run finish", "run", run.ID, "error", err)
				}
				panic(r)
			}
		}()
	}

	s.logger.Info("run started", "run", run.ID, "project", project.Name(), "output", ec.OutputDir, "formats", ec.Formats, "dry_run", dryRun)

	s.progress.Show(fmt.Sprintf("Exporting from %s Project", project.Name()), 0, s.countFolders(ctx, folders))
	defer s.progress.Done()

	var counter Counter
	for _, folder := range folders {
		if s.cancelled(ctx) {
			break
		}
		counter = counter.Merge(s.VisitFolder(ctx, ec, folder, dryRun))
	}

	status := RunStatusSuccess
	if s.cancelled(ctx) {
		status = RunStatusCancelled
		s.logger.Warn("run cancelled", "run", run.ID)
	}
	if s.history != nil {
		if err := s.history.FinishRun(run.ID, status, counter, s.clock.Now()); err != nil {
			s.logger.Warn("recording run finish", "run", run.ID, "error", err)
		}
	}

	s.logger.Info("run finished", "run", run.ID, "status", status, "saved", counter.Saved, "skipped", counter.Skipped, "errored", counter.Errored)
	return counter, nil
}

// ListProjects returns the names of the projects in the host session.
func (s *Service) ListProjects(ctx context.Context) ([]string, error) {
	projects, err := s.hierarchy.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name()
	}
	return names, nil
}

// FindProject returns the name of the first project called name, or an
// error wrapping ErrProjectNotFound that lists what is available.
func (s *Service) FindProject(ctx context.Context, name string) (string, error) {
	names, err := s.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	for _, n := range names {
		if n == name {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q (available: %v)", ErrProjectNotFound, name, names)
}

// GetHistory returns the most recent runs, newest first.
func (s *Service) GetHistory(limit int) ([]*RunRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

func (s *Service) selectProject(projects []Project, ec ExportContext) Project {
	var found Project
	for _, p := range projects {
		if !ec.SelectsProject(p.Name()) {
			continue
		}
		if found == nil {
			found = p
			continue
		}
		s.logger.Warn("ignoring additional selected project", "project", p.Name(), "exporting", found.Name())
	}
	return found
}

// countFolders sizes the progress range: one unit per folder visited.
// Listing errors are ignored here and reported when the folder is visited.
func (s *Service) countFolders(ctx context.Context, folders []Folder) int {
	n := 0
	for _, f := range folders {
		n++
		subs, err := f.Folders(ctx)
		if err != nil {
			continue
		}
		n += s.countFolders(ctx, subs)
	}
	return n
}

func (s *Service) cancelled(ctx context.Context) bool {
	return s.progress.Cancelled() || ctx.Err() != nil
}

// sanitize is SanitizeFilename plus the diagnostic log entry.
func (s *Service) sanitize(name string) string {
	out := SanitizeFilename(name)
	if out != name {
		s.logger.Info("name contained forbidden characters", "name", name, "sanitized", out)
	}
	return out
}

func selectedNames(ec ExportContext) []string {
	names := make([]string, 0, len(ec.Projects))
	for name := range ec.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
