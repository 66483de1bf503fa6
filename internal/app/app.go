package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"

	"cx-go/internal/config"
	"cx-go/internal/converter"
	"cx-go/internal/cx"
	"cx-go/internal/database"
	"cx-go/internal/encryption"
	"cx-go/internal/library"
)

// ErrHistoryDisabled is returned by history queries when no database is configured.
var ErrHistoryDisabled = errors.New("export history is disabled")

// CXApp is the application layer between the CLI and cx.Service.
// It constructs all collaborators from config, owns the per-run log sink,
// and closes the history database on Close.
type CXApp struct {
	cfg       *config.Config
	library   library.Library
	exporter  *converter.Exporter
	history   cx.History // nil when [database] type is "none"
	encryptor cx.Encryptor
	clock     cx.Clock
	idgen     cx.IDGenerator
	stderr    io.Writer
}

// ExportOperation is one export request. Zero fields fall back to config.
type ExportOperation struct {
	OutputDir    string
	Formats      []string
	Projects     []string
	DryRun       bool
	SkipExisting bool
	Verbose      bool // mirror the run log to stderr
}

// ExportResult is what a run produced.
type ExportResult struct {
	Counter   cx.Counter
	LogPath   string
	Cancelled bool
}

// NewCXApp creates a fully wired CXApp from the given config.
// The caller must call Close when done.
func NewCXApp(ctx context.Context, cfg *config.Config) (*CXApp, error) {
	lib, err := library.NewLibraryFromConfig(ctx, cfg.Library)
	if err != nil {
		return nil, fmt.Errorf("creating library: %w", err)
	}

	exporter, err := converter.NewExporterFromConfig(cfg.Converters)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}
	if cfg.Encryption.Enabled && !enc.IsConfigured() {
		return nil, fmt.Errorf("encryption is enabled but no keys exist: run 'cx keys init'")
	}

	var history cx.History
	if cfg.Database.Type != "none" && cfg.Database.Type != "" {
		history, err = database.NewDatabaseFromConfig(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("creating database: %w", err)
		}
	}

	return &CXApp{
		cfg:       cfg,
		library:   lib,
		exporter:  exporter,
		history:   history,
		encryptor: enc,
		clock:     cx.RealClock{},
		idgen:     cx.UUIDGenerator{},
		stderr:    os.Stderr,
	}, nil
}

func (a *CXApp) newService(progress cx.Progress, logger cx.Logger) *cx.Service {
	svc := cx.NewService(a.library, a.library, a.exporter, progress, logger, a.clock, a.idgen).
		WithSourceExtension(a.cfg.SourceExtension)
	if a.history != nil {
		svc.WithHistory(a.history)
	}
	if a.cfg.Encryption.Enabled {
		svc.WithEncryptor(a.encryptor)
	}
	return svc
}

// ListProjects returns the project names in library order.
func (a *CXApp) ListProjects(ctx context.Context) ([]string, error) {
	return a.newService(nil, nil).ListProjects(ctx)
}

// FindProject checks that a project called name exists.
func (a *CXApp) FindProject(ctx context.Context, name string) (string, error) {
	return a.newService(nil, nil).FindProject(ctx, name)
}

// DefaultProject is the configured project, if any.
func (a *CXApp) DefaultProject() string {
	return a.cfg.Project
}

// resolve fills unset operation fields from config.
func (a *CXApp) resolve(op ExportOperation) (ExportOperation, error) {
	if op.OutputDir == "" {
		op.OutputDir = a.cfg.OutputDir
	}
	if op.OutputDir == "" {
		return op, fmt.Errorf("no output directory: set output_dir or pass --out")
	}
	abs, err := filepath.Abs(op.OutputDir)
	if err != nil {
		return op, fmt.Errorf("resolving output directory: %w", err)
	}
	op.OutputDir = abs

	if len(op.Formats) == 0 {
		op.Formats = a.cfg.Formats
	}
	if len(op.Projects) == 0 && a.cfg.Project != "" {
		op.Projects = []string{a.cfg.Project}
	}
	if len(op.Projects) == 0 {
		return op, fmt.Errorf("no project selected: set project or pass --project")
	}
	op.SkipExisting = op.SkipExisting || a.cfg.SkipExisting
	return op, nil
}

// Export runs one export and returns its counts and log path.
//
// When the run fails after its log file exists, the returned result is
// non-nil and carries LogPath so the caller can point the user at it.
func (a *CXApp) Export(ctx context.Context, op ExportOperation, progress cx.Progress) (res *ExportResult, err error) {
	if progress == nil {
		progress = cx.NopProgress{}
	}

	op, err = a.resolve(op)
	if err != nil {
		return nil, err
	}
	formats, err := cx.ParseFormats(op.Formats)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(op.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	logDir := a.cfg.LogDir
	if logDir == "" {
		logDir = op.OutputDir
	}
	var mirror io.Writer
	if op.Verbose {
		mirror = a.stderr
	}
	rl, err := newRunLog(logDir, a.clock.Now(), mirror)
	if err != nil {
		return nil, err
	}
	defer rl.Close()

	res = &ExportResult{LogPath: rl.path}
	logger := &slogAdapter{l: rl.logger}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("export aborted", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("export aborted: %v", r)
		}
	}()

	supported := a.exporter.Formats()
	for _, f := range formats {
		if !slices.Contains(supported, f) {
			logger.Warn("no converter configured, every export in this format will fail", "format", f)
		}
	}

	ec := cx.NewExportContext(op.OutputDir, formats, op.Projects...)
	ec.SkipExisting = op.SkipExisting

	counter, err := a.newService(progress, logger).Run(ctx, ec, op.DryRun)
	if err != nil {
		logger.Error("export failed", "error", err)
		return res, err
	}

	res.Counter = counter
	res.Cancelled = progress.Cancelled() || ctx.Err() != nil
	return res, nil
}

// GetHistory returns the most recent runs, newest first.
func (a *CXApp) GetHistory(limit int) ([]*cx.RunRecord, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	return a.newService(nil, nil).GetHistory(limit)
}

// ListExports returns the export attempts of one run.
func (a *CXApp) ListExports(runID string) ([]*cx.ExportRecord, error) {
	if a.history == nil {
		return nil, ErrHistoryDisabled
	}
	return a.history.ListExports(runID)
}

// InitKeys generates the sealing key pair protected by passphrase.
func (a *CXApp) InitKeys(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("setting up keys: %w", err)
	}
	return nil
}

// Decrypt unseals each path next to itself and returns the plaintext paths.
// It stops at the first failure.
func (a *CXApp) Decrypt(passphrase string, paths []string) ([]string, error) {
	if !a.encryptor.IsConfigured() {
		return nil, fmt.Errorf("no keys found: run 'cx keys init'")
	}
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return nil, fmt.Errorf("unlocking private key: %w", err)
	}

	var out []string
	for _, p := range paths {
		plain, err := encryption.UnsealFile(dc, p)
		if err != nil {
			return out, fmt.Errorf("decrypting %s: %w", p, err)
		}
		out = append(out, plain)
	}
	return out, nil
}

// Close closes the history database.
func (a *CXApp) Close() error {
	if a.history == nil {
		return nil
	}
	if err := a.history.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
