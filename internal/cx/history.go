package cx

import "time"

// Run statuses recorded in History.
const (
	RunStatusRunning   = "running"
	RunStatusSuccess   = "success"
	RunStatusCancelled = "cancelled"
	RunStatusError     = "error"
)

// Export attempt outcomes recorded in History.
const (
	ExportSaved   = "saved"
	ExportSkipped = "skipped"
	ExportErrored = "errored"
)

// RunRecord describes one export run.
type RunRecord struct {
	ID         string
	Project    string
	OutputDir  string
	Formats    []Format
	DryRun     bool
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	Counter    Counter
}

// ExportRecord describes one (file, format) export attempt.
type ExportRecord struct {
	RunID       string
	FileID      string
	FileName    string
	Version     int
	Format      Format
	Destination string
	Status      string
	Error       string
	CreatedAt   time.Time
}

// History persists what each run did. Failures to record never change the
// outcome of a run; the engine logs them and moves on.
type History interface {
	// CreateRun records the start of a run.
	CreateRun(run *RunRecord) error

	// RecordExport records a single export attempt.
	RecordExport(rec *ExportRecord) error

	// FinishRun stores the final status and counts.
	FinishRun(runID string, status string, counter Counter, finishedAt time.Time) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*RunRecord, error)

	// ListExports returns the export attempts of a run in insertion order.
	ListExports(runID string) ([]*ExportRecord, error)

	// Close releases the underlying storage.
	Close() error
}
