package app

import (
	"fmt"
	"strings"

	"cx-go/internal/cx"
)

// Summary renders the after-run report: the four count and log lines,
// preceded by a notice when the run was cancelled.
func Summary(counter cx.Counter, logPath string, cancelled bool) string {
	var b strings.Builder
	if cancelled {
		b.WriteString("Export was cancelled\n")
	}
	fmt.Fprintf(&b, "Saved %d files\n", counter.Saved)
	fmt.Fprintf(&b, "Skipped %d files\n", counter.Skipped)
	fmt.Fprintf(&b, "Encountered %d errors\n", counter.Errored)
	fmt.Fprintf(&b, "Log file is at %s\n", logPath)
	return b.String()
}

// FailureReport renders a run that aborted before it could be summarized.
func FailureReport(err error, logPath string) string {
	if logPath == "" {
		return fmt.Sprintf("No log file was created\n%v\n", err)
	}
	return fmt.Sprintf("Log file is at %s\n%v\n", logPath, err)
}
