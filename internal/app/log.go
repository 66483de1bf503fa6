package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// logFileLayout names a run's log file after its start minute.
const logFileLayout = "2006_01_02_15_04"

// cxHandler is a custom slog.Handler that formats log records as:
//
//	<timestamp>\t<level>\t<runID>\t<message>\t<key=value ...>
//
// Each record reaches w in a single Write.
type cxHandler struct {
	w     io.Writer
	runID string
	attrs []slog.Attr
}

func (h *cxHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }

func (h *cxHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\t%s\t%s\t%s", r.Time.UTC().Format("2006-01-02T15:04:05Z"), r.Level, h.runID, r.Message)

	for _, a := range h.attrs {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&buf, "\t%s=%v", a.Key, a.Value)
		return true
	})
	buf.WriteByte('\n')

	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *cxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &cxHandler{
		w:     h.w,
		runID: h.runID,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
	}
}

func (h *cxHandler) WithGroup(string) slog.Handler { return h }

// runLog is the log sink of one export run.
type runLog struct {
	logger *slog.Logger
	file   *os.File
	path   string
}

// newRunLog creates <logDir>/<start minute>.txt and a logger writing to it.
// mirror, when non-nil, receives a copy of every line. A second run in the
// same minute appends to the same file.
func newRunLog(logDir string, started time.Time, mirror io.Writer) (*runLog, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	logPath := filepath.Join(logDir, started.Format(logFileLayout)+".txt")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	var w io.Writer = f
	if mirror != nil {
		w = io.MultiWriter(f, mirror)
	}
	handler := &cxHandler{w: w, runID: started.UTC().Format("20060102T150405Z")}
	return &runLog{logger: slog.New(handler), file: f, path: logPath}, nil
}

func (l *runLog) Close() error {
	return l.file.Close()
}

// slogAdapter wraps *slog.Logger to satisfy the cx.Logger interface.
type slogAdapter struct {
	l *slog.Logger
}

func (a *slogAdapter) Debug(msg string, args ...any) { a.l.Debug(msg, args...) }
func (a *slogAdapter) Info(msg string, args ...any)  { a.l.Info(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.l.Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.l.Error(msg, args...) }
