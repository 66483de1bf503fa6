package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCxHandler_Handle(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 15, 30, 0, time.UTC)

	tests := []struct {
		name    string
		runID   string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			runID:   "20260301T091500Z",
			level:   slog.LevelInfo,
			message: "visiting folder",
			want:    "2026-03-01T09:15:30Z\tINFO\t20260301T091500Z\tvisiting folder\n",
		},
		{
			name:    "error level",
			runID:   "r",
			level:   slog.LevelError,
			message: "export failed",
			want:    "2026-03-01T09:15:30Z\tERROR\tr\texport failed\n",
		},
		{
			name:    "with record attrs",
			runID:   "r",
			level:   slog.LevelInfo,
			message: "saved",
			attrs:   []slog.Attr{slog.String("path", "/out/Parts/Bolt.step"), slog.Int("version", 3)},
			want:    "2026-03-01T09:15:30Z\tINFO\tr\tsaved\tpath=/out/Parts/Bolt.step\tversion=3\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &cxHandler{w: &buf, runID: tt.runID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}
			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

// countingWriter counts Write calls.
type countingWriter struct {
	bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.Buffer.Write(p)
}

func TestCxHandler_SingleWritePerRecord(t *testing.T) {
	w := &countingWriter{}
	h := (&cxHandler{w: w, runID: "r"}).WithAttrs([]slog.Attr{slog.String("component", "library")})

	r := slog.NewRecord(time.Now(), slog.LevelWarn, "recording export", 0)
	r.AddAttrs(slog.String("file", "Bolt"), slog.String("error", "db locked"))
	if err := h.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if w.writes != 1 {
		t.Errorf("Handle() made %d writes, want 1", w.writes)
	}
	if !strings.Contains(w.String(), "component=library\tfile=Bolt") {
		t.Errorf("pre-set attrs not written first: %q", w.String())
	}
}

func TestCxHandler_WithAttrs_doesNotMutateOriginal(t *testing.T) {
	h := &cxHandler{w: &bytes.Buffer{}, runID: "r", attrs: []slog.Attr{slog.String("a", "1")}}
	h2 := h.WithAttrs([]slog.Attr{slog.String("b", "2")}).(*cxHandler)

	if len(h.attrs) != 1 {
		t.Errorf("original handler attrs modified: got %d, want 1", len(h.attrs))
	}
	if len(h2.attrs) != 2 {
		t.Errorf("new handler attrs: got %d, want 2", len(h2.attrs))
	}
}

func TestNewRunLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	started := time.Date(2026, 3, 1, 9, 15, 42, 0, time.Local)
	var mirror bytes.Buffer

	rl, err := newRunLog(dir, started, &mirror)
	if err != nil {
		t.Fatalf("newRunLog() error = %v", err)
	}
	if want := filepath.Join(dir, "2026_03_01_09_15.txt"); rl.path != want {
		t.Errorf("path = %q, want %q", rl.path, want)
	}

	rl.logger.Info("run started", "project", "Demo")
	if err := rl.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(rl.path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "run started\tproject=Demo") {
		t.Errorf("log file = %q", data)
	}
	if mirror.String() != string(data) {
		t.Errorf("mirror = %q, want the same lines as the file", mirror.String())
	}

	// A second run in the same minute appends.
	rl2, err := newRunLog(dir, started.Add(10*time.Second), nil)
	if err != nil {
		t.Fatalf("second newRunLog() error = %v", err)
	}
	rl2.logger.Info("second run")
	rl2.Close()

	data, _ = os.ReadFile(rl.path)
	if !strings.Contains(string(data), "run started") || !strings.Contains(string(data), "second run") {
		t.Errorf("log file after second run = %q", data)
	}
}
