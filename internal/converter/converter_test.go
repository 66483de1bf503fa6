package converter

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"cx-go/internal/config"
	"cx-go/internal/cx"
)

type localDoc struct {
	name string
	path string
}

func (d localDoc) Name() string      { return d.name }
func (d localDoc) LocalPath() string { return d.path }

type remoteDoc struct{}

func (remoteDoc) Name() string { return "remote" }

func newSource(t *testing.T, name, content string) localDoc {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return localDoc{name: strings.TrimSuffix(name, filepath.Ext(name)), path: p}
}

func TestExporter_CopiesNativeFormat(t *testing.T) {
	doc := newSource(t, "Bolt.f3d", "archive bytes")
	e := NewExporter(map[cx.Format]Command{cx.FormatArchive: {}})
	dest := filepath.Join(t.TempDir(), "Bolt.f3d")

	if err := e.Export(context.Background(), doc, cx.FormatArchive, dest); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	if string(got) != "archive bytes" {
		t.Errorf("export content = %q", got)
	}
	assertNoTempFiles(t, filepath.Dir(dest))
}

func TestExporter_CopyNeedsMatchingSource(t *testing.T) {
	doc := newSource(t, "Bolt.f3d", "archive bytes")
	e := NewExporter(map[cx.Format]Command{cx.FormatSTEP: {}})

	err := e.Export(context.Background(), doc, cx.FormatSTEP, filepath.Join(t.TempDir(), "Bolt.step"))
	if !errors.Is(err, cx.ErrUnsupportedFormat) {
		t.Errorf("Export() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExporter_RunsCommand(t *testing.T) {
	if _, err := exec.LookPath("cp"); err != nil {
		t.Skip("cp not available")
	}
	doc := newSource(t, "Bolt.f3d", "converted")
	e := NewExporter(map[cx.Format]Command{
		cx.FormatSTEP: {Argv: []string{"cp", InputPlaceholder, OutputPlaceholder}, Timeout: 10 * time.Second},
	})
	dest := filepath.Join(t.TempDir(), "Bolt.step")

	if err := e.Export(context.Background(), doc, cx.FormatSTEP, dest); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "converted" {
		t.Errorf("export content = %q", got)
	}
}

func TestExporter_CommandFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	doc := newSource(t, "Bolt.f3d", "x")
	e := NewExporter(map[cx.Format]Command{
		cx.FormatSTEP: {Argv: []string{"sh", "-c", "echo translator exploded >&2; exit 3"}},
	})
	dest := filepath.Join(t.TempDir(), "Bolt.step")

	err := e.Export(context.Background(), doc, cx.FormatSTEP, dest)
	if err == nil {
		t.Fatal("Export() error = nil for a failing command")
	}
	if !strings.Contains(err.Error(), "translator exploded") {
		t.Errorf("Export() error = %v, want command output included", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists after failure: %v", err)
	}
	assertNoTempFiles(t, filepath.Dir(dest))
}

func TestExporter_EmptyOutputRejected(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not available")
	}
	doc := newSource(t, "Bolt.f3d", "x")
	e := NewExporter(map[cx.Format]Command{cx.FormatSTEP: {Argv: []string{"true"}}})
	dest := filepath.Join(t.TempDir(), "Bolt.step")

	if err := e.Export(context.Background(), doc, cx.FormatSTEP, dest); err == nil {
		t.Error("Export() accepted a command that wrote nothing")
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Errorf("destination exists after failure: %v", err)
	}
}

func TestExporter_Timeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	doc := newSource(t, "Bolt.f3d", "x")
	e := NewExporter(map[cx.Format]Command{
		cx.FormatSTEP: {Argv: []string{"sleep", "5"}, Timeout: 50 * time.Millisecond},
	})

	start := time.Now()
	if err := e.Export(context.Background(), doc, cx.FormatSTEP, filepath.Join(t.TempDir(), "Bolt.step")); err == nil {
		t.Error("Export() error = nil after timeout")
	}
	if time.Since(start) > 4*time.Second {
		t.Error("Export() did not honour the timeout")
	}
}

func TestExporter_UnconfiguredFormat(t *testing.T) {
	doc := newSource(t, "Bolt.f3d", "x")
	e := NewExporter(map[cx.Format]Command{cx.FormatArchive: {}})

	err := e.Export(context.Background(), doc, cx.FormatSTEP, filepath.Join(t.TempDir(), "Bolt.step"))
	if !errors.Is(err, cx.ErrUnsupportedFormat) {
		t.Errorf("Export() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestExporter_NeedsLocalDocument(t *testing.T) {
	e := NewExporter(map[cx.Format]Command{cx.FormatArchive: {}})
	if err := e.Export(context.Background(), remoteDoc{}, cx.FormatArchive, filepath.Join(t.TempDir(), "x.f3d")); err == nil {
		t.Error("Export() accepted a document without a local source")
	}
}

func TestNewExporterFromConfig(t *testing.T) {
	e, err := NewExporterFromConfig(map[string]config.ConverterConfig{
		"STEP": {Command: []string{"conv", "{input}", "{output}"}, Timeout: "2m"},
		"f3d":  {},
	})
	if err != nil {
		t.Fatalf("NewExporterFromConfig() error = %v", err)
	}
	if got := e.Formats(); !reflect.DeepEqual(got, []cx.Format{cx.FormatArchive, cx.FormatSTEP}) {
		t.Errorf("Formats() = %v", got)
	}
	if e.commands[cx.FormatSTEP].Timeout != 2*time.Minute {
		t.Errorf("timeout = %v, want 2m", e.commands[cx.FormatSTEP].Timeout)
	}

	if _, err := NewExporterFromConfig(map[string]config.ConverterConfig{"obj": {}}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewExporterFromConfig(map[string]config.ConverterConfig{"step": {Timeout: "soon"}}); err == nil {
		t.Error("expected error for bad timeout")
	}
}

func TestExpand(t *testing.T) {
	got := Expand([]string{"conv", "--in={input}", "{output}", "-v"}, "/a b/in.f3d", "/out/x.step")
	want := []string{"conv", "--in=/a b/in.f3d", "/out/x.step", "-v"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expand() = %q, want %q", got, want)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}
