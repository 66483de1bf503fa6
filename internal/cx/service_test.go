package cx_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"cx-go/internal/cx"
	"cx-go/internal/testutil"
)

func TestRun_ScenarioSingleFile(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Demo").AddFolder("Parts").AddFile("Part A", "f3d", []byte("x"))

	got, err := f.svc.Run(context.Background(), f.context(cx.FormatArchive, cx.FormatSTEP), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != (cx.Counter{Saved: 2}) {
		t.Errorf("Run() = %v, want {Saved:2}", got)
	}
	for _, name := range []string{"Part A.f3d", "Part A.step"} {
		if _, err := os.Stat(filepath.Join(f.out, "Parts", name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
	if f.progress.Title != "Exporting from Demo Project" {
		t.Errorf("progress title = %q", f.progress.Title)
	}
	if f.progress.Max != 1 || !f.progress.DoneCalled {
		t.Errorf("progress max=%d done=%v, want 1/true", f.progress.Max, f.progress.DoneCalled)
	}
}

func TestRun_ScenarioForbiddenCharacters(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Demo").AddFolder("Parts").AddFile("Weird:Name", "f3d", []byte("x"))

	if _, err := f.svc.Run(context.Background(), f.context(cx.FormatSTEP), false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	stem := "Weird Name_" + testutil.SHA256Hex([]byte("Weird:Name"))[:8]
	if _, err := os.Stat(filepath.Join(f.out, "Parts", stem+".step")); err != nil {
		t.Errorf("expected sanitized export: %v", err)
	}
}

func TestRun_ScenarioCancelAfterFirstFolder(t *testing.T) {
	f := newFixture(t)
	project := f.lib.AddProject("Demo")
	first := project.AddFolder("First")
	first.AddFile("A", "f3d", []byte("x"))
	first.AddFile("B", "f3d", []byte("x"))
	deeper := first.AddFolder("Deeper")
	deeper.AddFile("C", "f3d", []byte("x"))
	deeper.AddFolder("Deepest").AddFile("D", "f3d", []byte("x"))
	project.AddFolder("Second").AddFile("E", "f3d", []byte("x"))

	f.progress.CancelAfter(1)

	got, err := f.svc.Run(context.Background(), f.context(cx.FormatSTEP), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != (cx.Counter{Saved: 2}) {
		t.Errorf("Run() = %v, want only the first folder's files {Saved:2}", got)
	}
	if n := len(f.exporter.Calls()); n != 2 {
		t.Errorf("exported %d files, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(f.out, "First", "Deeper")); !os.IsNotExist(err) {
		t.Errorf("deeper folder was written: %v", err)
	}
	if f.progress.Max != 4 {
		t.Errorf("progress max = %d, want 4 folders", f.progress.Max)
	}
	if !f.logger.Has("WARN", "run cancelled") {
		t.Error("cancellation was not logged")
	}
}

func TestRun_NoSelectedProject(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Other").AddFolder("Parts").AddFile("A", "f3d", []byte("x"))

	got, err := f.svc.Run(context.Background(), f.context(cx.FormatSTEP), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Run() = %v, want zero", got)
	}
	if !f.logger.Has("WARN", "no selected project found") {
		t.Error("missing project was not logged")
	}
	if f.progress.Shown {
		t.Error("progress shown for a run that found no project")
	}
	if _, err := os.Stat(f.out); err != nil {
		t.Errorf("output directory not created: %v", err)
	}
}

func TestRun_OnlyFirstSelectedProject(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Alpha").AddFolder("P").AddFile("A", "f3d", []byte("x"))
	f.lib.AddProject("Beta").AddFolder("P").AddFile("B", "f3d", []byte("x"))

	ec := cx.NewExportContext(f.out, []cx.Format{cx.FormatSTEP}, "Beta", "Alpha")
	got, err := f.svc.Run(context.Background(), ec, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got != (cx.Counter{Saved: 1}) {
		t.Errorf("Run() = %v, want {Saved:1}", got)
	}
	calls := f.exporter.Calls()
	if len(calls) != 1 || calls[0].Document != "A" {
		t.Errorf("exporter calls = %+v, want only Alpha's file", calls)
	}
	if !f.logger.Has("WARN", "ignoring additional selected project") {
		t.Error("additional project was not reported")
	}
}

func TestRun_OutputDirFailure(t *testing.T) {
	f := newFixture(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	ec := cx.NewExportContext(filepath.Join(blocker, "out"), cx.DefaultFormats, "Demo")
	if _, err := f.svc.Run(context.Background(), ec, false); err == nil {
		t.Error("Run() error = nil when the output directory cannot be created")
	}
}

type brokenHierarchy struct{}

func (brokenHierarchy) Projects(context.Context) ([]cx.Project, error) {
	return nil, errors.New("session expired")
}

func TestRun_HierarchyFailure(t *testing.T) {
	f := newFixture(t)
	svc := cx.NewService(brokenHierarchy{}, f.lib, f.exporter, nil, nil, testutil.FixedClock(), testutil.NewStubIDGenerator())
	if _, err := svc.Run(context.Background(), f.context(cx.FormatSTEP), false); err == nil {
		t.Error("Run() error = nil when projects cannot be listed")
	}
	if _, err := svc.ListProjects(context.Background()); err == nil {
		t.Error("ListProjects() error = nil")
	}
}

func TestRun_RecordsHistory(t *testing.T) {
	f := newFixture(t)
	history := testutil.NewTestHistory(t)
	f.svc.WithHistory(history)

	parts := f.lib.AddProject("Demo").AddFolder("Parts")
	parts.AddFileVersion("Bolt", "f3d", 4, []byte("x"))
	parts.AddFile("readme", "txt", []byte("x"))
	f.exporter.Fail("Bolt", cx.FormatArchive, errors.New("nope"))

	got, err := f.svc.Run(context.Background(), f.context(cx.FormatArchive, cx.FormatSTEP), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	runs, err := f.svc.GetHistory(10)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("GetHistory() returned %d runs, want 1", len(runs))
	}
	run := runs[0]
	if run.ID != "run-1" || run.Project != "Demo" || run.Status != cx.RunStatusSuccess {
		t.Errorf("run = %+v", run)
	}
	if run.Counter != got {
		t.Errorf("recorded counter = %v, want %v", run.Counter, got)
	}
	if run.FinishedAt == nil {
		t.Error("FinishedAt not recorded")
	}

	exports, err := history.ListExports("run-1")
	if err != nil {
		t.Fatalf("ListExports() error = %v", err)
	}
	var statuses []string
	for _, e := range exports {
		statuses = append(statuses, e.FileName+":"+string(e.Format)+":"+e.Status)
	}
	want := []string{"Bolt:f3d:errored", "Bolt:step:saved", "readme::skipped"}
	if !reflect.DeepEqual(statuses, want) {
		t.Errorf("exports = %v, want %v", statuses, want)
	}
	if exports[1].Version != 4 {
		t.Errorf("Version = %d, want 4", exports[1].Version)
	}
}

func TestRun_CancelledRunRecorded(t *testing.T) {
	f := newFixture(t)
	f.svc.WithHistory(testutil.NewTestHistory(t))
	f.lib.AddProject("Demo").AddFolder("Parts").AddFile("A", "f3d", []byte("x"))
	f.progress.Cancel()

	got, err := f.svc.Run(context.Background(), f.context(cx.FormatSTEP), false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !got.IsZero() {
		t.Errorf("Run() = %v, want zero", got)
	}
	runs, _ := f.svc.GetHistory(1)
	if len(runs) != 1 || runs[0].Status != cx.RunStatusCancelled {
		t.Errorf("runs = %+v, want one cancelled run", runs)
	}
}

func TestListProjects(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Alpha")
	f.lib.AddProject("Beta")

	got, err := f.svc.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("ListProjects() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Alpha", "Beta"}) {
		t.Errorf("ListProjects() = %v", got)
	}
}

func TestGetHistory_Disabled(t *testing.T) {
	f := newFixture(t)
	runs, err := f.svc.GetHistory(5)
	if err != nil || runs != nil {
		t.Errorf("GetHistory() = %v, %v; want nil, nil", runs, err)
	}
}

func TestWithSourceExtension(t *testing.T) {
	f := newFixture(t)
	f.svc.WithSourceExtension("step")
	file := f.lib.AddProject("Demo").AddFolder("Parts").AddFile("Bolt", "f3d", []byte("x"))

	got, err := f.svc.VisitFile(context.Background(), f.context(cx.FormatSTEP), file, false)
	if err != nil {
		t.Fatalf("VisitFile() error = %v", err)
	}
	if got != (cx.Counter{Skipped: 1}) {
		t.Errorf("VisitFile() = %v, want {Skipped:1}", got)
	}
}

func TestFindProject(t *testing.T) {
	f := newFixture(t)
	f.lib.AddProject("Alpha")

	got, err := f.svc.FindProject(context.Background(), "Alpha")
	if err != nil || got != "Alpha" {
		t.Errorf("FindProject(Alpha) = %q, %v", got, err)
	}
	if _, err := f.svc.FindProject(context.Background(), "Gamma"); !errors.Is(err, cx.ErrProjectNotFound) {
		t.Errorf("FindProject(Gamma) error = %v, want ErrProjectNotFound", err)
	}
}

// panickyProject blows up while its folders are being sized.
type panickyProject struct{}

func (panickyProject) Name() string { return "Demo" }
func (panickyProject) Folders(context.Context) ([]cx.Folder, error) {
	return []cx.Folder{panickyFolder{}}, nil
}

type panickyFolder struct{}

func (panickyFolder) Name() string                                 { return "Broken" }
func (panickyFolder) Files(context.Context) ([]cx.File, error)     { panic("host crashed") }
func (panickyFolder) Folders(context.Context) ([]cx.Folder, error) { return nil, nil }

type panickyHierarchy struct{}

func (panickyHierarchy) Projects(context.Context) ([]cx.Project, error) {
	return []cx.Project{panickyProject{}}, nil
}

func TestRun_PanicMarksRunErrored(t *testing.T) {
	f := newFixture(t)
	history := testutil.NewTestHistory(t)
	svc := cx.NewService(panickyHierarchy{}, f.lib, f.exporter, nil, nil, testutil.FixedClock(), testutil.NewStubIDGenerator()).WithHistory(history)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Run() did not re-panic")
			}
		}()
		svc.Run(context.Background(), f.context(cx.FormatSTEP), false)
	}()

	runs, err := history.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 1 || runs[0].Status != cx.RunStatusError {
		t.Errorf("runs = %+v, want one errored run", runs)
	}
}

// unfinishableHistory records runs but refuses to finish them.
type unfinishableHistory struct {
	cx.History
}

func (unfinishableHistory) FinishRun(string, string, cx.Counter, time.Time) error {
	return errors.New("database is locked")
}

func TestRun_PanicLogsHistoryFailure(t *testing.T) {
	f := newFixture(t)
	history := unfinishableHistory{History: testutil.NewTestHistory(t)}
	svc := cx.NewService(panickyHierarchy{}, f.lib, f.exporter, nil, f.logger, testutil.FixedClock(), testutil.NewStubIDGenerator()).WithHistory(history)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("Run() did not re-panic")
			}
		}()
		svc.Run(context.Background(), f.context(cx.FormatSTEP), false)
	}()

	if !f.logger.Has("WARN", "recording run finish") {
		t.Error("failure to record the errored run was not logged")
	}
}
