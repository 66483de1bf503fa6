package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"cx-go/internal/cx"
)

// ExportCall records one call to MockExporter.Export.
type ExportCall struct {
	Document string
	Format   cx.Format
	Path     string
}

// MockExporter writes a small marker file for every export and records the
// call. Failures and panics can be injected per (document, format).
type MockExporter struct {
	mu     sync.Mutex
	calls  []ExportCall
	fail   map[string]error
	panics map[string]bool
}

var _ cx.ExportService = (*MockExporter)(nil)

func NewMockExporter() *MockExporter {
	return &MockExporter{
		fail:   make(map[string]error),
		panics: make(map[string]bool),
	}
}

func exportKey(doc string, format cx.Format) string {
	return doc + "\x00" + string(format)
}

// Fail makes exports of doc as format return err.
func (m *MockExporter) Fail(doc string, format cx.Format, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[exportKey(doc, format)] = err
}

// Panic makes exports of doc as format panic.
func (m *MockExporter) Panic(doc string, format cx.Format) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[exportKey(doc, format)] = true
}

func (m *MockExporter) Export(_ context.Context, doc cx.Document, format cx.Format, destPath string) error {
	m.mu.Lock()
	key := exportKey(doc.Name(), format)
	m.calls = append(m.calls, ExportCall{Document: doc.Name(), Format: format, Path: destPath})
	err, shouldPanic := m.fail[key], m.panics[key]
	m.mu.Unlock()

	if shouldPanic {
		panic(fmt.Sprintf("exporter crashed on %s", doc.Name()))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte(fmt.Sprintf("%s as %s\n", doc.Name(), format)), 0o644)
}

// Calls returns a copy of the recorded calls in order.
func (m *MockExporter) Calls() []ExportCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExportCall(nil), m.calls...)
}
