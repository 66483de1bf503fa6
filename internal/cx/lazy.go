package cx

import (
	"context"
	"errors"
	"fmt"
)

// ErrDocumentNotOpen is returned by LazyDocument.Design before Open succeeded.
var ErrDocumentNotOpen = errors.New("document is not open")

// LazyDocument defers loading a file until the first export needs it, so a
// file that is skipped never pays for an open.
//
// States: unopened -> open -> closed. Open is a no-op once open, Close is a
// no-op unless open, and a closed handle stays closed.
type LazyDocument struct {
	docs   DocumentService
	file   File
	logger Logger

	doc    Document
	closed bool
}

// NewLazyDocument wraps file without opening it.
func NewLazyDocument(docs DocumentService, file File, logger Logger) *LazyDocument {
	return &LazyDocument{docs: docs, file: file, logger: logger}
}

// Open loads and activates the document if that has not happened yet.
func (d *LazyDocument) Open(ctx context.Context) error {
	if d.doc != nil {
		return nil
	}
	if d.closed {
		return fmt.Errorf("opening %s: handle already closed", d.file.Name())
	}

	d.logger.Info("opening document", "file", d.file.Name())
	doc, err := d.docs.Open(ctx, d.file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", d.file.Name(), err)
	}

	if err := d.docs.Activate(ctx, doc); err != nil {
		if cerr := d.docs.Close(doc, false); cerr != nil {
			d.logger.Warn("discarding document after failed activation", "file", d.file.Name(), "error", cerr)
		}
		return fmt.Errorf("activating %s: %w", d.file.Name(), err)
	}
	d.doc = doc
	return nil
}

// Close discards the loaded document without saving.
func (d *LazyDocument) Close() error {
	if d.doc == nil {
		return nil
	}
	d.logger.Info("closing document", "file", d.file.Name())
	doc := d.doc
	d.doc = nil
	d.closed = true
	if err := d.docs.Close(doc, false); err != nil {
		return fmt.Errorf("closing %s: %w", d.file.Name(), err)
	}
	return nil
}

// Design returns the loaded document. It fails with ErrDocumentNotOpen
// unless Open has succeeded and Close has not been called.
func (d *LazyDocument) Design() (Document, error) {
	if d.doc == nil {
		return nil, fmt.Errorf("%s: %w", d.file.Name(), ErrDocumentNotOpen)
	}
	return d.doc, nil
}

// IsOpen reports whether the document is currently loaded.
func (d *LazyDocument) IsOpen() bool {
	return d.doc != nil
}
