// Package converter implements cx.ExportService on top of local files.
//
// The native archive format is produced by copying the source file. Every
// other format is produced by an external command; cx itself never touches
// geometry.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"cx-go/internal/config"
	"cx-go/internal/cx"
)

// Placeholders substituted in a command template.
const (
	InputPlaceholder  = "{input}"
	OutputPlaceholder = "{output}"
)

// maxOutput bounds how much command output is kept for error messages.
const maxOutput = 4096

// LocalDocument is a document whose source is available as a local file.
// Every library in this module hands out documents of this kind.
type LocalDocument interface {
	cx.Document
	LocalPath() string
}

// Command produces one format. An empty Argv means copy the source.
type Command struct {
	Argv    []string
	Timeout time.Duration
}

// Exporter writes documents through per-format commands.
type Exporter struct {
	commands map[cx.Format]Command
}

// NewExporter creates an Exporter for the given formats.
func NewExporter(commands map[cx.Format]Command) *Exporter {
	cp := make(map[cx.Format]Command, len(commands))
	for f, c := range commands {
		cp[f] = c
	}
	return &Exporter{commands: cp}
}

// NewExporterFromConfig builds an Exporter from the [converters] table.
func NewExporterFromConfig(cfg map[string]config.ConverterConfig) (*Exporter, error) {
	commands := make(map[cx.Format]Command, len(cfg))
	for tag, cc := range cfg {
		format, err := cx.ParseFormat(tag)
		if err != nil {
			return nil, fmt.Errorf("converter %q: %w", tag, err)
		}
		var timeout time.Duration
		if cc.Timeout != "" {
			timeout, err = time.ParseDuration(cc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("converter %q: parsing timeout: %w", tag, err)
			}
		}
		commands[format] = Command{Argv: cc.Command, Timeout: timeout}
	}
	return NewExporter(commands), nil
}

// Formats returns the formats this Exporter can write.
func (e *Exporter) Formats() []cx.Format {
	var out []cx.Format
	for _, f := range cx.AllFormats {
		if _, ok := e.commands[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Export writes doc to destPath. The destination only appears once it is
// complete: output goes to a temp file in the same directory, then renamed.
func (e *Exporter) Export(ctx context.Context, doc cx.Document, format cx.Format, destPath string) error {
	local, ok := doc.(LocalDocument)
	if !ok {
		return fmt.Errorf("document %s has no local source", doc.Name())
	}
	cmd, ok := e.commands[format]
	if !ok {
		return fmt.Errorf("%w: no converter configured for %s", cx.ErrUnsupportedFormat, format)
	}

	src := local.LocalPath()
	if len(cmd.Argv) == 0 {
		if !strings.EqualFold(strings.TrimPrefix(filepath.Ext(src), "."), format.Extension()) {
			return fmt.Errorf("%w: %s needs a command, source is %s", cx.ErrUnsupportedFormat, format, filepath.Ext(src))
		}
		return atomicWrite(destPath, func(tmpPath string) error {
			return copyFile(src, tmpPath)
		})
	}

	return atomicWrite(destPath, func(tmpPath string) error {
		return runCommand(ctx, cmd, src, tmpPath)
	})
}

// atomicWrite lets produce write a temp file next to destPath, then renames
// it into place.
func atomicWrite(destPath string, produce func(tmpPath string) error) error {
	dir := filepath.Dir(destPath)
	tmp, err := os.CreateTemp(dir, ".tmp-*"+filepath.Ext(destPath))
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := produce(tmpPath); err != nil {
		return err
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("converter produced no output: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("converter produced an empty file")
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("opening destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing destination: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, cmd Command, input, output string) error {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	argv := Expand(cmd.Argv, input, output)
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	if err := c.Run(); err != nil {
		msg := strings.TrimSpace(out.String())
		if len(msg) > maxOutput {
			msg = msg[len(msg)-maxOutput:]
		}
		if msg == "" {
			return fmt.Errorf("running %s: %w", argv[0], err)
		}
		return fmt.Errorf("running %s: %w: %s", argv[0], err, msg)
	}
	return nil
}

// Expand substitutes the placeholders in every argument.
func Expand(argv []string, input, output string) []string {
	r := strings.NewReplacer(InputPlaceholder, input, OutputPlaceholder, output)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}

// Compile-time check that Exporter implements cx.ExportService
var _ cx.ExportService = (*Exporter)(nil)
