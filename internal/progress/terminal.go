// Package progress renders a run's progress on a terminal and turns Ctrl-C
// into a cooperative cancel request.
package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"golang.org/x/term"

	"cx-go/internal/cx"
)

// defaultWidth is used when the terminal size cannot be read.
const defaultWidth = 80

// Terminal is a cx.Progress writing to w. On a terminal it redraws a single
// status line in place; otherwise every message becomes its own line, which
// keeps redirected output readable.
type Terminal struct {
	w           io.Writer
	interactive bool
	width       int

	mu       sync.Mutex
	title    string
	min, max int
	value    int
	message  string

	cancelled atomic.Bool
}

var _ cx.Progress = (*Terminal)(nil)

// NewTerminal creates a Terminal writing to f, detecting whether f is a tty.
func NewTerminal(f *os.File) *Terminal {
	fd := int(f.Fd())
	t := &Terminal{w: f, width: defaultWidth}
	if term.IsTerminal(fd) {
		t.interactive = true
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			t.width = w
		}
	}
	return t
}

// NewPlain creates a non-interactive Terminal writing to w.
func NewPlain(w io.Writer) *Terminal {
	return &Terminal{w: w, width: defaultWidth}
}

func (t *Terminal) Show(title string, min, max int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if max < min {
		max = min
	}
	t.title, t.min, t.max, t.value = title, min, max, min
	color.New(color.FgCyan, color.Bold).Fprintln(t.w, title)
}

func (t *Terminal) SetMessage(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.message = msg
	t.render()
}

// Advance moves the bar forward, never past max.
func (t *Terminal) Advance(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value += n
	if t.value > t.max {
		t.value = t.max
	}
	if t.interactive {
		t.render()
	}
}

func (t *Terminal) Cancelled() bool {
	return t.cancelled.Load()
}

// Cancel requests that the run stop at the next folder.
func (t *Terminal) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.interactive {
			fmt.Fprintln(t.w)
		}
		color.New(color.FgYellow).Fprintln(t.w, "Cancelling after the current folder...")
	}
}

func (t *Terminal) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.interactive {
		fmt.Fprintln(t.w)
	}
}

// Percent is the completed share of the range, 0 to 100.
func (t *Terminal) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent()
}

func (t *Terminal) percent() int {
	if t.max <= t.min {
		return 100
	}
	return (t.value - t.min) * 100 / (t.max - t.min)
}

// render writes the status line. Caller holds t.mu.
func (t *Terminal) render() {
	line := fmt.Sprintf("[%3d%%] %s", t.percent(), t.message)
	if !t.interactive {
		fmt.Fprintln(t.w, line)
		return
	}
	runes := []rune(line)
	if len(runes) > t.width-1 {
		runes = runes[:t.width-1]
	}
	fmt.Fprintf(t.w, "\r%s%s", string(runes), strings.Repeat(" ", t.width-1-len(runes)))
}

// WatchInterrupt cancels t on the first SIGINT. A second SIGINT gets the
// default behaviour and kills the process. The returned func stops watching.
func WatchInterrupt(ctx context.Context, t *Terminal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})

	go func() {
		select {
		case <-ch:
			signal.Stop(ch)
			t.Cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
