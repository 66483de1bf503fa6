package testutil

import (
	"sync"

	"cx-go/internal/cx"
)

// StubProgress records what a run reports and can simulate the user
// pressing cancel.
type StubProgress struct {
	mu          sync.Mutex
	Title       string
	Min, Max    int
	Value       int
	Messages    []string
	Shown       bool
	DoneCalled  bool
	cancelled   bool
	cancelAfter int // cancel once Value reaches it; 0 disables
}

var _ cx.Progress = (*StubProgress)(nil)

func NewStubProgress() *StubProgress {
	return &StubProgress{}
}

// Cancel sets the cancel flag immediately.
func (p *StubProgress) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
}

// CancelAfter sets the cancel flag once n units have been advanced.
func (p *StubProgress) CancelAfter(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelAfter = n
}

func (p *StubProgress) Show(title string, min, max int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Title, p.Min, p.Max, p.Value = title, min, max, min
	p.Shown = true
}

func (p *StubProgress) SetMessage(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages = append(p.Messages, msg)
}

func (p *StubProgress) Advance(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Value += n
	if p.cancelAfter > 0 && p.Value >= p.cancelAfter {
		p.cancelled = true
	}
}

func (p *StubProgress) Cancelled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelled
}

func (p *StubProgress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.DoneCalled = true
}

// HasMessage reports whether msg was ever set.
func (p *StubProgress) HasMessage(msg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, m := range p.Messages {
		if m == msg {
			return true
		}
	}
	return false
}
