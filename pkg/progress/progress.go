// Package progress provides the handle through which a build reports its
// progress and is cooperatively canceled.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ErrCanceled is returned when a build stops because its progress handle
// was canceled
var ErrCanceled = fmt.Errorf("build canceled: %w", context.Canceled)

// Progress receives progress reports and is polled for cancellation
// between task executions
type Progress interface {
	// BeginTask starts a unit of work with the given amount of steps
	BeginTask(name string, work int)

	// Worked reports n finished steps
	Worked(n int)

	// Done ends the current unit of work
	Done()

	// Canceled reports whether the caller asked the build to stop
	Canceled() bool
}

// Null ignores every report and is never canceled
type Null struct{}

func (Null) BeginTask(string, int) {}
func (Null) Worked(int)            {}
func (Null) Done()                 {}
func (Null) Canceled() bool        { return false }

// Cancelable wraps a Progress and can be canceled from any goroutine
type Cancelable struct {
	Progress
	canceled atomic.Bool
}

// NewCancelable wraps p. A nil p reports nothing.
func NewCancelable(p Progress) *Cancelable {
	if p == nil {
		p = Null{}
	}
	return &Cancelable{Progress: p}
}

// Cancel asks the build to stop before the next task
func (c *Cancelable) Cancel() {
	c.canceled.Store(true)
}

// Canceled reports whether Cancel was called or the wrapped handle is canceled
func (c *Cancelable) Canceled() bool {
	return c.canceled.Load() || c.Progress.Canceled()
}

// Printer writes a line per unit of work and per finished step
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	name  string
	total int
	done  int
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) BeginTask(name string, work int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name, p.total, p.done = name, work, 0
	fmt.Fprintf(p.w, "%s (%d)\n", name, work)
}

func (p *Printer) Worked(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done += n
	fmt.Fprintf(p.w, "%s %d/%d\n", p.name, p.done, p.total)
}

func (p *Printer) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "%s done\n", p.name)
}

func (p *Printer) Canceled() bool { return false }
