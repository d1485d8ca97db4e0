// Package tui implements the interactive terminal UI: a host field, the
// blocking toggle and a connection indicator.
package tui

import (
	"context"
	"errors"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jpalmerr/blockyswitch/internal/controller"
)

// ProgramRef is a shared reference to the tea.Program for goroutine sends.
// It is set after tea.NewProgram but before p.Run().
type ProgramRef struct {
	mu sync.Mutex
	p  *tea.Program
}

// NewProgramRef returns an empty reference. Sends are dropped until the
// program is running.
func NewProgramRef() *ProgramRef {
	return &ProgramRef{}
}

func (r *ProgramRef) set(p *tea.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = p
}

// Send delivers msg to the program, if any.
func (r *ProgramRef) Send(msg tea.Msg) {
	r.mu.Lock()
	p := r.p
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Observe forwards a controller view. Pass it to [controller.WithObserver].
func (r *ProgramRef) Observe(v controller.View) {
	r.Send(ViewMsg{View: v})
}

// clear nils out the program reference, preventing post-exit sends.
func (r *ProgramRef) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.p = nil
}

// Run shows the UI until the user quits or ctx is done.
func Run(ctx context.Context, ctrl Controls, ref *ProgramRef) error {
	p := tea.NewProgram(
		NewModel(ctx, ctrl),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	ref.set(p)
	defer ref.clear()

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
