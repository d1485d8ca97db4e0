// Package tray shows the blocking badge in the system tray.
package tray

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

// Controls are the actions offered by the tray menu.
type Controls interface {
	Toggle(enabled bool)
	Refresh()
	RequestShutdown()
}

// Sink is an [indicator.Sink] backed by the system tray. Badges shown before
// the tray is ready are held and applied once it is.
type Sink struct {
	controls Controls
	logger   *slog.Logger

	mu      sync.Mutex
	ready   bool
	pending *view

	statusItem  *systray.MenuItem
	hostItem    *systray.MenuItem
	enableItem  *systray.MenuItem
	disableItem *systray.MenuItem
	refreshItem *systray.MenuItem
	quitItem    *systray.MenuItem
}

type view struct {
	badge indicator.Badge
	state store.State
}

// New creates a tray sink. Nothing is displayed until [Sink.Run].
func New(controls Controls, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{controls: controls, logger: logger}
}

// Run starts the tray. It blocks the calling goroutine, which must be the
// main one. onStart runs once the tray is ready; onExit after it quits.
func (s *Sink) Run(onStart, onExit func()) {
	systray.Run(func() {
		s.onReady()
		if onStart != nil {
			onStart()
		}
	}, func() {
		if onExit != nil {
			onExit()
		}
	})
}

// Quit closes the tray, making [Sink.Run] return.
func (s *Sink) Quit() {
	systray.Quit()
}

// Show implements [indicator.Sink].
func (s *Sink) Show(badge indicator.Badge, state store.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		s.pending = &view{badge: badge, state: state}
		return nil
	}
	s.apply(badge, state)
	return nil
}

func (s *Sink) onReady() {
	systray.SetTitle("")
	systray.SetTooltip("blockyswitch")

	header := systray.AddMenuItem("blockyswitch", "")
	header.Disable()

	s.mu.Lock()
	s.statusItem = systray.AddMenuItem("Blocking: unknown", "")
	s.statusItem.Disable()
	s.hostItem = systray.AddMenuItem("No host configured", "")
	s.hostItem.Disable()

	systray.AddSeparator()

	s.enableItem = systray.AddMenuItem("Enable blocking", "Turn blocking on")
	s.disableItem = systray.AddMenuItem("Disable blocking", "Turn blocking off")
	s.refreshItem = systray.AddMenuItem("Refresh", "Check the status now")

	systray.AddSeparator()

	s.quitItem = systray.AddMenuItem("Quit", "Stop the daemon")

	s.ready = true
	if s.pending != nil {
		s.apply(s.pending.badge, s.pending.state)
		s.pending = nil
	}
	s.mu.Unlock()

	go s.handleClicks()
}

// apply must be called with mu held.
func (s *Sink) apply(badge indicator.Badge, state store.State) {
	systray.SetTitle(badge.Text)
	systray.SetTooltip(formatTooltip(state))
	s.statusItem.SetTitle(statusTitle(state.Status))
	s.hostItem.SetTitle(hostTitle(state.Host))

	switch state.Status {
	case store.StatusEnabled:
		s.enableItem.Disable()
		s.disableItem.Enable()
	case store.StatusDisabled:
		s.enableItem.Enable()
		s.disableItem.Disable()
	default:
		s.enableItem.Enable()
		s.disableItem.Enable()
	}
}

func (s *Sink) handleClicks() {
	for {
		select {
		case <-s.enableItem.ClickedCh:
			s.logger.Debug("tray: enable clicked")
			go s.controls.Toggle(true)
		case <-s.disableItem.ClickedCh:
			s.logger.Debug("tray: disable clicked")
			go s.controls.Toggle(false)
		case <-s.refreshItem.ClickedCh:
			go s.controls.Refresh()
		case <-s.quitItem.ClickedCh:
			s.controls.RequestShutdown()
			return
		}
	}
}

func statusTitle(status store.Status) string {
	switch status {
	case store.StatusEnabled:
		return "Blocking: ON"
	case store.StatusDisabled:
		return "Blocking: OFF"
	default:
		return "Blocking: unknown"
	}
}

func hostTitle(host string) string {
	if host == "" {
		return "No host configured"
	}
	return "Host: " + host
}

func formatTooltip(state store.State) string {
	if state.Host == "" {
		return "blockyswitch: no host configured"
	}
	if state.LastRefresh.IsZero() {
		return fmt.Sprintf("blockyswitch: %s (%s)", statusTitle(state.Status), state.Host)
	}
	return fmt.Sprintf("blockyswitch: %s (%s), updated %s",
		statusTitle(state.Status), state.Host, state.LastRefresh.Local().Format(time.TimeOnly))
}
