package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/store"
)

var (
	labelStyle = lipgloss.NewStyle().Width(10).Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"})

	badgeOnStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color(indicator.ColorForeground)).
			Background(lipgloss.Color(indicator.ColorOn))
	badgeOffStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1).
			Foreground(lipgloss.Color(indicator.ColorForeground)).
			Background(lipgloss.Color(indicator.ColorOff))
)

// renderStatus returns the status as a coloured badge.
func renderStatus(s store.Status) string {
	switch s {
	case store.StatusEnabled:
		return badgeOnStyle.Render("ON")
	case store.StatusDisabled:
		return badgeOffStyle.Render("OFF")
	default:
		return mutedStyle.Render("unknown")
	}
}

// printView writes a controller view as labelled lines.
func printView(w io.Writer, v controller.View, remote bool) {
	host := v.Host
	if host == "" {
		host = mutedStyle.Render("(not set)")
	}
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Host"), host)
	if !v.HostValid {
		fmt.Fprintf(w, "%s%s\n", labelStyle.Render(""), warnStyle.Render("host must start with http:// or https://"))
	}

	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Blocking"), renderStatus(v.Status))

	conn := v.Connection.String()
	if v.Err != "" {
		conn += mutedStyle.Render(" (" + v.Err + ")")
	}
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Remote"), conn)

	updated := "never"
	if !v.LastRefresh.IsZero() {
		updated = v.LastRefresh.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Updated"), updated)

	via := "standalone"
	if remote {
		via = "daemon"
	}
	fmt.Fprintf(w, "%s%s\n", labelStyle.Render("Via"), mutedStyle.Render(via))
}

// printEvent writes one store event as a single line.
func printEvent(w io.Writer, ev store.Event) {
	at := ev.At.Local().Format(time.TimeOnly)
	switch ev.Kind {
	case store.EventCheck:
		if ev.Connected {
			fmt.Fprintf(w, "%s check  connected\n", at)
		} else {
			fmt.Fprintf(w, "%s check  %s\n", at, warnStyle.Render("failed: "+ev.Error))
		}
	case store.EventHost:
		fmt.Fprintf(w, "%s host   %s\n", at, ev.State.Host)
	default:
		fmt.Fprintf(w, "%s state  %s %s\n", at, renderStatus(ev.State.Status), mutedStyle.Render(ev.State.Host))
	}
}
