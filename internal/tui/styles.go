package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/jpalmerr/blockyswitch/internal/indicator"
)

// Colors using AdaptiveColor for light/dark terminal support.
var (
	colorDim    = lipgloss.AdaptiveColor{Light: "242", Dark: "240"}
	colorGreen  = lipgloss.AdaptiveColor{Light: "28", Dark: "40"}
	colorRed    = lipgloss.AdaptiveColor{Light: "160", Dark: "196"}
	colorYellow = lipgloss.AdaptiveColor{Light: "136", Dark: "220"}
)

// Row layout: a fixed label column inside a bordered, padded frame.
const (
	labelWidth    = 10
	frameOverhead = 6
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(colorDim).Width(labelWidth)
	dimStyle   = lipgloss.NewStyle().Foreground(colorDim)
	warnStyle  = lipgloss.NewStyle().Foreground(colorYellow)
	errorStyle = lipgloss.NewStyle().Foreground(colorRed)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(1, 2)
)

// Badge styles, matching the tray badge colours.
var (
	badgeOnStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color(indicator.ColorForeground)).
			Background(lipgloss.Color(indicator.ColorOn))

	badgeOffStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color(indicator.ColorForeground)).
			Background(lipgloss.Color(indicator.ColorOff))

	badgeUnknownStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(colorDim)
)

// Connection dot styles.
var (
	dotConnectedStyle    = lipgloss.NewStyle().Foreground(colorGreen)
	dotNotConnectedStyle = lipgloss.NewStyle().Foreground(colorRed)
)
