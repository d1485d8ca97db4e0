package indicator

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/jpalmerr/blockyswitch/internal/store"
)

// ConsoleSink prints a coloured line for every badge change.
type ConsoleSink struct {
	mu   sync.Mutex
	out  io.Writer
	last *Badge

	on, off, unknown *color.Color
}

// NewConsoleSink writes to out, or to color.Output when out is nil.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	if out == nil {
		out = color.Output
	}
	return &ConsoleSink{
		out:     out,
		on:      color.New(color.FgHiWhite, color.BgGreen, color.Bold),
		off:     color.New(color.FgHiWhite, color.BgRed, color.Bold),
		unknown: color.New(color.FgHiBlack),
	}
}

// DisableColor strips escape codes from the output.
func (c *ConsoleSink) DisableColor() {
	c.on.DisableColor()
	c.off.DisableColor()
	c.unknown.DisableColor()
}

// Show prints the badge if it differs from the last one printed.
func (c *ConsoleSink) Show(badge Badge, state store.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.last != nil && *c.last == badge {
		return nil
	}
	c.last = &badge

	var label string
	switch {
	case badge.Background == ColorOn:
		label = c.on.Sprintf(" %s ", badge.Text)
	case badge.Background == ColorOff:
		label = c.off.Sprintf(" %s ", badge.Text)
	default:
		label = c.unknown.Sprint("unknown")
	}

	host := state.Host
	if host == "" {
		host = "(no host)"
	}

	_, err := fmt.Fprintf(c.out, "%s blocking %s  %s\n", state.LastRefresh.Local().Format(time.TimeOnly), label, host)
	return err
}

// LogSink records badge changes in the log only.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Show logs the badge at debug level.
func (l *LogSink) Show(badge Badge, state store.State) error {
	l.logger.Debug("badge", "text", badge.Text, "background", badge.Background, "host", state.Host)
	return nil
}
