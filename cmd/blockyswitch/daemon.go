package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/blockyswitch"
	"github.com/jpalmerr/blockyswitch/config"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
	"github.com/jpalmerr/blockyswitch/internal/tray"
)

const (
	shutdownTimeout = 10 * time.Second
)

// daemonCmd runs the background side: polling, badge and control API.
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Poll the host, show the badge and serve the control API",
	Long: `Run the blockyswitch daemon.

The daemon will:
  - Restore the last known status and show it as a badge
  - Check the remote host every poll_interval (30s by default)
  - Serve the local control API used by "ui", "status", "enable" and friends

The badge goes to the console, the system tray or nowhere depending on the
"indicator" config key. The daemon runs until interrupted (Ctrl+C), SIGTERM,
or "Quit" from the tray menu.

Example:
  blockyswitch daemon
  blockyswitch daemon --config /etc/blockyswitch/config.yaml`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newJSONLogger(cfg.SlogLevel())

	logger.Info("config loaded",
		"host", cfg.Host,
		"indicator", cfg.Indicator,
		"state_backend", cfg.State.Backend,
		"state_path", cfg.State.Path,
	)

	opts := config.SwitchOptions(cfg, logger)
	opts = append(opts, blockyswitch.WithIndicator(indicator.NewLogSink(logger)))

	var controls *switchControls
	var traySink *tray.Sink
	switch cfg.Indicator {
	case config.IndicatorConsole:
		opts = append(opts, blockyswitch.WithIndicator(indicator.NewConsoleSink(nil)))
	case config.IndicatorTray:
		controls = &switchControls{}
		traySink = tray.New(controls, logger)
		opts = append(opts, blockyswitch.WithIndicator(traySink))
	}

	sw, err := blockyswitch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create switch: %w", err)
	}

	ctx := cmd.Context()
	if traySink == nil {
		return serve(ctx, sw, logger)
	}

	// the tray must own the main goroutine; the switch runs beside it
	controls.set(sw)
	errChan := make(chan error, 1)
	traySink.Run(func() {
		go func() {
			errChan <- serve(ctx, sw, logger)
			traySink.Quit()
		}()
	}, nil)

	select {
	case err := <-errChan:
		return err
	case <-time.After(shutdownTimeout):
		return nil
	}
}

// serve runs sw until ctx is cancelled, bounding the graceful shutdown.
func serve(ctx context.Context, sw *blockyswitch.Switch, logger *slog.Logger) error {
	// start switch - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- sw.Run(ctx)
	}()

	// wait for switch to finish
	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("daemon error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("daemon error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}

// switchControls forwards tray menu actions to a switch created after the
// tray sink it is handed to.
type switchControls struct {
	mu sync.Mutex
	sw *blockyswitch.Switch
}

func (c *switchControls) set(sw *blockyswitch.Switch) {
	c.mu.Lock()
	c.sw = sw
	c.mu.Unlock()
}

func (c *switchControls) get() *blockyswitch.Switch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sw
}

func (c *switchControls) Toggle(enabled bool) {
	if sw := c.get(); sw != nil {
		sw.Toggle(enabled)
	}
}

func (c *switchControls) Refresh() {
	if sw := c.get(); sw != nil {
		sw.Refresh()
	}
}

func (c *switchControls) RequestShutdown() {
	if sw := c.get(); sw != nil {
		sw.RequestShutdown()
	}
}
