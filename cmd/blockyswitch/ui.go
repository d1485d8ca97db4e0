package main

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jpalmerr/blockyswitch/internal/controller"
	"github.com/jpalmerr/blockyswitch/internal/tui"
)

// uiCmd opens the interactive terminal UI.
var uiCmd = &cobra.Command{
	Use:   "ui",
	Short: "Open the interactive terminal UI",
	Long: `Open the interactive terminal UI: edit the host, flip blocking on and off,
and watch the connection to the host.

The cached status is shown at once and checked in the background. With the
daemon running the UI follows its state; otherwise it checks the host itself
every ui_refresh_interval (5s by default).

Logs go to ~/.blockyswitch/ui.log.`,
	Args: cobra.NoArgs,
	RunE: runUI,
}

func init() {
	rootCmd.AddCommand(uiCmd)
}

// errNoTerminal is returned when ui is not attached to a terminal.
var errNoTerminal = errors.New("ui needs an interactive terminal; use \"status\" or \"watch\" instead")

func runUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNoTerminal
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := newFileLogger("ui.log", cfg.SlogLevel())
	defer closeLog()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	ref := tui.NewProgramRef()
	s, err := openSession(ctx, cfg, logger, controller.WithObserver(ref.Observe))
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.ctrl.Load(ctx); err != nil {
		logger.Warn("failed to read cached state", "error", err)
	}
	logger.Info("ui started", "daemon", s.remote, "host", s.ctrl.View().Host)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.ctrl.Run(ctx); err != nil {
			logger.Warn("background refresh stopped", "error", err)
		}
	}()

	err = tui.Run(ctx, s.ctrl, ref)
	cancel()
	<-done
	return err
}
