package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/blockyswitch/internal/transport"
)

// statusCmd checks the remote status once and prints it.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check and print the blocking status",
	Long: `Check the remote blocking status once and print it.

When the daemon is running the result is shared with it; otherwise the
persisted state is updated directly.

Exit codes:
  0 - The host answered
  1 - The check failed (the last known status is still printed)`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

// enableCmd turns blocking on.
var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Turn blocking on",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToggle(cmd, true)
	},
}

// disableCmd turns blocking off.
var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Turn blocking off",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runToggle(cmd, false)
	},
}

// hostCmd shows or sets the remote host.
var hostCmd = &cobra.Command{
	Use:   "host [url]",
	Short: "Show or set the remote host",
	Long: `Show the configured remote host, or set it and check it at once.

A host that does not start with http:// or https:// is saved but flagged.

Example:
  blockyswitch host
  blockyswitch host http://pi.hole:4000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHost,
}

func init() {
	rootCmd.AddCommand(statusCmd, enableCmd, disableCmd, hostCmd)
}

// withSession loads the config, opens a session and its cached view, then
// calls fn.
func withSession(cmd *cobra.Command, fn func(s *session) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newTextLogger(cmd.ErrOrStderr(), cfg.SlogLevel())

	s, err := openSession(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.ctrl.Load(cmd.Context()); err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	return fn(s)
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		res := s.ctrl.Refresh(cmd.Context())
		printView(cmd.OutOrStdout(), s.ctrl.View(), s.remote)
		if !res.OK {
			return fmt.Errorf("status check failed: %s", res.Error())
		}
		return nil
	})
}

func runToggle(cmd *cobra.Command, want bool) error {
	action := "disable"
	if want {
		action = "enable"
	}
	return withSession(cmd, func(s *session) error {
		res := s.ctrl.Toggle(cmd.Context(), want)
		printView(cmd.OutOrStdout(), s.ctrl.View(), s.remote)
		if !res.OK {
			if res.Err != nil && res.Err.Kind == transport.KindNoHost {
				return fmt.Errorf("%s failed: no host configured, run \"blockyswitch host <url>\" first", action)
			}
			return fmt.Errorf("%s failed: %s", action, res.Error())
		}
		return nil
	})
}

func runHost(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(s *session) error {
		if len(args) == 0 {
			v := s.ctrl.View()
			if v.Host == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "(not set)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.Host)
			return nil
		}

		if _, err := s.ctrl.SetHost(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to save host: %w", err)
		}
		printView(cmd.OutOrStdout(), s.ctrl.View(), s.remote)
		return nil
	})
}
