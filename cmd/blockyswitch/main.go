// Package main is the entry point for the blockyswitch CLI.
//
// blockyswitch can be embedded as a library (SDK) or run as this binary,
// configured from ~/.blockyswitch/config.yaml.
//
// Usage:
//
//	blockyswitch daemon            # Poll, show the badge, serve the control API
//	blockyswitch ui                # Interactive terminal UI
//	blockyswitch status            # Check and print the blocking status
//	blockyswitch enable | disable  # Flip the remote switch
//	blockyswitch host [url]        # Show or set the remote host
//	blockyswitch watch             # Stream state changes from the daemon
//	blockyswitch validate          # Validate configuration
//	blockyswitch version           # Show version info
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "blockyswitch",
	Short: "Keep a remote DNS blocking switch in sync",
	Long: `blockyswitch keeps a cached view of a remote "blocking enabled" switch
fresh and lets you flip it from the terminal or the system tray.

The daemon polls the host every 30 seconds, shows the status as a badge and
serves a local control API. The terminal UI and the one-shot commands use the
daemon when it is running and talk to the host directly otherwise.

Quick start:
  1. Run: blockyswitch host http://pi.hole:4000
  2. Run: blockyswitch daemon
  3. In another terminal: blockyswitch ui

Example config (~/.blockyswitch/config.yaml):
  host: http://pi.hole:4000
  poll_interval: 30s
  indicator: tray
  state:
    backend: sqlite`,
	SilenceUsage: true,
	// No Run/RunE means this just shows help when called without subcommands
}

// Execute runs the root command with a context cancelled on SIGINT/SIGTERM.
// This is the main entry point called from main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this blockyswitch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "blockyswitch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file (default ~/.blockyswitch/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override log_level: debug, info, warn or error")

	// Register subcommands with root
	rootCmd.AddCommand(versionCmd)
}
