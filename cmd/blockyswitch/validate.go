package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// validateCmd validates a config file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file",
	Long: `Validate the blockyswitch configuration file without starting the daemon.

This command parses the YAML, expands environment variables, applies
defaults and validates all fields.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  blockyswitch validate
  blockyswitch validate --config /etc/blockyswitch/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	host := cfg.Host
	if host == "" {
		host = "(from state)"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Host:          %s\n", host)
	fmt.Fprintf(out, "  Listen:        %s\n", cfg.Listen)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  Indicator:     %s\n", cfg.Indicator)
	fmt.Fprintf(out, "  State:         %s (%s)\n", cfg.State.Path, cfg.State.Backend)

	return nil
}
