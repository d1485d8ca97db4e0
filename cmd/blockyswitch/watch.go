package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/blockyswitch/internal/store"
)

// watchCmd streams state changes from the daemon.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream state changes from the daemon",
	Long: `Print every state change of a running daemon as it happens, starting with
the current state. Runs until interrupted (Ctrl+C).`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	err = streamEvents(cmd.Context(), "http://"+cfg.Listen+"/api/sse", func(ev store.Event) {
		printEvent(cmd.OutOrStdout(), ev)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// streamEvents reads the daemon's Server-Sent Events stream at url and calls
// fn for each event until ctx is done or the stream ends.
func streamEvents(ctx context.Context, url string, fn func(store.Event)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("daemon not reachable (is \"blockyswitch daemon\" running?): %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev store.Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}
		fn(ev)
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("event stream failed: %w", err)
	}
	return ctx.Err()
}
