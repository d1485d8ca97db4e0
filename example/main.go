package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/blockyswitch"
	"github.com/jpalmerr/blockyswitch/internal/indicator"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockBlockingServer("127.0.0.1:9999")
	time.Sleep(100 * time.Millisecond)

	sw, err := blockyswitch.New(
		blockyswitch.WithHost("http://127.0.0.1:9999"),
		blockyswitch.WithPollInterval(5*time.Second),
		blockyswitch.WithIndicator(indicator.NewConsoleSink(nil)),
		blockyswitch.WithStatusCallback(func(s blockyswitch.State) {
			if s.Status == blockyswitch.StatusDisabled {
				slog.Warn("blocking is off", "host", s.Host)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create switch", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════════════════╗")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   blockyswitch Demo                                   ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Mock host: http://127.0.0.1:9999 (flips every ~40s) ║")
	fmt.Println("  ║   Control API: http://127.0.0.1:7377/api/state        ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Try in another terminal:                            ║")
	fmt.Println("  ║   • go run ./cmd/blockyswitch ui                      ║")
	fmt.Println("  ║   • go run ./cmd/blockyswitch disable                 ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ║   Press Ctrl+C to stop                                ║")
	fmt.Println("  ║                                                       ║")
	fmt.Println("  ╚═══════════════════════════════════════════════════════╝")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sw.Run(ctx); err != nil {
		slog.Error("blockyswitch error", "error", err)
		os.Exit(1)
	}
}
