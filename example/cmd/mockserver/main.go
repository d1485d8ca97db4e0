// Standalone mock blocking service for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/blockyswitch host http://127.0.0.1:9999
//	go run ./cmd/blockyswitch daemon
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9999", "listen address")
	flaky := flag.Bool("flaky", false, "fail one status request in three")
	flag.Parse()

	fmt.Printf("Mock blocking service starting on %s\n", *addr)
	fmt.Println("Blocking starts enabled; /api/blocking/enable and /disable flip it")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		mu       sync.Mutex
		enabled  = true
		requests int
	)

	http.HandleFunc("/api/blocking/status", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		requests++
		fail := *flaky && requests%3 == 0
		current := enabled
		mu.Unlock()

		if fail {
			slog.Info("failing status request", "request", requests)
			http.Error(w, "flaky", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": current})
	})

	toggle := func(to bool) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			from := enabled
			enabled = to
			mu.Unlock()
			slog.Info("blocking set", "from", from, "to", to)
		}
	}
	http.HandleFunc("/api/blocking/enable", toggle(true))
	http.HandleFunc("/api/blocking/disable", toggle(false))

	if err := http.ListenAndServe(*addr, nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
