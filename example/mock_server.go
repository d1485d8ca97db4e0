package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockBlocking is a blocking service that is also flipped from "another
// device" every 20-60 seconds.
type mockBlocking struct {
	mu           sync.Mutex
	enabled      bool
	nextChangeAt time.Time
}

// StartMockBlockingServer runs a mock blocking API on addr.
// Call this in a goroutine before starting the switch.
func StartMockBlockingServer(addr string) {
	m := &mockBlocking{
		enabled:      true,
		nextChangeAt: time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/blocking/status", func(w http.ResponseWriter, r *http.Request) {
		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		m.mu.Lock()
		if time.Now().After(m.nextChangeAt) {
			m.enabled = !m.enabled
			m.nextChangeAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
			slog.Info("blocking flipped elsewhere", "enabled", m.enabled)
		}
		enabled := m.enabled
		m.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]bool{"enabled": enabled}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})
	mux.HandleFunc("/api/blocking/enable", m.set(true))
	mux.HandleFunc("/api/blocking/disable", m.set(false))

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}

func (m *mockBlocking) set(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.enabled = enabled
		m.mu.Unlock()
		slog.Info("blocking set", "enabled", enabled)
		w.WriteHeader(http.StatusOK)
	}
}
