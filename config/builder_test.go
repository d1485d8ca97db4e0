package config

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/jpalmerr/blockyswitch"
)

func TestSwitchOptions(t *testing.T) {
	cfg := &Config{
		Host:            "http://pi.hole",
		Listen:          "127.0.0.1:0",
		PollInterval:    Duration(45 * time.Second),
		FallbackTimeout: Duration(2 * time.Second),
		StrictFallback:  true,
		State:           StateConfig{Backend: BackendSQLite, Path: filepath.Join(t.TempDir(), "state.db")},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := SwitchOptions(cfg, logger)
	if len(opts) != 7 {
		t.Errorf("len(opts) = %d, want 7", len(opts))
	}

	sw, err := blockyswitch.New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sw.PollInterval() != 45*time.Second {
		t.Errorf("PollInterval() = %v, want 45s", sw.PollInterval())
	}
	if sw.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() = %q", sw.Addr())
	}
}

func TestSwitchOptions_NoLoggerNoStrict(t *testing.T) {
	cfg := &Config{
		Listen:          DefaultListen,
		PollInterval:    Duration(DefaultPollInterval),
		FallbackTimeout: Duration(DefaultFallbackTimeout),
		State:           StateConfig{Backend: BackendYAML, Path: filepath.Join(t.TempDir(), "state.yaml")},
	}

	opts := SwitchOptions(cfg, nil)
	if len(opts) != 5 {
		t.Errorf("len(opts) = %d, want 5", len(opts))
	}
	if _, err := blockyswitch.New(opts...); err != nil {
		t.Fatalf("New() error = %v", err)
	}
}

func TestStateBackend(t *testing.T) {
	tests := []struct {
		name string
		want blockyswitch.Backend
	}{
		{BackendYAML, blockyswitch.BackendYAML},
		{BackendSQLite, blockyswitch.BackendSQLite},
		{"", blockyswitch.BackendMemory},
		{"redis", blockyswitch.BackendMemory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateBackend(tt.name); got != tt.want {
				t.Errorf("StateBackend(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}
