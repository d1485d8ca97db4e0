package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// backendCases runs a check against every persistent backend.
func backendCases(t *testing.T) map[string]func(t *testing.T) Backend {
	t.Helper()
	return map[string]func(t *testing.T) Backend{
		"yaml": func(t *testing.T) Backend {
			return NewFileBackend(filepath.Join(t.TempDir(), "nested", "state.yaml"))
		},
		"sqlite": func(t *testing.T) Backend {
			b, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { _ = b.Close() })
			return b
		},
	}
}

func TestBackends_LoadEmpty(t *testing.T) {
	for name, newBackend := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := newBackend(t).Load(context.Background())
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if found {
				t.Error("Load() found = true on a fresh backend")
			}
		})
	}
}

func TestBackends_SaveLoad(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 30, 15, 123000000, time.UTC)

	states := []State{
		{Host: "", Status: StatusUnknown, LastRefresh: at},
		{Host: "http://localhost:9000", Status: StatusEnabled, LastRefresh: at},
		{Host: "https://pi.hole", Status: StatusDisabled, LastRefresh: at.Add(time.Hour)},
	}

	for name, newBackend := range backendCases(t) {
		t.Run(name, func(t *testing.T) {
			b := newBackend(t)
			ctx := context.Background()

			for _, want := range states {
				if err := b.Save(ctx, want); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
				got, found, err := b.Load(ctx)
				if err != nil || !found {
					t.Fatalf("Load() = found %v, err %v", found, err)
				}
				if got.Host != want.Host || got.Status != want.Status || !got.LastRefresh.Equal(want.LastRefresh) {
					t.Errorf("Load() = %+v, want %+v", got, want)
				}
			}
		})
	}
}

func TestFileBackend_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "state.yaml"))

	for i := 0; i < 3; i++ {
		if err := b.Save(context.Background(), State{Host: "h", Status: StatusEnabled}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.yaml" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contents = %v, want [state.yaml]", names)
	}
}

func TestFileBackend_EmptyFileIsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, found, err := NewFileBackend(path).Load(context.Background())
	if err != nil || found {
		t.Errorf("Load() = found %v, err %v; want not found", found, err)
	}
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("lastBlockingStatus: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewFileBackend(path).Load(context.Background()); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestFileBackend_HandEditedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")
	doc := "host: http://localhost:9000\nlastBlockingStatus: true\nlastRefreshTime: 2024-05-01T12:00:00Z\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	got, found, err := NewFileBackend(path).Load(context.Background())
	if err != nil || !found {
		t.Fatalf("Load() = found %v, err %v", found, err)
	}
	if got.Host != "http://localhost:9000" || got.Status != StatusEnabled {
		t.Errorf("Load() = %+v", got)
	}
}

func TestSQLiteBackend_InMemory(t *testing.T) {
	b, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	defer b.Close()

	s, err := Open(context.Background(), b, WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := s.Commit(context.Background(), s.Begin(), StatusDisabled); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, _, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Status != StatusDisabled {
		t.Errorf("Status = %v, want disabled", got.Status)
	}
}
