package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Backend persists a [State] as one unit.
//
// Load reports found=false when nothing has been saved yet. Save must write
// every field of the state in a single operation so a concurrent reader never
// observes a status without its refresh time.
type Backend interface {
	Load(ctx context.Context) (state State, found bool, err error)
	Save(ctx context.Context, state State) error
	Close() error
}

// MemoryBackend keeps the state in memory. It is used in tests and when
// persistence is disabled.
type MemoryBackend struct {
	mu    sync.Mutex
	state State
	saved bool
	saves int
}

// NewMemoryBackend creates an empty [MemoryBackend].
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Load returns the last saved state.
func (m *MemoryBackend) Load(_ context.Context) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.saved, nil
}

// Save replaces the stored state.
func (m *MemoryBackend) Save(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	m.saved = true
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Close is a no-op.
func (m *MemoryBackend) Close() error { return nil }

// FileBackend stores the state as a YAML document.
//
// Writes go to a temporary file in the same directory which is then renamed
// over the target, so readers see either the old or the new document.
type FileBackend struct {
	path string
}

// NewFileBackend creates a [FileBackend] for path. The file and its parent
// directory are created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the state file location.
func (f *FileBackend) Path() string {
	return f.path
}

// Load reads and decodes the state file.
func (f *FileBackend) Load(_ context.Context) (State, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("failed to read state file: %w", err)
	}

	// an empty file is what a crashed first run leaves behind
	if len(data) == 0 {
		return State{}, false, nil
	}

	var state State
	if err := yaml.Unmarshal(data, &state); err != nil {
		return State{}, false, fmt.Errorf("failed to parse state file %s: %w", f.path, err)
	}
	return state, true, nil
}

// Save encodes the state and atomically replaces the file.
func (f *FileBackend) Save(_ context.Context, state State) error {
	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Close is a no-op; the file is not held open.
func (f *FileBackend) Close() error { return nil }
