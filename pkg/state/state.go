// Package state persists per-vault workspace state, currently the active
// note, so a new CLI run resumes where the last one left off. The state file
// lives inside the vault under .vaultclaw/ and is written atomically.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
)

const stateDirName = ".vaultclaw"

// State is the persisted workspace state for one vault.
type State struct {
	// ActiveNote is the vault-relative path of the note the user last opened.
	ActiveNote string `json:"active_note,omitempty"`

	// Timestamp is the last time this state was updated.
	Timestamp time.Time `json:"timestamp"`
}

// Manager manages persistent state with atomic saves.
type Manager struct {
	state     *State
	mu        sync.RWMutex
	stateFile string
}

var (
	stateReadFile         = os.ReadFile
	stateBootstrapTimeout = 750 * time.Millisecond
)

// NewManager creates a state manager for the given vault root. Load failures
// are logged and leave an empty state so the CLI still starts.
func NewManager(vaultRoot string) *Manager {
	stateDir := filepath.Join(vaultRoot, stateDirName)
	os.MkdirAll(stateDir, 0755)

	m := &Manager{
		stateFile: filepath.Join(stateDir, "state.json"),
		state:     &State{},
	}

	loaded, err := loadWithTimeout(m.stateFile, stateBootstrapTimeout)
	if err != nil {
		logger.WarnCF("state", "State bootstrap skipped", map[string]interface{}{
			"vault": vaultRoot,
			"error": err.Error(),
		})
	} else if loaded != nil {
		m.state = loaded
	}

	return m
}

// SetActiveNote atomically updates the active note and saves the state.
func (m *Manager) SetActiveNote(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.ActiveNote = path
	m.state.Timestamp = time.Now()

	if err := m.saveAtomic(); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (m *Manager) ActiveNote() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.ActiveNote
}

func (m *Manager) Timestamp() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Timestamp
}

// saveAtomic writes the state via temp file + rename so the state file is
// never left half-written. Must be called with the lock held.
func (m *Manager) saveAtomic() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tempFile := m.stateFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tempFile, m.stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func loadWithTimeout(stateFile string, timeout time.Duration) (*State, error) {
	if timeout <= 0 {
		return loadFromPath(stateFile)
	}

	type result struct {
		state *State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := loadFromPath(stateFile)
		done <- result{state: st, err: err}
	}()

	select {
	case out := <-done:
		return out.state, out.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("state load timed out")
	}
}

func loadFromPath(path string) (*State, error) {
	data, err := stateReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal state %s: %w", path, err)
	}
	return &st, nil
}
