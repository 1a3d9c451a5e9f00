// Package session persists chat history across CLI runs, one session per
// vault. Sessions live as JSON files in the storage directory and are saved
// atomically after each turn.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
	"github.com/vaultclaw/vaultclaw/pkg/providers"
)

type Session struct {
	Key      string              `json:"key"`
	Messages []providers.Message `json:"messages"`
	Created  time.Time           `json:"created"`
	Updated  time.Time           `json:"updated"`
}

// Manager holds sessions in memory and mirrors them to disk. All methods are
// safe for concurrent use.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
}

var (
	// Keep CLI startup responsive even if cloud-backed folders stall.
	sessionLoadTimeout = 750 * time.Millisecond
	errLoadTimedOut    = errors.New("session load timed out")
	readDir            = os.ReadDir
	readFile           = os.ReadFile
)

// KeyForVault derives a stable session key from a vault root path.
func KeyForVault(root string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(root)))
	return "vault-" + hex.EncodeToString(sum[:8])
}

func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
	}

	if storage != "" {
		os.MkdirAll(storage, 0755)
		if err := m.loadWithTimeout(sessionLoadTimeout); err != nil {
			logger.WarnCF("session", "Session preload skipped", map[string]interface{}{
				"storage": storage,
				"error":   err.Error(),
			})
		}
	}

	return m
}

func (m *Manager) AddMessage(key, role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		s = &Session{Key: key, Messages: []providers.Message{}, Created: time.Now()}
		m.sessions[key] = s
	}
	s.Messages = append(s.Messages, providers.Message{Role: role, Content: content})
	s.Updated = time.Now()
}

// History returns a copy of the session's messages, oldest first.
func (m *Manager) History(key string) []providers.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return []providers.Message{}
	}
	out := make([]providers.Message, len(s.Messages))
	copy(out, s.Messages)
	return out
}

// Truncate drops all but the last keepLast messages so long-running sessions
// do not grow the prompt without bound.
func (m *Manager) Truncate(key string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return
	}
	if keepLast <= 0 {
		s.Messages = []providers.Message{}
		s.Updated = time.Now()
		return
	}
	if len(s.Messages) <= keepLast {
		return
	}
	s.Messages = s.Messages[len(s.Messages)-keepLast:]
	s.Updated = time.Now()
}

func (m *Manager) Clear(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		s.Messages = []providers.Message{}
		s.Updated = time.Now()
	}
}

// Save writes one session to disk via temp file + rename so a crash never
// leaves a half-written session behind.
func (m *Manager) Save(key string) error {
	if m.storage == "" {
		return nil
	}

	// Keys become filenames; reject anything that could traverse.
	if key == "" || key == "." || key == ".." || key != filepath.Base(key) ||
		strings.ContainsAny(key, "/\\") {
		return os.ErrInvalid
	}

	m.mu.RLock()
	stored, ok := m.sessions[key]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	snapshot := Session{
		Key:      stored.Key,
		Created:  stored.Created,
		Updated:  stored.Updated,
		Messages: make([]providers.Message, len(stored.Messages)),
	}
	copy(snapshot.Messages, stored.Messages)
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(m.storage, "session-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, filepath.Join(m.storage, key+".json")); err != nil {
		return err
	}
	cleanup = false
	return nil
}

func (m *Manager) load() error {
	files, err := readDir(m.storage)
	if err != nil {
		return err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := readFile(filepath.Join(m.storage, file.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil || s.Key == "" {
			continue
		}
		m.mu.Lock()
		m.sessions[s.Key] = &s
		m.mu.Unlock()
	}
	return nil
}

func (m *Manager) loadWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return m.load()
	}

	done := make(chan error, 1)
	go func() { done <- m.load() }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return errLoadTimedOut
	}
}
