package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndHistory(t *testing.T) {
	m := NewManager("")
	key := KeyForVault("/some/vault")

	m.AddMessage(key, "user", "hello")
	m.AddMessage(key, "assistant", "hi there")

	h := m.History(key)
	require.Len(t, h, 2)
	assert.Equal(t, "user", h[0].Role)
	assert.Equal(t, "hi there", h[1].Content)

	// History is a copy, mutating it does not touch the session.
	h[0].Content = "mutated"
	assert.Equal(t, "hello", m.History(key)[0].Content)
}

func TestHistoryUnknownKey(t *testing.T) {
	m := NewManager("")
	assert.Empty(t, m.History("nope"))
}

func TestTruncate(t *testing.T) {
	m := NewManager("")
	key := "k"
	for i := 0; i < 6; i++ {
		m.AddMessage(key, "user", string(rune('a'+i)))
	}

	m.Truncate(key, 2)
	h := m.History(key)
	require.Len(t, h, 2)
	assert.Equal(t, "e", h[0].Content)
	assert.Equal(t, "f", h[1].Content)

	m.Truncate(key, 0)
	assert.Empty(t, m.History(key))
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	key := KeyForVault("/vault/a")

	m := NewManager(dir)
	m.AddMessage(key, "user", "remember this")
	m.AddMessage(key, "assistant", "noted")
	require.NoError(t, m.Save(key))

	reloaded := NewManager(dir)
	h := reloaded.History(key)
	require.Len(t, h, 2)
	assert.Equal(t, "remember this", h[0].Content)
}

func TestSaveRejectsTraversalKeys(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, key := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		m.AddMessage("valid", "user", "x")
		assert.ErrorIs(t, m.Save(key), os.ErrInvalid, "key %q", key)
	}
}

func TestSaveUnknownKeyIsNoop(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Save("unknown"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0o644))

	m := NewManager(dir)
	key := "good"
	m.AddMessage(key, "user", "still works")
	require.NoError(t, m.Save(key))
	assert.Len(t, NewManager(dir).History(key), 1)
}

func TestKeyForVaultIsStable(t *testing.T) {
	assert.Equal(t, KeyForVault("/v/a"), KeyForVault("/v/a/"))
	assert.NotEqual(t, KeyForVault("/v/a"), KeyForVault("/v/b"))
}
