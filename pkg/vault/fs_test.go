package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir(), ".md")
	require.NoError(t, err)
	return fs
}

func TestNormalizePath(t *testing.T) {
	fs := newTestFS(t)

	assert.Equal(t, "Plan.md", fs.NormalizePath("Plan"))
	assert.Equal(t, "Projects/Plan.md", fs.NormalizePath("Projects/Plan"))
	assert.Equal(t, "Plan.md", fs.NormalizePath("Plan.md"))
	assert.Equal(t, "notes.txt", fs.NormalizePath("notes.txt"))
	assert.Equal(t, "Plan.md", fs.NormalizePath("/Plan.md"))
}

func TestCreateReadModify(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "Projects/Plan.md", "# Plan"))

	// Read resolves bare names through the extension fallback.
	content, err := fs.Read(ctx, "Projects/Plan")
	require.NoError(t, err)
	assert.Equal(t, "# Plan", content)

	require.NoError(t, fs.Modify(ctx, "Projects/Plan.md", "# Updated"))
	content, err = fs.Read(ctx, "Projects/Plan.md")
	require.NoError(t, err)
	assert.Equal(t, "# Updated", content)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "a.md", "x"))
	err := fs.Create(ctx, "a.md", "y")
	assert.True(t, errors.Is(err, ErrExists))
}

func TestPathEscapeRejected(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	err := fs.Create(ctx, "../outside.md", "x")
	require.Error(t, err)

	_, err = fs.Read(ctx, "../../etc/passwd")
	require.Error(t, err)
}

func TestRenameAndMove(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "a.md", "content"))
	require.NoError(t, fs.CreateFolder(ctx, "Archive"))
	require.NoError(t, fs.Rename(ctx, "a.md", "Archive/b.md"))

	exists, err := fs.Exists(ctx, "a.md")
	require.NoError(t, err)
	assert.False(t, exists)

	content, err := fs.Read(ctx, "Archive/b.md")
	require.NoError(t, err)
	assert.Equal(t, "content", content)
}

func TestTrashKeepsFileRecoverable(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "doomed.md", "bye"))
	require.NoError(t, fs.Trash(ctx, "doomed.md"))

	exists, err := fs.Exists(ctx, "doomed.md")
	require.NoError(t, err)
	assert.False(t, exists)

	trashed, err := os.ReadFile(filepath.Join(fs.Root(), ".trash", "doomed.md"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(trashed))
}

func TestListSkipsHiddenAndSorts(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "b.md", ""))
	require.NoError(t, fs.Create(ctx, "a.md", ""))
	require.NoError(t, fs.CreateFolder(ctx, "Sub"))
	require.NoError(t, fs.Create(ctx, ".hidden.md", ""))

	entries, err := fs.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Folders first, then files alphabetically.
	assert.Equal(t, "Sub", entries[0].Name)
	assert.True(t, entries[0].Folder)
	assert.Equal(t, "a.md", entries[1].Name)
	assert.Equal(t, "b.md", entries[2].Name)
}

func TestListMissingFolder(t *testing.T) {
	fs := newTestFS(t)
	_, err := fs.List(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestBacklinks(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "Target.md", "# Target"))
	require.NoError(t, fs.Create(ctx, "wiki.md", "see [[Target]] for details"))
	require.NoError(t, fs.Create(ctx, "aliased.md", "see [[target|the target note]]"))
	require.NoError(t, fs.Create(ctx, "plain.md", "mentioned in Target.md earlier"))
	require.NoError(t, fs.Create(ctx, "unrelated.md", "nothing here"))

	links, err := fs.Backlinks(ctx, "Target")
	require.NoError(t, err)
	assert.Equal(t, []string{"aliased.md", "plain.md", "wiki.md"}, links)
}

func TestActiveDocument(t *testing.T) {
	fs := newTestFS(t)
	assert.Empty(t, fs.ActiveDocument())
	fs.SetActiveDocument("/Projects/Plan.md")
	assert.Equal(t, "Projects/Plan.md", fs.ActiveDocument())
}

func TestMutatingCallsShareLockKey(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()

	require.NoError(t, fs.Create(ctx, "Plan", "draft"))
	require.NoError(t, fs.Modify(ctx, "Plan.md", "v2"))
	require.NoError(t, fs.Rename(ctx, "Plan", "Plan2.md"))
	require.NoError(t, fs.Trash(ctx, "Plan2"))

	fs.locksMu.Lock()
	defer fs.locksMu.Unlock()
	assert.Contains(t, fs.locks, "Plan.md")
	assert.Contains(t, fs.locks, "Plan2.md")
	assert.Len(t, fs.locks, 2)
}
