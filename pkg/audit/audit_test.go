package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloseFlushesQueuedRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	sink, err := NewSink(path)
	require.NoError(t, err)

	sink.Record(Record{Tool: "create_note", Success: true, Summary: "Created Plan.md"})
	sink.Record(Record{Tool: "delete_note", Success: false, Summary: "not found"})
	sink.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "create_note", first.Tool)
	assert.True(t, first.Success)
	assert.False(t, first.Timestamp.IsZero())
}

func TestCloseIsIdempotentAndStopsRecording(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewSink(path)
	require.NoError(t, err)

	sink.Record(Record{Tool: "read_note", Success: true})
	sink.Close()
	sink.Close()

	// Records after Close are dropped, not written.
	sink.Record(Record{Tool: "late_tool", Success: true})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
	assert.NotContains(t, string(data), "late_tool")
}
