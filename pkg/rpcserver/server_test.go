package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultclaw/vaultclaw/pkg/tools"
	"github.com/vaultclaw/vaultclaw/pkg/undo"
	"github.com/vaultclaw/vaultclaw/pkg/vault"
)

func newTestServer(t *testing.T) (*Server, *vault.FS) {
	t.Helper()
	store, err := vault.NewFS(t.TempDir(), ".md")
	require.NoError(t, err)
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterVaultTools(registry, store, undo.NewLog(store, 10), ".md"))
	srv, err := New(registry, "127.0.0.1", 0, "vaultclaw", "test")
	require.NoError(t, err)
	return srv, store
}

func post(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler()(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) rpcResponse {
	t.Helper()
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestNewRejectsNonLoopback(t *testing.T) {
	registry := tools.NewRegistry()
	_, err := New(registry, "0.0.0.0", 27123, "vaultclaw", "test")
	require.Error(t, err)
	_, err = New(registry, "192.168.1.5", 27123, "vaultclaw", "test")
	require.Error(t, err)

	for _, host := range []string{"127.0.0.1", "::1", "localhost", ""} {
		_, err := New(registry, host, 27123, "vaultclaw", "test")
		assert.NoError(t, err, "host %q", host)
	}
}

func TestInitialize(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 1, "method": "initialize", "params": {}}`)
	resp := decode(t, rec)
	require.Nil(t, resp.Error)

	var result initializeResult
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "vaultclaw", result.ServerInfo.Name)
	assert.NotEmpty(t, result.SessionID)
	assert.Contains(t, result.Capabilities, "tools")
}

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 2, "method": "tools/list"}`)
	resp := decode(t, rec)
	require.Nil(t, resp.Error)

	var result toolsListResult
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Len(t, result.Tools, 14)
	names := make(map[string]bool)
	for _, def := range result.Tools {
		names[def.Name] = true
		assert.Equal(t, "object", def.InputSchema["type"])
	}
	assert.True(t, names["search_vault"])
	assert.True(t, names["replace_text"])
}

func TestToolsCall(t *testing.T) {
	srv, store := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 3, "method": "tools/call",
		"params": {"name": "create_note", "arguments": {"folder": "Projects", "name": "Plan", "content": "# Plan"}}}`)
	resp := decode(t, rec)
	require.Nil(t, resp.Error)

	var result toolsCallResult
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	content, err := store.Read(context.Background(), "Projects/Plan.md")
	require.NoError(t, err)
	assert.Equal(t, "# Plan", content)
}

func TestToolsCallFailureIsResultNotError(t *testing.T) {
	// A failing tool is a successful RPC: the failure travels in isError, not
	// in the JSON-RPC error member.
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 4, "method": "tools/call",
		"params": {"name": "read_note", "arguments": {"path": "missing.md"}}}`)
	resp := decode(t, rec)
	require.Nil(t, resp.Error)

	var result toolsCallResult
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.IsError)
}

func TestToolsCallMissingName(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 5, "method": "tools/call", "params": {"arguments": {}}}`)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestParseError(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := decode(t, post(t, srv, `{not json`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeParseError, resp.Error.Code)
}

func TestInvalidRequest(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := decode(t, post(t, srv, `{"jsonrpc": "1.0", "id": 6, "method": "ping"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)

	resp = decode(t, post(t, srv, `{"jsonrpc": "2.0", "id": 7}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInvalidRequest, resp.Error.Code)
}

func TestMethodNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := decode(t, post(t, srv, `{"jsonrpc": "2.0", "id": 8, "method": "resources/list"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestNotificationGetsNoBody(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "method": "notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.True(t, srv.initialized.Load())
}

func TestNullIDIsNotification(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := post(t, srv, `{"jsonrpc": "2.0", "id": null, "method": "notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestPing(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := decode(t, post(t, srv, `{"jsonrpc": "2.0", "id": 9, "method": "ping"}`))
	require.Nil(t, resp.Error)
	assert.Equal(t, json.RawMessage("9"), resp.ID)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler()(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestOptionsPreflight(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	rec := httptest.NewRecorder()
	srv.Handler()(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// unstableTool returns a valid schema at registration and panics on every
// later Parameters call, so tools/list trips the handler recovery path.
type unstableTool struct{ calls int }

func (u *unstableTool) Name() string        { return "unstable_tool" }
func (u *unstableTool) Description() string { return "schema generation fails after registration" }
func (u *unstableTool) Parameters() map[string]interface{} {
	u.calls++
	if u.calls > 1 {
		panic("schema generation failed")
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}
}

func (u *unstableTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	return tools.Ok("ok")
}

func TestHandlerPanicReturnsInternalError(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&unstableTool{}))
	srv, err := New(registry, "127.0.0.1", 0, "vaultclaw", "test")
	require.NoError(t, err)

	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 21, "method": "tools/list"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, codeInternalError, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "internal error")
	assert.Contains(t, resp.Error.Message, "schema generation failed")
	assert.Nil(t, resp.Result)
}

func TestToolExecutePanicSurfacesAsFailedResult(t *testing.T) {
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(panicOnExecuteTool{}))
	srv, err := New(registry, "127.0.0.1", 0, "vaultclaw", "test")
	require.NoError(t, err)

	rec := post(t, srv, `{"jsonrpc": "2.0", "id": 22, "method": "tools/call", "params": {"name": "explode", "arguments": {}}}`)
	resp := decode(t, rec)
	require.Nil(t, resp.Error, "tool failures travel in the result, not as protocol errors")

	var result toolsCallResult
	raw, _ := json.Marshal(resp.Result)
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.IsError)
	require.NotEmpty(t, result.Content)
	assert.Contains(t, result.Content[0].Text, "explode failed")
}

type panicOnExecuteTool struct{}

func (panicOnExecuteTool) Name() string        { return "explode" }
func (panicOnExecuteTool) Description() string { return "panics when executed" }
func (panicOnExecuteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
		"required":   []string{},
	}
}

func (panicOnExecuteTool) Execute(ctx context.Context, args map[string]interface{}) *tools.ToolResult {
	panic("nil map write")
}
