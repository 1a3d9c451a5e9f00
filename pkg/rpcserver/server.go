// Package rpcserver exposes the tool registry to external LLM runtimes over
// a JSON-RPC 2.0 HTTP endpoint with an MCP-style handshake. The server binds
// to loopback only; a non-loopback host is rejected at construction. That is
// a security invariant, not a tunable.
package rpcserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vaultclaw/vaultclaw/pkg/audit"
	"github.com/vaultclaw/vaultclaw/pkg/logger"
	"github.com/vaultclaw/vaultclaw/pkg/tools"
)

const ProtocolVersion = "2025-03-26"

// Standard JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

const maxBodyBytes = 4 << 20

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
	Instructions    string         `json:"instructions,omitempty"`
	SessionID       string         `json:"sessionId"`
}

type toolsListResult struct {
	Tools []tools.Definition `json:"tools"`
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type toolsCallResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// Server serves the registry over HTTP POST on a single endpoint.
type Server struct {
	registry    *tools.Registry
	auditSink   *audit.Sink
	name        string
	version     string
	addr        string
	httpSrv     *http.Server
	initialized atomic.Bool
}

// New builds a server bound to host:port. Host must resolve to a loopback
// address.
func New(registry *tools.Registry, host string, port int, name, version string) (*Server, error) {
	if host == "" {
		host = "127.0.0.1"
	}
	ip := net.ParseIP(host)
	if host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		return nil, fmt.Errorf("rpc server must bind to a loopback address, got %q", host)
	}
	return &Server{
		registry: registry,
		name:     name,
		version:  version,
		addr:     fmt.Sprintf("%s:%d", host, port),
	}, nil
}

func (s *Server) SetAudit(sink *audit.Sink) { s.auditSink = sink }

func (s *Server) Addr() string { return s.addr }

// Start begins serving and blocks until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.InfoCF("rpc", "Serving", map[string]interface{}{"addr": s.addr})
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Handler exposes the endpoint for tests.
func (s *Server) Handler() http.HandlerFunc { return s.handle }

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	// The only legitimate caller is a local process, so CORS is permissive.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, nil, codeParseError, "could not read request body")
		return
	}

	var msg rpcMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.writeError(w, nil, codeParseError, "invalid JSON: "+err.Error())
		return
	}
	if msg.JSONRPC != "2.0" || msg.Method == "" {
		s.writeError(w, msg.ID, codeInvalidRequest, "not a JSON-RPC 2.0 request")
		return
	}

	// A notification has no id and never receives a response body.
	if isNotification(msg.ID) {
		s.handleNotification(msg)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	result, rpcErr := s.dispatch(r.Context(), msg)
	if rpcErr != nil {
		s.writeError(w, msg.ID, rpcErr.Code, rpcErr.Message)
		return
	}
	s.writeResult(w, msg.ID, result)
}

func isNotification(id json.RawMessage) bool {
	return len(id) == 0 || string(id) == "null"
}

func (s *Server) handleNotification(msg rpcMessage) {
	switch msg.Method {
	case "notifications/initialized":
		s.initialized.Store(true)
		logger.DebugC("rpc", "client initialized")
	default:
		logger.DebugCF("rpc", "Ignoring notification", map[string]interface{}{
			"method": msg.Method,
		})
	}
}

func (s *Server) dispatch(ctx context.Context, msg rpcMessage) (result any, rpcErr *rpcError) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("rpc", "Handler panicked", map[string]interface{}{
				"method": msg.Method,
				"panic":  fmt.Sprintf("%v", rec),
			})
			result = nil
			rpcErr = &rpcError{Code: codeInternalError, Message: fmt.Sprintf("internal error: %v", rec)}
		}
	}()

	switch msg.Method {
	case "initialize":
		return s.handleInitialize(), nil
	case "tools/list":
		return toolsListResult{Tools: s.registry.Definitions()}, nil
	case "tools/call":
		return s.handleToolsCall(ctx, msg.Params)
	case "ping":
		return map[string]any{}, nil
	case "notifications/initialized":
		// Sent with an id by sloppy clients; acknowledge with an empty result.
		s.initialized.Store(true)
		return map[string]any{}, nil
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "method not found: " + msg.Method}
	}
}

func (s *Server) handleInitialize() initializeResult {
	return initializeResult{
		ProtocolVersion: ProtocolVersion,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		ServerInfo: serverInfo{Name: s.name, Version: s.version},
		Instructions: "Tools operate on a markdown note vault. Paths are vault-relative; " +
			"bare note names resolve with the vault's note extension. Mutating tools are " +
			"reversible through the vault's undo log.",
		SessionID: uuid.NewString(),
	}
}

func (s *Server) handleToolsCall(ctx context.Context, raw json.RawMessage) (any, *rpcError) {
	var params toolsCallParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid params: " + err.Error()}
		}
	}
	if params.Name == "" {
		return nil, &rpcError{Code: codeInvalidParams, Message: "missing tool name"}
	}

	res := s.registry.Dispatch(ctx, params.Name, params.Arguments)
	if s.auditSink != nil {
		s.auditSink.Record(audit.Record{
			Origin:  "rpc",
			Tool:    params.Name,
			Args:    params.Arguments,
			Success: res.Success,
			Summary: res.Result,
		})
	}
	return toolsCallResult{
		Content: []contentBlock{{Type: "text", Text: res.Result}},
		IsError: !res.Success,
	}, nil
}

func (s *Server) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.WarnCF("rpc", "Failed to write response", map[string]interface{}{
			"error": err.Error(),
		})
	}
}
