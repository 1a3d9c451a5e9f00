// Package tools holds the tool registry and the vault tool set. Every tool
// declares a JSON-Schema-like parameter contract that is advertised both to
// the LLM (in the system prompt) and to external JSON-RPC callers. Dispatch
// never panics: all failures come back as a failed ToolResult.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
)

// ToolResult is the outcome of one tool invocation. Result is the
// human-readable summary fed back to the LLM; Data carries optional
// structured payload for programmatic callers.
type ToolResult struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
	Data    any    `json:"data,omitempty"`
}

func Ok(result string) *ToolResult {
	return &ToolResult{Success: true, Result: result}
}

func Okf(format string, args ...any) *ToolResult {
	return &ToolResult{Success: true, Result: fmt.Sprintf(format, args...)}
}

func OkData(result string, data any) *ToolResult {
	return &ToolResult{Success: true, Result: result, Data: data}
}

func Errf(format string, args ...any) *ToolResult {
	return &ToolResult{Success: false, Result: fmt.Sprintf(format, args...)}
}

// Tool is the contract every registered tool satisfies.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns a JSON-Schema object: {"type":"object",
	// "properties":{...},"required":[...]}.
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// Definition is the advertised shape of a tool, shared by the agent prompt
// and the JSON-RPC tools/list response.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// Registry maps tool names to handlers. Registration validates the declared
// schema so unknown-tool and missing-argument handling is a single contract
// at dispatch time.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return fmt.Errorf("nil tool")
	}
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool with empty name")
	}

	schema := t.Parameters()
	props, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)
	for _, req := range required {
		if _, ok := props[req]; !ok {
			return fmt.Errorf("tool %s: required parameter %q not declared in properties", name, req)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Definitions returns the advertised schemas in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Parameters(),
		})
	}
	return out
}

// Dispatch validates the arguments against the tool's declared schema and
// runs the handler. It never panics; unknown tools, missing required
// arguments, and handler panics all surface as a failed ToolResult.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (result *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.ErrorCF("tools", "Tool handler panicked", map[string]interface{}{
				"tool":  name,
				"panic": fmt.Sprintf("%v", rec),
			})
			result = Errf("tool %s failed: %v", name, rec)
		}
	}()

	t, ok := r.Get(name)
	if !ok {
		return Errf("unknown tool: %s", name)
	}
	if args == nil {
		args = map[string]interface{}{}
	}

	schema := t.Parameters()
	if required, ok := schema["required"].([]string); ok {
		for _, req := range required {
			// Presence only: empty strings are legal (e.g. folder "" is the
			// vault root).
			v, present := args[req]
			if !present || v == nil {
				return Errf("tool %s: missing required parameter %q", name, req)
			}
		}
	}

	logger.DebugCF("tools", "Dispatching", map[string]interface{}{
		"tool": name,
		"args": mustJSON(args),
	})
	res := t.Execute(ctx, args)
	if res == nil {
		res = Errf("tool %s returned no result", name)
	}
	if !res.Success {
		logger.WarnCF("tools", "Tool failed", map[string]interface{}{
			"tool":   name,
			"result": res.Result,
		})
	}
	return res
}

func getString(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getBool(args map[string]interface{}, key string) bool {
	if v, ok := args[key]; ok {
		switch t := v.(type) {
		case bool:
			return t
		case string:
			return t == "true"
		}
	}
	return false
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(b)
}
