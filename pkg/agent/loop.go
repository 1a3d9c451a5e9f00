// Package agent runs the bounded control loop that turns model text into
// tool invocations. The loop is strictly sequential: a second tool call is
// never issued before the first result is folded back into the conversation.
package agent

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vaultclaw/vaultclaw/pkg/audit"
	"github.com/vaultclaw/vaultclaw/pkg/extract"
	"github.com/vaultclaw/vaultclaw/pkg/logger"
	"github.com/vaultclaw/vaultclaw/pkg/providers"
	"github.com/vaultclaw/vaultclaw/pkg/tools"
)

const (
	DefaultMaxIterations = 5
	DefaultTimeout       = 120 * time.Second

	// FinalAnswerTool is the sentinel tool name that terminates a run. It is
	// handled here, not registered on the registry.
	FinalAnswerTool = "final_answer"

	errorAnswer        = "I encountered an error while contacting the language model. Please try again."
	maxIterationsReply = "I reached the maximum number of tool iterations without arriving at a final answer. The actions performed so far are listed above; please refine the request and try again."
)

// StepKind tags one entry of the audit trail.
type StepKind string

const (
	StepToolCall    StepKind = "tool_call"
	StepFinalAnswer StepKind = "final_answer"
)

// Step is one entry in a run's audit trail.
type Step struct {
	Kind    StepKind          `json:"kind"`
	Call    *extract.ToolCall `json:"call,omitempty"`
	Result  *tools.ToolResult `json:"result,omitempty"`
	Answer  string            `json:"answer,omitempty"`
	Sources []string          `json:"sources,omitempty"`
}

// Request is one user turn handed to the loop.
type Request struct {
	Message    string
	Scope      Scope
	ActivePath string
	History    []providers.Message
}

// Response is the outcome of one run.
type Response struct {
	Answer           string   `json:"answer"`
	Steps            []Step   `json:"steps"`
	ActionsPerformed []string `json:"actionsPerformed,omitempty"`
	Sources          []string `json:"sources,omitempty"`
}

// Loop orchestrates provider calls and tool dispatch for one vault.
type Loop struct {
	provider      providers.Provider
	registry      *tools.Registry
	contextB      *ContextBuilder
	auditSink     *audit.Sink
	maxIterations int
	timeout       time.Duration
}

type Option func(*Loop)

func WithMaxIterations(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func WithAudit(sink *audit.Sink) Option {
	return func(l *Loop) { l.auditSink = sink }
}

func NewLoop(provider providers.Provider, registry *tools.Registry, contextB *ContextBuilder, opts ...Option) *Loop {
	l := &Loop{
		provider:      provider,
		registry:      registry,
		contextB:      contextB,
		maxIterations: DefaultMaxIterations,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// mutatingTools are the tools whose successful results are surfaced as
// human-readable action summaries.
var mutatingTools = map[string]bool{
	"create_note":    true,
	"append_to_note": true,
	"rename_file":    true,
	"rename_folder":  true,
	"move_file":      true,
	"delete_note":    true,
	"create_folder":  true,
	"delete_folder":  true,
	"edit_section":   true,
	"replace_text":   true,
}

// Run executes the control loop for one request. It always returns a
// response with a non-empty answer; transport failures and iteration
// exhaustion terminate with fixed answers instead of errors.
func (l *Loop) Run(ctx context.Context, req Request) *Response {
	turnID := uuid.NewString()
	resp := &Response{}

	conversation := []providers.Message{
		{Role: "system", Content: l.contextB.SystemPrompt()},
	}
	conversation = append(conversation, req.History...)
	conversation = append(conversation, providers.Message{
		Role:    "user",
		Content: l.contextB.AnnotateUserMessage(req.Message, req.Scope, req.ActivePath),
	})

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		text, err := l.chat(ctx, conversation)
		if err != nil {
			logger.ErrorCF("agent", "LLM call failed", map[string]interface{}{
				"turn":      turnID,
				"iteration": iteration,
				"error":     err.Error(),
			})
			resp.Answer = errorAnswer
			return resp
		}

		call := extract.Extract(text)
		if call == nil {
			// Direct answer, no tool call.
			answer := strings.TrimSpace(text)
			if answer == "" {
				answer = errorAnswer
			}
			resp.Answer = answer
			return resp
		}

		if call.Tool == FinalAnswerTool {
			answer, sources := finalAnswerParams(call.Params)
			if answer == "" {
				answer = strings.TrimSpace(text)
			}
			if answer == "" {
				answer = errorAnswer
			}
			resp.Answer = answer
			resp.Sources = mergeSources(resp.Sources, sources)
			resp.Steps = append(resp.Steps, Step{
				Kind:    StepFinalAnswer,
				Answer:  answer,
				Sources: sources,
			})
			return resp
		}

		result := l.registry.Dispatch(ctx, call.Tool, call.Params)
		resp.Steps = append(resp.Steps, Step{Kind: StepToolCall, Call: call, Result: result})
		l.record(turnID, iteration, call, result)

		if result.Success {
			if mutatingTools[call.Tool] {
				resp.ActionsPerformed = append(resp.ActionsPerformed, result.Result)
			}
			if call.Tool == "read_note" {
				if p, ok := call.Params["path"].(string); ok {
					resp.Sources = mergeSources(resp.Sources, []string{p})
				}
			}
		}

		conversation = append(conversation,
			providers.Message{Role: "assistant", Content: text},
			providers.Message{Role: "user", Content: toolResultMessage(call.Tool, result)},
		)
	}

	resp.Answer = maxIterationsReply
	return resp
}

func (l *Loop) chat(ctx context.Context, conversation []providers.Message) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.provider.Chat(callCtx, conversation)
}

func (l *Loop) record(turnID string, iteration int, call *extract.ToolCall, result *tools.ToolResult) {
	if l.auditSink == nil {
		return
	}
	l.auditSink.Record(audit.Record{
		TurnID:    turnID,
		Iteration: iteration,
		Tool:      call.Tool,
		Args:      call.Params,
		Success:   result.Success,
		Summary:   result.Result,
	})
}

func toolResultMessage(tool string, result *tools.ToolResult) string {
	status := "succeeded"
	if !result.Success {
		status = "failed"
	}
	return "Tool " + tool + " " + status + ":\n" + result.Result
}

func finalAnswerParams(params map[string]interface{}) (string, []string) {
	answer, _ := params["answer"].(string)
	var sources []string
	if raw, ok := params["sources"].([]interface{}); ok {
		for _, s := range raw {
			if str, ok := s.(string); ok && str != "" {
				sources = append(sources, str)
			}
		}
	}
	return strings.TrimSpace(answer), sources
}

func mergeSources(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, s := range existing {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			existing = append(existing, s)
			seen[s] = true
		}
	}
	return existing
}
