package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/vaultclaw/vaultclaw/pkg/tools"
)

// Scope limits what part of the vault a run should consider.
type Scope string

const (
	ScopeNote   Scope = "note"   // the active note only
	ScopeLinked Scope = "linked" // the active note and the notes it links to
	ScopeFolder Scope = "folder" // the active note's folder
	ScopeVault  Scope = "vault"  // the whole vault
)

func scopeDescription(s Scope) string {
	switch s {
	case ScopeNote:
		return "the currently open note only"
	case ScopeLinked:
		return "the currently open note and the notes linked from it"
	case ScopeFolder:
		return "the folder containing the currently open note"
	default:
		return "the entire vault"
	}
}

// ContextBuilder assembles the system prompt and annotates user turns with
// the active scope. The tool catalog is rendered live from the registry so
// the prompt never drifts from what Dispatch accepts.
type ContextBuilder struct {
	vaultPath string
	registry  *tools.Registry
}

func NewContextBuilder(vaultPath string, registry *tools.Registry) *ContextBuilder {
	return &ContextBuilder{vaultPath: vaultPath, registry: registry}
}

func (cb *ContextBuilder) SystemPrompt() string {
	var b strings.Builder

	b.WriteString("You are vaultclaw, an assistant that manages a markdown note vault on behalf of the user.\n")
	fmt.Fprintf(&b, "Vault root: %s\n", cb.vaultPath)
	fmt.Fprintf(&b, "Current time: %s\n\n", time.Now().Format("2006-01-02 15:04 (Monday)"))

	b.WriteString("To act on the vault, respond with exactly one tool call as a fenced JSON block:\n")
	b.WriteString("```json\n{\"tool\": \"<name>\", \"params\": {...}, \"reasoning\": \"<why>\"}\n```\n")
	b.WriteString("After each call you will receive the tool's result and may call another tool.\n")
	b.WriteString("When you are done, respond with the final_answer tool:\n")
	b.WriteString("```json\n{\"tool\": \"final_answer\", \"params\": {\"answer\": \"<your answer>\", \"sources\": [\"path1\", \"path2\"]}}\n```\n")
	b.WriteString("If the request needs no vault action, just answer in plain text.\n\n")

	b.WriteString("Available tools:\n")
	for _, def := range cb.registry.Definitions() {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
		b.WriteString(renderSchema(def.InputSchema))
	}

	b.WriteString("\nEvery destructive action is recorded on an undo log, so prefer acting over asking for confirmation.\n")
	return b.String()
}

func renderSchema(schema map[string]interface{}) string {
	props, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)
	if len(props) == 0 {
		return ""
	}
	isRequired := func(name string) bool {
		for _, r := range required {
			if r == name {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	// Required parameters first, in schema-declared requirement order.
	for _, name := range required {
		if p, ok := props[name].(map[string]interface{}); ok {
			fmt.Fprintf(&b, "    %s (%v, required): %v\n", name, p["type"], p["description"])
		}
	}
	for name, raw := range props {
		if isRequired(name) {
			continue
		}
		if p, ok := raw.(map[string]interface{}); ok {
			fmt.Fprintf(&b, "    %s (%v, optional): %v\n", name, p["type"], p["description"])
		}
	}
	return b.String()
}

// AnnotateUserMessage attaches the context scope and active note to the raw
// request so the model knows what the user is looking at.
func (cb *ContextBuilder) AnnotateUserMessage(message string, scope Scope, activePath string) string {
	var b strings.Builder
	b.WriteString(message)
	b.WriteString("\n\n[Context scope: ")
	b.WriteString(scopeDescription(scope))
	if activePath != "" {
		fmt.Fprintf(&b, "; currently open note: %s", activePath)
	}
	b.WriteString("]")
	return b.String()
}
