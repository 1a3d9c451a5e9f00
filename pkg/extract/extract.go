// Package extract recovers a structured tool invocation from unstructured
// model output. It is deliberately heuristic: fenced JSON blocks are tried
// first, then a brace-counted scan for an embedded object. A nil result means
// the model gave a direct answer rather than a tool call.
package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/vaultclaw/vaultclaw/pkg/logger"
)

// ToolCall is one parsed invocation request.
type ToolCall struct {
	Tool      string                 `json:"tool"`
	Params    map[string]interface{} `json:"params"`
	Reasoning string                 `json:"reasoning,omitempty"`
}

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*\\s*\n?(.*?)```")
	toolAnchor  = regexp.MustCompile(`\{[^{}]*"tool"\s*:`)
)

// Extract parses the model's response text into a ToolCall, or returns nil
// when no valid tool invocation can be found.
func Extract(text string) *ToolCall {
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if call := parseCandidate(m[1]); call != nil {
			return call
		}
	}

	// No fenced block parsed; look for an embedded object. The anchor finds
	// the region, brace counting recovers the complete object even when the
	// model wrapped it in prose.
	loc := toolAnchor.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	candidate := sliceBalanced(text, loc[0])
	if candidate == "" {
		return nil
	}
	return parseCandidate(candidate)
}

func parseCandidate(s string) *ToolCall {
	s = strings.TrimSpace(s)
	if s == "" || !strings.HasPrefix(s, "{") {
		return nil
	}
	var raw struct {
		Tool      string                 `json:"tool"`
		Params    map[string]interface{} `json:"params"`
		Reasoning string                 `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		logger.DebugCF("extract", "Candidate did not parse", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	if raw.Tool == "" {
		return nil
	}
	params := raw.Params
	if params == nil {
		params = map[string]interface{}{}
	}
	return &ToolCall{Tool: raw.Tool, Params: params, Reasoning: raw.Reasoning}
}

// sliceBalanced returns the substring starting at start that forms a
// brace-balanced JSON object, skipping braces inside string literals.
func sliceBalanced(text string, start int) string {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
