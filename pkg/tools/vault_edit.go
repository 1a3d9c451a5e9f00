package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultclaw/vaultclaw/pkg/undo"
)

type EditSectionTool struct {
	vaultDeps
}

func (t *EditSectionTool) Name() string { return "edit_section" }

func (t *EditSectionTool) Description() string {
	return "Replace the body of a markdown section. The section starts at the heading matching the given text (case-insensitive) and ends before the next heading of equal or shallower depth."
}

func (t *EditSectionTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative path or bare note name",
			},
			"heading": map[string]interface{}{
				"type":        "string",
				"description": "Heading text to match, without the # markers",
			},
			"newContent": map[string]interface{}{
				"type":        "string",
				"description": "Replacement body for the section (the heading line is kept)",
			},
		},
		"required": []string{"path", "heading", "newContent"},
	}
}

func (t *EditSectionTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := getString(args, "path")
	heading := getString(args, "heading")

	prior, err := t.store.Read(ctx, p)
	if err != nil {
		return Errf("could not read %s: %v", p, err)
	}

	updated, ok := spliceSection(prior, heading, getString(args, "newContent"))
	if !ok {
		return Errf("no heading matching %q in %s", heading, p)
	}

	if err := t.store.Modify(ctx, p, updated); err != nil {
		return Errf("could not edit %s: %v", p, err)
	}
	t.recordSingle("Edit section "+heading+" in "+p,
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: updated},
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: prior},
	)
	return Okf("Replaced section %q in %s", heading, p)
}

// headingDepth returns the marker depth of a markdown heading line, or 0 when
// the line is not a heading.
func headingDepth(line string) int {
	trimmed := strings.TrimSpace(line)
	depth := 0
	for depth < len(trimmed) && trimmed[depth] == '#' {
		depth++
	}
	if depth == 0 || depth > 6 {
		return 0
	}
	if depth == len(trimmed) || trimmed[depth] == ' ' || trimmed[depth] == '\t' {
		return depth
	}
	return 0
}

// spliceSection replaces the body between the matched heading line and the
// next heading of depth <= the matched depth (or end of document). The new
// content is separated from the heading and from the following section by
// blank lines.
func spliceSection(content, heading, newContent string) (string, bool) {
	lines := strings.Split(content, "\n")
	want := strings.ToLower(strings.TrimSpace(heading))

	start := -1
	depth := 0
	for i, line := range lines {
		d := headingDepth(line)
		if d == 0 {
			continue
		}
		text := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "#"))
		if strings.ToLower(text) == want {
			start = i
			depth = d
			break
		}
	}
	if start < 0 {
		return "", false
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if d := headingDepth(lines[i]); d > 0 && d <= depth {
			end = i
			break
		}
	}

	var out []string
	out = append(out, lines[:start+1]...)
	out = append(out, "")
	out = append(out, strings.Split(strings.TrimRight(newContent, "\n"), "\n")...)
	if end < len(lines) {
		out = append(out, "")
		out = append(out, lines[end:]...)
	}
	return strings.Join(out, "\n"), true
}

type ReplaceTextTool struct {
	vaultDeps
}

func (t *ReplaceTextTool) Name() string { return "replace_text" }

func (t *ReplaceTextTool) Description() string {
	return "Replace a literal text fragment in a note. By default only the first occurrence is replaced; set replaceAll to replace every occurrence."
}

func (t *ReplaceTextTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative path or bare note name",
			},
			"search": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to find",
			},
			"replace": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text",
			},
			"replaceAll": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace every occurrence instead of only the first",
			},
		},
		"required": []string{"path", "search", "replace"},
	}
}

func (t *ReplaceTextTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := getString(args, "path")
	search := getString(args, "search")
	replacement := getString(args, "replace")
	all := getBool(args, "replaceAll")
	if search == "" {
		return Errf("search text must not be empty")
	}

	prior, err := t.store.Read(ctx, p)
	if err != nil {
		return Errf("could not read %s: %v", p, err)
	}

	count := strings.Count(prior, search)
	if count == 0 {
		return Errf("text %q not found in %s", search, p)
	}
	if !all {
		count = 1
	}
	updated := strings.Replace(prior, search, replacement, count)

	if err := t.store.Modify(ctx, p, updated); err != nil {
		return Errf("could not modify %s: %v", p, err)
	}
	t.recordSingle("Replace text in "+p,
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: updated},
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: prior},
	)
	noun := "occurrences"
	if count == 1 {
		noun = "occurrence"
	}
	return OkData(
		fmt.Sprintf("Replaced %d %s in %s", count, noun, p),
		map[string]interface{}{"count": count},
	)
}
