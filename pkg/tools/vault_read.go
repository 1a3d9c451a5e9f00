package tools

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/vaultclaw/vaultclaw/pkg/undo"
	"github.com/vaultclaw/vaultclaw/pkg/vault"
)

const (
	grepMaxPerFile = 5
	grepMaxFiles   = 10
	searchMaxHits  = 20
	snippetRadius  = 60
)

// vaultDeps is embedded by every vault tool. Mutating tools record their
// inverse on the undo log; read-only tools leave it untouched.
type vaultDeps struct {
	store vault.Store
	log   *undo.Log
	ext   string
}

// notePath joins a folder and a note name, appending the note extension when
// the name has none.
func (d vaultDeps) notePath(folder, name string) string {
	if path.Ext(name) == "" {
		name += d.ext
	}
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" || folder == "." {
		return name
	}
	return folder + "/" + name
}

// walkNotes visits every note under folder, depth first.
func (d vaultDeps) walkNotes(ctx context.Context, folder string, fn func(path string) (bool, error)) error {
	entries, err := d.store.List(ctx, folder)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.Folder {
			if err := d.walkNotes(ctx, e.Path, fn); err != nil {
				return err
			}
			continue
		}
		if !strings.EqualFold(path.Ext(e.Name), d.ext) {
			continue
		}
		cont, err := fn(e.Path)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return nil
}

type SearchVaultTool struct {
	vaultDeps
}

func (t *SearchVaultTool) Name() string { return "search_vault" }

func (t *SearchVaultTool) Description() string {
	return "Search the vault for notes whose name or content matches a query string (case-insensitive)."
}

func (t *SearchVaultTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Text to search for in note names and contents",
			},
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Optional: restrict the search to this folder",
			},
		},
		"required": []string{"query"},
	}
}

type searchHit struct {
	Path    string `json:"path"`
	Snippet string `json:"snippet,omitempty"`
}

func (t *SearchVaultTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	query := strings.ToLower(getString(args, "query"))
	folder := getString(args, "folder")

	var hits []searchHit
	err := t.walkNotes(ctx, folder, func(p string) (bool, error) {
		nameMatch := strings.Contains(strings.ToLower(path.Base(p)), query)
		content, readErr := t.store.Read(ctx, p)
		if readErr != nil {
			return true, nil
		}
		idx := strings.Index(strings.ToLower(content), query)
		if !nameMatch && idx < 0 {
			return true, nil
		}
		hit := searchHit{Path: p}
		if idx >= 0 {
			hit.Snippet = snippetAround(content, idx, len(query))
		}
		hits = append(hits, hit)
		return len(hits) < searchMaxHits, nil
	})
	if err != nil {
		return Errf("search failed: %v", err)
	}
	if len(hits) == 0 {
		return Okf("No notes matching %q", getString(args, "query"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d note(s) matching %q:\n", len(hits), getString(args, "query"))
	for _, h := range hits {
		b.WriteString("- " + h.Path)
		if h.Snippet != "" {
			b.WriteString(": " + h.Snippet)
		}
		b.WriteByte('\n')
	}
	return OkData(strings.TrimRight(b.String(), "\n"), hits)
}

func snippetAround(content string, idx, length int) string {
	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + length + snippetRadius
	if end > len(content) {
		end = len(content)
	}
	snippet := strings.Join(strings.Fields(content[start:end]), " ")
	return snippet
}

type ReadNoteTool struct {
	vaultDeps
}

func (t *ReadNoteTool) Name() string { return "read_note" }

func (t *ReadNoteTool) Description() string {
	return "Read the full content of a note. A bare note name resolves to name" + t.ext + "."
}

func (t *ReadNoteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative path or bare note name",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ReadNoteTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := getString(args, "path")
	content, err := t.store.Read(ctx, p)
	if err != nil {
		return Errf("could not read %s: %v", p, err)
	}
	return OkData(content, map[string]interface{}{"path": p, "content": content})
}

type ListFolderTool struct {
	vaultDeps
}

func (t *ListFolderTool) Name() string { return "list_folder" }

func (t *ListFolderTool) Description() string {
	return "List the notes and subfolders inside a folder. Use \"\" or \".\" for the vault root."
}

func (t *ListFolderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative folder path",
			},
		},
		"required": []string{"path"},
	}
}

func (t *ListFolderTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := getString(args, "path")
	entries, err := t.store.List(ctx, p)
	if err != nil {
		return Errf("could not list %s: %v", p, err)
	}
	if len(entries) == 0 {
		return Okf("Folder %s is empty", displayFolder(p))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Contents of %s (%d entries):\n", displayFolder(p), len(entries))
	for _, e := range entries {
		if e.Folder {
			b.WriteString("- " + e.Name + "/\n")
		} else {
			b.WriteString("- " + e.Name + "\n")
		}
	}
	return OkData(strings.TrimRight(b.String(), "\n"), entries)
}

func displayFolder(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" || p == "." {
		return "the vault root"
	}
	return p
}

type GrepVaultTool struct {
	vaultDeps
}

func (t *GrepVaultTool) Name() string { return "grep_vault" }

func (t *GrepVaultTool) Description() string {
	return "Search note contents with a case-insensitive regular expression. Reports up to " +
		fmt.Sprint(grepMaxPerFile) + " matches per note across up to " + fmt.Sprint(grepMaxFiles) + " notes."
}

func (t *GrepVaultTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to match against note contents",
			},
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Optional: restrict the search to this folder",
			},
		},
		"required": []string{"pattern"},
	}
}

type grepFileHits struct {
	Path    string   `json:"path"`
	Matches []string `json:"matches"`
}

func (t *GrepVaultTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	pattern := getString(args, "pattern")
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Errf("invalid pattern %q: %v", pattern, err)
	}
	folder := getString(args, "folder")

	var files []grepFileHits
	err = t.walkNotes(ctx, folder, func(p string) (bool, error) {
		content, readErr := t.store.Read(ctx, p)
		if readErr != nil {
			return true, nil
		}
		var matches []string
		for _, line := range strings.Split(content, "\n") {
			if re.MatchString(line) {
				matches = append(matches, strings.TrimSpace(line))
				if len(matches) >= grepMaxPerFile {
					break
				}
			}
		}
		if len(matches) == 0 {
			return true, nil
		}
		files = append(files, grepFileHits{Path: p, Matches: matches})
		return len(files) < grepMaxFiles, nil
	})
	if err != nil {
		return Errf("grep failed: %v", err)
	}
	if len(files) == 0 {
		return Okf("No matches for /%s/", pattern)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Matches for /%s/ in %d note(s):\n", pattern, len(files))
	for _, f := range files {
		b.WriteString(f.Path + ":\n")
		for _, m := range f.Matches {
			b.WriteString("  " + m + "\n")
		}
	}
	return OkData(strings.TrimRight(b.String(), "\n"), files)
}
