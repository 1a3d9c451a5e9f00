package tools

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/vaultclaw/vaultclaw/pkg/undo"
)

// recordSingle pushes a one-step undo entry for a mutating tool.
func (d vaultDeps) recordSingle(description string, op, inverse undo.Operation) {
	d.log.Push(undo.NewEntry(description, []undo.Operation{op}, []undo.Operation{inverse}))
}

// brokenLinkNotice reports notes that still reference a name that no longer
// resolves, so the model can offer to fix the links.
func (d vaultDeps) brokenLinkNotice(ctx context.Context, oldPath string) string {
	refs, err := d.store.Backlinks(ctx, oldPath)
	if err != nil || len(refs) == 0 {
		return ""
	}
	return fmt.Sprintf(" Warning: %d note(s) still link to the old name: %s.",
		len(refs), strings.Join(refs, ", "))
}

type CreateNoteTool struct {
	vaultDeps
}

func (t *CreateNoteTool) Name() string { return "create_note" }

func (t *CreateNoteTool) Description() string {
	return "Create a new note in a folder. Parent folders are created as needed."
}

func (t *CreateNoteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"folder": map[string]interface{}{
				"type":        "string",
				"description": "Folder to create the note in (\"\" for the vault root)",
			},
			"name": map[string]interface{}{
				"type":        "string",
				"description": "Note name, with or without extension",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Initial note content",
			},
		},
		"required": []string{"folder", "name", "content"},
	}
}

func (t *CreateNoteTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := t.notePath(getString(args, "folder"), getString(args, "name"))
	content := getString(args, "content")

	if err := t.store.Create(ctx, p, content); err != nil {
		return Errf("could not create %s: %v", p, err)
	}
	t.recordSingle("Create note "+p,
		undo.Operation{Kind: undo.KindCreateFile, SourcePath: p, Content: content},
		undo.Operation{Kind: undo.KindDelete, SourcePath: p},
	)
	return Okf("Created note %s", p)
}

type AppendToNoteTool struct {
	vaultDeps
}

func (t *AppendToNoteTool) Name() string { return "append_to_note" }

func (t *AppendToNoteTool) Description() string {
	return "Append content to the end of an existing note."
}

func (t *AppendToNoteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative path or bare note name",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Content to append",
			},
		},
		"required": []string{"path", "content"},
	}
}

func (t *AppendToNoteTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := getString(args, "path")
	addition := getString(args, "content")

	prior, err := t.store.Read(ctx, p)
	if err != nil {
		return Errf("could not read %s: %v", p, err)
	}
	updated := prior
	if updated != "" && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	updated += addition

	if err := t.store.Modify(ctx, p, updated); err != nil {
		return Errf("could not append to %s: %v", p, err)
	}
	t.recordSingle("Append to "+p,
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: updated},
		undo.Operation{Kind: undo.KindModify, SourcePath: p, Content: prior},
	)
	return Okf("Appended %d characters to %s", len(addition), p)
}

type RenameFileTool struct {
	vaultDeps
}

func (t *RenameFileTool) Name() string { return "rename_file" }

func (t *RenameFileTool) Description() string {
	return "Rename a note within its current folder."
}

func (t *RenameFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Current vault-relative path of the note",
			},
			"newName": map[string]interface{}{
				"type":        "string",
				"description": "New name, with or without extension",
			},
		},
		"required": []string{"path", "newName"},
	}
}

func (t *RenameFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	oldPath := t.notePath("", getString(args, "path"))
	newName := getString(args, "newName")
	if path.Ext(newName) == "" {
		newName += t.ext
	}
	newPath := path.Join(path.Dir(oldPath), newName)

	if err := t.store.Rename(ctx, oldPath, newPath); err != nil {
		return Errf("could not rename %s: %v", oldPath, err)
	}
	t.recordSingle("Rename "+oldPath+" to "+newName,
		undo.Operation{Kind: undo.KindRename, SourcePath: oldPath, TargetPath: newPath},
		undo.Operation{Kind: undo.KindRename, SourcePath: newPath, TargetPath: oldPath},
	)
	return Okf("Renamed %s to %s.%s", oldPath, newPath, t.brokenLinkNotice(ctx, oldPath))
}

type RenameFolderTool struct {
	vaultDeps
}

func (t *RenameFolderTool) Name() string { return "rename_folder" }

func (t *RenameFolderTool) Description() string {
	return "Rename a folder in place. Notes inside keep their relative layout."
}

func (t *RenameFolderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Current vault-relative folder path",
			},
			"newName": map[string]interface{}{
				"type":        "string",
				"description": "New folder name",
			},
		},
		"required": []string{"path", "newName"},
	}
}

func (t *RenameFolderTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	oldPath := strings.Trim(getString(args, "path"), "/")
	newPath := path.Join(path.Dir(oldPath), getString(args, "newName"))

	if err := t.store.Rename(ctx, oldPath, newPath); err != nil {
		return Errf("could not rename folder %s: %v", oldPath, err)
	}
	t.recordSingle("Rename folder "+oldPath+" to "+newPath,
		undo.Operation{Kind: undo.KindRename, SourcePath: oldPath, TargetPath: newPath},
		undo.Operation{Kind: undo.KindRename, SourcePath: newPath, TargetPath: oldPath},
	)
	return Okf("Renamed folder %s to %s", oldPath, newPath)
}

type MoveFileTool struct {
	vaultDeps
}

func (t *MoveFileTool) Name() string { return "move_file" }

func (t *MoveFileTool) Description() string {
	return "Move a note into a different folder, keeping its name."
}

func (t *MoveFileTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"sourcePath": map[string]interface{}{
				"type":        "string",
				"description": "Current vault-relative path of the note",
			},
			"targetFolder": map[string]interface{}{
				"type":        "string",
				"description": "Destination folder (\"\" for the vault root)",
			},
		},
		"required": []string{"sourcePath", "targetFolder"},
	}
}

func (t *MoveFileTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	source := t.notePath("", getString(args, "sourcePath"))
	target := t.notePath(getString(args, "targetFolder"), path.Base(source))

	if err := t.store.Rename(ctx, source, target); err != nil {
		return Errf("could not move %s: %v", source, err)
	}
	t.recordSingle("Move "+source+" to "+target,
		undo.Operation{Kind: undo.KindMove, SourcePath: source, TargetPath: target},
		undo.Operation{Kind: undo.KindMove, SourcePath: target, TargetPath: source},
	)
	return Okf("Moved %s to %s", source, target)
}

type DeleteNoteTool struct {
	vaultDeps
}

func (t *DeleteNoteTool) Name() string { return "delete_note" }

func (t *DeleteNoteTool) Description() string {
	return "Delete a note (moved to the vault trash). Undo restores it with its content."
}

func (t *DeleteNoteTool) Parameters() map[string]interface{} {
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

func (t *DeleteNoteTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := t.notePath("", getString(args, "path"))

	prior, err := t.store.Read(ctx, p)
	if err != nil {
		return Errf("could not read %s before delete: %v", p, err)
	}
	if err := t.store.Trash(ctx, p); err != nil {
		return Errf("could not delete %s: %v", p, err)
	}
	t.recordSingle("Delete note "+p,
		undo.Operation{Kind: undo.KindDelete, SourcePath: p},
		undo.Operation{Kind: undo.KindCreateFile, SourcePath: p, Content: prior},
	)
	return Okf("Deleted %s.%s", p, t.brokenLinkNotice(ctx, p))
}

type CreateFolderTool struct {
	vaultDeps
}

func (t *CreateFolderTool) Name() string { return "create_folder" }

func (t *CreateFolderTool) Description() string {
	return "Create a new folder. Parent folders are created as needed."
}

func (t *CreateFolderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative folder path to create",
			},
		},
		"required": []string{"path"},
	}
}

func (t *CreateFolderTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := strings.Trim(getString(args, "path"), "/")

	if err := t.store.CreateFolder(ctx, p); err != nil {
		return Errf("could not create folder %s: %v", p, err)
	}
	t.recordSingle("Create folder "+p,
		undo.Operation{Kind: undo.KindCreateFolder, SourcePath: p},
		undo.Operation{Kind: undo.KindDelete, SourcePath: p},
	)
	return Okf("Created folder %s", p)
}

type DeleteFolderTool struct {
	vaultDeps
}

func (t *DeleteFolderTool) Name() string { return "delete_folder" }

func (t *DeleteFolderTool) Description() string {
	return "Delete a folder and its contents (moved to the vault trash). Undo restores the folder itself; trashed notes stay recoverable from the trash."
}

func (t *DeleteFolderTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Vault-relative folder path to delete",
			},
		},
		"required": []string{"path"},
	}
}

func (t *DeleteFolderTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	p := strings.Trim(getString(args, "path"), "/")

	if err := t.store.Trash(ctx, p); err != nil {
		return Errf("could not delete folder %s: %v", p, err)
	}
	t.recordSingle("Delete folder "+p,
		undo.Operation{Kind: undo.KindDelete, SourcePath: p},
		undo.Operation{Kind: undo.KindCreateFolder, SourcePath: p},
	)
	return Okf("Deleted folder %s", p)
}
